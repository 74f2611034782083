// Command passlock manages an encrypted secret store in a single local file.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/passlock/passlock/internal/codec"
	"github.com/passlock/passlock/internal/errs"
	"github.com/passlock/passlock/internal/model"
	"github.com/passlock/passlock/internal/session"
	"github.com/passlock/passlock/internal/vault"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `passlock
Usage:
  passlock [-log file] <cmd> [args]

Commands:
  version
  new      -file <store>                  (create and edit a fresh store)
  edit     -file <store>
  migrate  -in <store> -out <store>       (upgrade old format, source untouched)
  export   -file <store>                  (plaintext to stdout, no encryption)
  import   -in <plain> -out <store>
`)
	os.Exit(2)
}

// main dispatches subcommands; all store access goes through the vault.
func main() {
	logPath := flag.String("log", "", "append structured logs to this file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	log, err := newLogger(*logPath)
	if err != nil {
		fail(err)
	}
	defer log.Sync()

	v := vault.New(log)
	stdin := bufio.NewReader(os.Stdin)

	switch cmd {

	case "version":
		fmt.Printf("passlock %s (%s)\n", version, buildDate)

	case "new":
		fs := flag.NewFlagSet("new", flag.ExitOnError)
		file := fs.String("file", "", "store file to create")
		_ = fs.Parse(flag.Args()[1:])
		if *file == "" {
			fmt.Fprintln(os.Stderr, "need -file")
			os.Exit(1)
		}

		pass, err := promptNewPassphrase(stdin, os.Stderr)
		if err != nil {
			fail(err)
		}
		store, keys, err := v.Create(*file, pass)
		if err != nil {
			fail(err)
		}
		if err := edit(v, store, keys, *file, stdin); err != nil {
			fail(err)
		}

	case "edit":
		fs := flag.NewFlagSet("edit", flag.ExitOnError)
		file := fs.String("file", "", "store file")
		_ = fs.Parse(flag.Args()[1:])
		if *file == "" {
			fmt.Fprintln(os.Stderr, "need -file")
			os.Exit(1)
		}

		pass, err := promptPassphrase("Passphrase", stdin, os.Stderr)
		if err != nil {
			fail(err)
		}
		store, keys, err := v.Open(*file, pass)
		if err != nil {
			fail(err)
		}
		if err := edit(v, store, keys, *file, stdin); err != nil {
			fail(err)
		}

	case "migrate":
		fs := flag.NewFlagSet("migrate", flag.ExitOnError)
		in := fs.String("in", "", "store file to upgrade")
		out := fs.String("out", "", "output file")
		_ = fs.Parse(flag.Args()[1:])
		if *in == "" || *out == "" {
			fmt.Fprintln(os.Stderr, "need -in and -out")
			os.Exit(1)
		}

		pass, err := promptPassphrase("Passphrase", stdin, os.Stderr)
		if err != nil {
			fail(err)
		}
		if err := v.Migrate(*in, *out, pass); err != nil {
			fail(err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s, %s left untouched\n", *out, *in)

	case "export":
		fs := flag.NewFlagSet("export", flag.ExitOnError)
		file := fs.String("file", "", "store file")
		_ = fs.Parse(flag.Args()[1:])
		if *file == "" {
			fmt.Fprintln(os.Stderr, "need -file")
			os.Exit(1)
		}

		pass, err := promptPassphrase("Passphrase", stdin, os.Stderr)
		if err != nil {
			fail(err)
		}
		store, _, err := v.Open(*file, pass)
		if err != nil {
			fail(err)
		}
		data, err := v.ExportPlaintext(store)
		if err != nil {
			fail(err)
		}
		os.Stdout.Write(data)

	case "import":
		fs := flag.NewFlagSet("import", flag.ExitOnError)
		in := fs.String("in", "", "plaintext export")
		out := fs.String("out", "", "store file to create")
		_ = fs.Parse(flag.Args()[1:])
		if *in == "" || *out == "" {
			fmt.Fprintln(os.Stderr, "need -in and -out")
			os.Exit(1)
		}

		if _, err := os.Stat(*out); err == nil {
			fail(fmt.Errorf("%s already exists: %w", *out, errs.ErrIO))
		}
		data, err := os.ReadFile(*in)
		if err != nil {
			fail(fmt.Errorf("read %s: %v: %w", *in, err, errs.ErrIO))
		}
		store, err := v.ImportPlaintext(data)
		if err != nil {
			fail(err)
		}
		pass, err := promptNewPassphrase(stdin, os.Stderr)
		if err != nil {
			fail(err)
		}
		keys, err := codec.NewKeys(pass)
		if err != nil {
			fail(err)
		}
		if err := v.Save(store, keys, *out); err != nil {
			fail(err)
		}
		fmt.Fprintf(os.Stderr, "imported %d entries into %s\n", len(store.Entries), *out)

	default:
		usage()
	}
}

// edit runs the interactive session over an opened store. Saves triggered
// inside the session go back through the vault to the same file.
func edit(v *vault.Vault, store *model.Store, keys codec.Keys, file string, stdin *bufio.Reader) error {
	sess := session.New(store, func(s *model.Store) error {
		return v.Save(s, keys, file)
	})
	return runEditor(sess, stdin, os.Stdout)
}

func newLogger(path string) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}

// fail prints the most specific message the error kind allows and exits.
func fail(err error) {
	switch {
	case errors.Is(err, errs.ErrAuth):
		fmt.Fprintln(os.Stderr, "wrong passphrase")
	case errors.Is(err, errs.ErrUnsupportedVersion):
		fmt.Fprintln(os.Stderr, "this file was written by a newer or unknown version")
	case errors.Is(err, errs.ErrParse):
		fmt.Fprintln(os.Stderr, "store file is malformed:", err)
	case errors.Is(err, errs.ErrIO):
		fmt.Fprintln(os.Stderr, err)
	default:
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}
