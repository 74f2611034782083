package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// promptPassphrase reads a passphrase from the terminal without echo. When
// stdin is not a terminal (piped input) it falls back to reading a line.
func promptPassphrase(prompt string, reader *bufio.Reader, w io.Writer) ([]byte, error) {
	fmt.Fprint(w, prompt+": ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		pw, err := readPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(w)
		return pw, err
	}
	line, err := reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// promptNewPassphrase asks twice and insists the two reads match.
func promptNewPassphrase(reader *bufio.Reader, w io.Writer) ([]byte, error) {
	first, err := promptPassphrase("New passphrase", reader, w)
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return nil, errors.New("empty passphrase")
	}
	second, err := promptPassphrase("Repeat passphrase", reader, w)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(first, second) {
		return nil, errors.New("passphrases do not match")
	}
	return first, nil
}
