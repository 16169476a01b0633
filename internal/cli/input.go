package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// PassphraseEnv names the environment variable consulted before prompting.
const PassphraseEnv = "ESTATESYNC_PASSPHRASE"

var ErrPassphraseMismatch = errors.New("passphrases do not match")

// readPassword is a test seam for term.ReadPassword.
// In tests you can replace it with a stub to avoid touching the terminal.
var readPassword = term.ReadPassword

// lookupEnv is a test seam for os.LookupEnv.
var lookupEnv = os.LookupEnv

// GetPassword prints prompt to w and reads a secret from the user's
// terminal without echo. A newline is printed after the read to keep the
// UI tidy.
//
// The returned byte slice should be wiped by the caller when no longer needed.
func GetPassword(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// passphrase returns $ESTATESYNC_PASSPHRASE or prompts for it on w. With
// confirm set the prompt is repeated and both answers must match.
func passphrase(w io.Writer, confirm bool) ([]byte, error) {
	if v, ok := lookupEnv(PassphraseEnv); ok && v != "" {
		return []byte(v), nil
	}

	p, err := GetPassword(w, "Passphrase: ")
	if err != nil {
		return nil, err
	}
	if !confirm {
		return p, nil
	}

	again, err := GetPassword(w, "Repeat passphrase: ")
	if err != nil {
		return nil, err
	}
	defer wipe(again)
	if !bytes.Equal(p, again) {
		wipe(p)
		return nil, ErrPassphraseMismatch
	}
	return p, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
