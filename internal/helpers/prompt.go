// Package helpers holds terminal prompts used at startup.
package helpers

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

const MinPasswordLen = 8

var (
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	ErrPasswordChars    = errors.New("password contains invalid characters (use letters, numbers, and special characters only)")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrNotTerminal      = errors.New("stdin is not a terminal")
)

// IsTerminal reports whether stdin can be prompted.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func PromptLineWithDefault(label, def string) string {
	return promptLine(os.Stdin, os.Stderr, label, def)
}

func promptLine(in io.Reader, out io.Writer, label, def string) string {
	if def != "" {
		_, _ = fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		_, _ = fmt.Fprintf(out, "%s: ", label)
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return def
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

// PromptPassword reads a password without echo. The caller owns the
// returned buffer and should zero it.
func PromptPassword(prompt string) ([]byte, error) {
	if !IsTerminal() {
		return nil, ErrNotTerminal
	}
	_, _ = fmt.Fprint(os.Stderr, prompt)

	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(os.Stderr)

	if err != nil {
		ZeroBytes(pw)
		return nil, fmt.Errorf("password input failed: %w", err)
	}
	if err := ValidatePassword(pw); err != nil {
		ZeroBytes(pw)
		return nil, err
	}
	return pw, nil
}

// PromptNewPassword asks twice and requires both entries to match.
func PromptNewPassword() ([]byte, error) {
	pw, err := PromptPassword("Choose a vault password: ")
	if err != nil {
		return nil, err
	}
	again, err := PromptPassword("Repeat the password: ")
	if err != nil {
		ZeroBytes(pw)
		return nil, err
	}
	defer ZeroBytes(again)

	if !bytes.Equal(pw, again) {
		ZeroBytes(pw)
		return nil, ErrPasswordMismatch
	}
	return pw, nil
}

func ValidatePassword(pw []byte) error {
	if len(pw) < MinPasswordLen {
		return ErrPasswordTooShort
	}
	for _, b := range pw {
		if !IsAllowedPasswordChar(b) {
			return ErrPasswordChars
		}
	}
	return nil
}

// IsAllowedPasswordChar accepts printable ASCII except space.
func IsAllowedPasswordChar(b byte) bool {
	return b > ' ' && b < 0x7f
}

func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
