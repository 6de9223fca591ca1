package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/lightningnetwork/lnkeys/keystore"
	"github.com/urfave/cli"
	"golang.org/x/term"
)

var (
	errNoTerminal = errors.New("no terminal to read the password from, " +
		"use --passwordfile")

	errPasswordMismatch = errors.New("passwords do not match")
)

// terminalPassword prompts for the password on the controlling terminal.
type terminalPassword struct {
	prompt string
}

// Password reads a password without echoing it. If ctx is cancelled while
// the prompt is open, the terminal state is restored and the prompt counts as
// cancelled.
func (t *terminalPassword) Password(ctx context.Context) ([]byte, error) {
	// The variable syscall.Stdin is of a different type in the Windows API
	// that's why we need the explicit cast. And of course the linter
	// doesn't like it either.
	fd := int(syscall.Stdin) // nolint:unconvert
	if !term.IsTerminal(fd) {
		return nil, errNoTerminal
	}

	state, err := term.GetState(fd)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = term.Restore(fd, state)
		case <-done:
		}
	}()

	fmt.Fprint(os.Stderr, t.prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)

	if ctx.Err() != nil {
		zero(pw)
		return nil, keystore.ErrPasswordCancelled
	}

	return pw, err
}

// passwordFile reads the password from the first line of a file.
type passwordFile string

// Password returns the first line of the file.
func (p passwordFile) Password(ctx context.Context) ([]byte, error) {
	content, err := os.ReadFile(string(p))
	if err != nil {
		return nil, fmt.Errorf("unable to read password file: %w", err)
	}
	defer zero(content)

	line, _, _ := bytes.Cut(content, []byte("\n"))
	line = bytes.TrimRight(line, "\r")

	return append([]byte(nil), line...), nil
}

// confirmedPassword asks its source twice and only answers if both answers
// match.
type confirmedPassword struct {
	first  keystore.PasswordSource
	second keystore.PasswordSource
}

// Password returns the password once it was entered the same way twice.
func (c *confirmedPassword) Password(ctx context.Context) ([]byte, error) {
	pw, err := c.first.Password(ctx)
	if err != nil {
		return nil, err
	}

	again, err := c.second.Password(ctx)
	if err != nil {
		zero(pw)
		return nil, err
	}
	defer zero(again)

	if !bytes.Equal(pw, again) {
		zero(pw)
		return nil, errPasswordMismatch
	}

	return pw, nil
}

// passwordSource returns the password source selected by the global flags.
func passwordSource(ctx *cli.Context) keystore.PasswordSource {
	if file := ctx.GlobalString("passwordfile"); file != "" {
		return passwordFile(file)
	}

	return &terminalPassword{prompt: "Store password: "}
}

// newPasswordSource is passwordSource for a password that is being chosen,
// so an interactive user has to type it twice.
func newPasswordSource(ctx *cli.Context) keystore.PasswordSource {
	if file := ctx.GlobalString("passwordfile"); file != "" {
		return passwordFile(file)
	}

	return &confirmedPassword{
		first:  &terminalPassword{prompt: "New store password: "},
		second: &terminalPassword{prompt: "Confirm password: "},
	}
}

// zero overwrites b with zeroes.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
