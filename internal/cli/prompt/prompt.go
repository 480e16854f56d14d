// Package prompt reads interactive input for CLI commands.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user interrupts a prompt.
var ErrAborted = errors.New("aborted")

// ErrPasswordMismatch is returned when a confirmation does not match.
var ErrPasswordMismatch = errors.New("passwords do not match")

func wrap(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrEOF) {
		return ErrAborted
	}
	return err
}

// Password prompts for a masked value.
func Password(label string) (string, error) {
	p := promptui.Prompt{Label: label, Mask: '*'}
	v, err := p.Run()
	return v, wrap(err)
}

// NewPassword prompts twice and enforces a minimum length.
func NewPassword(minLength int) (string, error) {
	p := promptui.Prompt{
		Label: "Password",
		Mask:  '*',
		Validate: func(s string) error {
			if len(s) < minLength {
				return fmt.Errorf("password must be at least %d characters", minLength)
			}
			return nil
		},
	}
	first, err := p.Run()
	if err != nil {
		return "", wrap(err)
	}
	confirm, err := Password("Confirm password")
	if err != nil {
		return "", err
	}
	if first != confirm {
		return "", ErrPasswordMismatch
	}
	return first, nil
}

// Input prompts for free text with an optional default.
func Input(label, def string) (string, error) {
	p := promptui.Prompt{Label: label, Default: def}
	v, err := p.Run()
	return strings.TrimSpace(v), wrap(err)
}

// Select offers a fixed list and returns the chosen item.
func Select(label string, items []string) (string, error) {
	s := promptui.Select{Label: label, Items: items}
	_, v, err := s.Run()
	return v, wrap(err)
}

// Confirm asks a yes/no question; anything but y or yes is no.
func Confirm(label string) (bool, error) {
	p := promptui.Prompt{Label: label, IsConfirm: true}
	v, err := p.Run()
	if errors.Is(err, promptui.ErrAbort) {
		return false, nil
	}
	if err != nil {
		return false, wrap(err)
	}
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "y" || v == "yes", nil
}

// ReadLine reads one line from r without the trailing newline, for
// --password-stdin style flags.
func ReadLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" && errors.Is(err, io.EOF) {
		return "", io.ErrUnexpectedEOF
	}
	return line, nil
}
