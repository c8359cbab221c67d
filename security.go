package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// Credentials outlive the first login: every reconnect authenticates again
// with the same bytes.
type Credentials struct {
	username string
	password []byte
}

func (c *Credentials) Clear() {
	secureWipe(c.password)
	c.password = nil
}

// secureWipe overwrites the slice with zeros
func secureWipe(data []byte) {
	if data == nil {
		return
	}
	for i := range data {
		data[i] = 0
	}
}

// newCredentials copies the password out of cfg and blanks the config field.
// An interactive prompt is used only when nothing else can authenticate.
func newCredentials(cfg *Config) (*Credentials, error) {
	creds := &Credentials{username: cfg.User}
	if cfg.Password != "" {
		creds.password = []byte(cfg.Password)
		cfg.Password = ""
		return creds, nil
	}
	if cfg.User == anonymousUser || cfg.KeyFile != "" || !term.IsTerminal(int(os.Stdin.Fd())) {
		return creds, nil
	}
	password, err := askPassword()
	if err != nil {
		return nil, err
	}
	creds.password = password
	return creds, nil
}

// askPassword reads a password from the terminal without echoing it
func askPassword() ([]byte, error) {
	fmt.Print("Enter password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, errors.Wrap(err, "reading password")
	}
	return password, nil
}
