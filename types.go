package main

import (
	"context"
	"io"
)

// Session is one live connection to the remote server. Calls are blocking
// and must never be issued concurrently.
type Session interface {
	NameList(path string) ([]string, error)
	ChangeDir(path string) error
	CurrentDir() (string, error)
	Binary() error
	FileSize(path string) (int64, error)
	Retr(path string) (io.ReadCloser, error)
	Delete(path string) error
	RemoveDir(path string) error
	NoOp() error
	Quit() error
}

// SessionFactory creates sessions for one remote protocol
type SessionFactory interface {
	Accept(protocol string) bool
	Create(ctx context.Context, cfg *Config, creds *Credentials) (Session, error)
	Name() string
}

// sessionSource hands out the current session and replaces it after a
// connection-level failure. Implemented by Recovery.
type sessionSource interface {
	Session() Session
	Reconnect(ctx context.Context) error
}

type EntryKind int

const (
	File EntryKind = iota
	Directory
)

func (k EntryKind) String() string {
	if k == Directory {
		return "directory"
	}
	return "file"
}

// TransferOutcome is produced once per file and drives the purge decision.
type TransferOutcome int

const (
	Verified TransferOutcome = iota
	SizeMismatch
	TransferError
)

var outcomeNames = map[TransferOutcome]string{
	Verified:      "verified",
	SizeMismatch:  "mismatch",
	TransferError: "error",
}

func (o TransferOutcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

func parseOutcome(s string) (TransferOutcome, bool) {
	for o, name := range outcomeNames {
		if name == s {
			return o, true
		}
	}
	return 0, false
}
