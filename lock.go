package main

import (
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// acquireLock takes an exclusive lock so that a scheduler firing while the
// previous run is still draining does not start a second session. An empty
// filename means no locking.
func acquireLock(filename string) (*flock.Flock, error) {
	if filename == "" {
		return nil, nil
	}
	l := flock.New(filename)
	ok, err := l.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "locking %s", filename)
	}
	if !ok {
		return nil, errors.Errorf("another run holds %s", filename)
	}
	return l, nil
}
