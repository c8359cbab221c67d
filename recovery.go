package main

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DialFunc opens and authenticates a brand new session.
type DialFunc func(ctx context.Context) (Session, error)

// Recovery owns the single session of a run. Other components only read it
// through Session; the only way it changes is Connect/Reconnect.
type Recovery struct {
	dial     DialFunc
	interval time.Duration
	log      *zap.Logger
	session  Session

	// reconnects counts sessions replaced after a failure
	reconnects int
}

func NewRecovery(dial DialFunc, interval time.Duration, log *zap.Logger) *Recovery {
	return &Recovery{dial: dial, interval: interval, log: log}
}

// Session returns the live session, or nil before the first Connect.
func (r *Recovery) Session() Session {
	return r.session
}

// Connect dials until it succeeds, waiting a fixed interval between
// attempts. There is no attempt limit: it returns an error only when ctx is
// done.
func (r *Recovery) Connect(ctx context.Context) error {
	r.drop()

	attempt := 0
	operation := func() error {
		attempt++
		s, err := r.dial(ctx)
		if err != nil {
			return err
		}
		r.session = s
		return nil
	}
	notify := func(err error, wait time.Duration) {
		r.log.Warn("connect failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(r.interval), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return errors.Wrap(err, "connect")
	}
	r.log.Info("connected", zap.Int("attempts", attempt))
	return nil
}

// Reconnect replaces a session that failed at the connection level.
func (r *Recovery) Reconnect(ctx context.Context) error {
	r.log.Warn("connection lost, reconnecting")
	if err := r.Connect(ctx); err != nil {
		return err
	}
	r.reconnects++
	RecordReconnect()
	return nil
}

func (r *Recovery) Reconnects() int {
	return r.reconnects
}

// Close ends the run's session.
func (r *Recovery) Close() error {
	if r.session == nil {
		return nil
	}
	err := r.session.Quit()
	r.session = nil
	return err
}

func (r *Recovery) drop() {
	if r.session == nil {
		return
	}
	// The old session is already broken; its QUIT usually fails too.
	if err := r.session.Quit(); err != nil {
		r.log.Debug("closing stale session", zap.Error(err))
	}
	r.session = nil
}
