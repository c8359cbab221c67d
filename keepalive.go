package main

import (
	"context"

	"go.uber.org/zap"
)

// Prober sends a NOOP after every n processed entries so the server does not
// drop an idle control connection during long walks.
type Prober struct {
	conn  sessionSource
	every int
	count int
	log   *zap.Logger
}

func NewProber(conn sessionSource, every int, log *zap.Logger) *Prober {
	return &Prober{conn: conn, every: every, log: log}
}

// Tick counts one processed entry and probes when the count reaches a
// multiple of every. The probe is never retried.
func (p *Prober) Tick(ctx context.Context) error {
	p.count++
	if p.every <= 0 || p.count%p.every != 0 {
		return nil
	}

	err := p.conn.Session().NoOp()
	RecordKeepAlive(err == nil)
	switch {
	case err == nil:
		p.log.Debug("keep-alive sent", zap.Int("entries", p.count))
		return nil
	case IsRejected(err):
		p.log.Debug("keep-alive refused", zap.Error(err))
		return nil
	default:
		p.log.Warn("keep-alive failed", zap.Error(err))
		return p.conn.Reconnect(ctx)
	}
}
