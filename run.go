package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runMirror performs one traversal run. Any failure that escapes the
// per-file and per-connection handling, panics included, is logged with its
// stack and sent to the notification channel before being returned.
func runMirror(ctx context.Context, cfg *Config, log *zap.Logger) (err error) {
	notifier := newNotifier(cfg, log)
	defer func() {
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		log.Error("run aborted", zap.Error(err))
		notifier.Notify(context.Background(), fmt.Sprintf("ftpdrain run aborted: %+v", err))
	}()

	return guard(func() error {
		return mirror(ctx, cfg, log, notifier)
	})
}

func mirror(ctx context.Context, cfg *Config, log *zap.Logger, notifier Notifier) error {
	lock, err := acquireLock(cfg.LockFile)
	if err != nil {
		return err
	}
	if lock != nil {
		defer lock.Unlock()
	}

	journal, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}

	creds, err := newCredentials(cfg)
	if err != nil {
		return err
	}
	defer creds.Clear()

	factory := getSessionFactory(cfg.Protocol)
	if factory == nil {
		return errors.Errorf("no session factory for protocol %q", cfg.Protocol)
	}
	if cfg.DebugProtocol {
		cfg.protocolLog = protocolWriter(log)
	}

	conn := NewRecovery(func(ctx context.Context) (Session, error) {
		return factory.Create(ctx, cfg, creds)
	}, cfg.RetryInterval, log.Named(factory.Name()))

	worker := NewWorker(conn, WorkerOptions{
		SourceRoot:   cfg.SourcePath,
		TargetRoot:   cfg.TargetPath,
		PreserveTree: cfg.PreserveTree,
		Notifier:     notifier,
		Journal:      journal,
	}, log)
	walker := NewWalker(conn, worker, WalkerOptions{
		KeepRoot:       cfg.KeepRoot,
		KeepAliveEvery: cfg.KeepAliveEvery,
	}, log)

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler())
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "metrics listener")
			}
			return nil
		})
	}

	g.Go(func() error {
		if srv != nil {
			defer srv.Shutdown(context.Background())
		}
		return guard(func() error {
			return drain(gctx, cfg, conn, walker, log)
		})
	})

	return g.Wait()
}

func drain(ctx context.Context, cfg *Config, conn *Recovery, walker *Walker, log *zap.Logger) error {
	log.Info("connecting",
		zap.String("protocol", cfg.Protocol),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
	)
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Debug("closing session", zap.Error(err))
		}
	}()

	stats, err := walker.Run(ctx, cfg.SourcePath)
	if err != nil {
		return errors.Wrapf(err, "traversal of %s", cfg.SourcePath)
	}
	log.Info("run complete",
		zap.Int("verified", stats.Verified),
		zap.Int("reconnects", conn.Reconnects()),
	)
	return nil
}

// guard turns a panic into an error carrying the panicking stack.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
