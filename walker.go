package main

import (
	"context"
	"path"

	"go.uber.org/zap"
)

// frame is one directory on the work stack. A frame leaves the stack only
// after every entry in pending has been resolved, which is what lets the
// prune decision see the whole subtree.
type frame struct {
	path    string
	parent  *frame
	listed  bool
	pending []string

	// hadFile is set when something under this directory stays on the
	// server: a file that was not purged, or a subdirectory that was kept.
	hadFile bool
}

func (f *frame) keep() {
	f.hadFile = true
}

// Stats summarizes one traversal run.
type Stats struct {
	Listed     int
	Verified   int
	Mismatched int
	Failed     int
	Pruned     int
}

// Walker drives a depth-first walk of the remote tree, transferring files as
// they are found and removing directories left empty.
type Walker struct {
	conn       sessionSource
	lister     *Lister
	classifier *Classifier
	worker     *Worker
	prober     *Prober
	keepRoot   bool
	log        *zap.Logger
}

type WalkerOptions struct {
	KeepRoot       bool
	KeepAliveEvery int
}

func NewWalker(conn sessionSource, worker *Worker, opts WalkerOptions, log *zap.Logger) *Walker {
	return &Walker{
		conn:       conn,
		lister:     &Lister{conn: conn},
		classifier: &Classifier{conn: conn},
		worker:     worker,
		prober:     NewProber(conn, opts.KeepAliveEvery, log),
		keepRoot:   opts.KeepRoot,
		log:        log,
	}
}

// Run consumes the work stack seeded with root until it is empty. It stops
// early only when ctx is done or a transfer hits a fatal local error.
func (w *Walker) Run(ctx context.Context, root string) (Stats, error) {
	var stats Stats
	root = path.Clean(root)
	stack := []*frame{{path: root}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		top := stack[len(stack)-1]

		if !top.listed {
			names, err := w.lister.List(top.path)
			switch {
			case err == nil:
				top.pending, top.listed = names, true
				stats.Listed++
				w.log.Debug("listed", zap.String("path", top.path), zap.Int("entries", len(names)))
			case IsRejected(err):
				// Abandoned: not pruned, and its parent must not be either.
				w.log.Warn("listing refused, skipping", zap.String("path", top.path), zap.Error(err))
				stack = stack[:len(stack)-1]
				if top.parent != nil {
					top.parent.keep()
				}
			default:
				w.log.Warn("listing failed", zap.String("path", top.path), zap.Error(err))
				if err := w.conn.Reconnect(ctx); err != nil {
					return stats, err
				}
			}
			continue
		}

		if len(top.pending) == 0 {
			done, err := w.finish(ctx, top, &stats)
			if err != nil {
				return stats, err
			}
			if !done {
				continue
			}
			stack = stack[:len(stack)-1]
			if top.hadFile && top.parent != nil {
				top.parent.keep()
			}
			continue
		}

		full := path.Join(top.path, top.pending[0])
		kind, err := w.classifier.Classify(full)
		if err != nil {
			// The entry stays at the head of pending and is probed again
			// on the new session.
			w.log.Warn("classification failed", zap.String("path", full), zap.Error(err))
			if err := w.conn.Reconnect(ctx); err != nil {
				return stats, err
			}
			continue
		}
		top.pending = top.pending[1:]

		if kind == Directory {
			stack = append(stack, &frame{path: full, parent: top})
		} else {
			res, err := w.worker.Transfer(ctx, full)
			if err != nil {
				return stats, err
			}
			switch res.Outcome {
			case Verified:
				stats.Verified++
			case SizeMismatch:
				stats.Mismatched++
			case TransferError:
				stats.Failed++
			}
			if !res.Purged {
				top.keep()
			}
		}

		if err := w.prober.Tick(ctx); err != nil {
			return stats, err
		}
	}

	w.log.Info("traversal finished",
		zap.String("root", root),
		zap.Int("listed", stats.Listed),
		zap.Int("verified", stats.Verified),
		zap.Int("mismatched", stats.Mismatched),
		zap.Int("failed", stats.Failed),
		zap.Int("pruned", stats.Pruned),
	)
	return stats, nil
}

// finish makes the prune decision for a fully drained frame. It returns false
// when the session had to be replaced and the decision must be retried.
func (w *Walker) finish(ctx context.Context, f *frame, stats *Stats) (bool, error) {
	if f.hadFile {
		w.log.Debug("keeping directory", zap.String("path", f.path))
		return true, nil
	}
	if f.parent == nil && w.keepRoot {
		return true, nil
	}

	err := w.conn.Session().RemoveDir(f.path)
	switch {
	case err == nil:
		stats.Pruned++
		RecordPrune()
		w.log.Info("removed empty directory", zap.String("path", f.path))
		return true, nil
	case IsRejected(err):
		w.log.Warn("directory not removed", zap.String("path", f.path), zap.Error(err))
		f.keep()
		return true, nil
	default:
		w.log.Warn("directory removal failed", zap.String("path", f.path), zap.Error(err))
		return false, w.conn.Reconnect(ctx)
	}
}
