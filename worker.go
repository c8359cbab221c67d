package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Downloads land next to their final name and are renamed only once verified.
const partialSuffix = ".part"

// TransferResult describes what happened to one remote file.
type TransferResult struct {
	Outcome  TransferOutcome
	Local    string
	Expected int64
	Written  int64
	Err      error

	// Purged is true once the remote copy is gone.
	Purged bool
}

// Worker moves single files: download, compare sizes, then delete whichever
// copy is not trustworthy. Remote deletion only ever follows a verified copy.
type Worker struct {
	conn     sessionSource
	root     string
	target   string
	preserve bool
	notifier Notifier
	journal  *Journal
	log      *zap.Logger
	prepared bool
}

type WorkerOptions struct {
	SourceRoot   string
	TargetRoot   string
	PreserveTree bool
	Notifier     Notifier
	Journal      *Journal
}

func NewWorker(conn sessionSource, opts WorkerOptions, log *zap.Logger) *Worker {
	return &Worker{
		conn:     conn,
		root:     opts.SourceRoot,
		target:   opts.TargetRoot,
		preserve: opts.PreserveTree,
		notifier: opts.Notifier,
		journal:  opts.Journal,
		log:      log,
	}
}

// prepare creates the target directory once, before the first download.
func (w *Worker) prepare() error {
	if w.prepared {
		return nil
	}
	if err := os.MkdirAll(w.target, 0755); err != nil {
		return errors.Wrapf(err, "creating target directory %s", w.target)
	}
	w.prepared = true
	return nil
}

// Transfer processes one remote file. The returned error is reserved for
// failures that must end the run (unusable target directory, cancelled
// reconnect); per-file problems are reported through the result.
func (w *Worker) Transfer(ctx context.Context, remote string) (TransferResult, error) {
	if err := w.prepare(); err != nil {
		return TransferResult{}, err
	}
	local, err := resolveLocalPath(remote, w.root, w.target, w.preserve)
	if err != nil {
		return TransferResult{}, err
	}

	res := TransferResult{Local: local}
	partial := local + partialSuffix
	res.Expected, res.Written, res.Err = w.download(remote, partial)

	fields := []zap.Field{
		zap.String("path", remote),
		zap.String("local", local),
		zap.Int64("expected", res.Expected),
		zap.Int64("written", res.Written),
	}

	switch {
	case res.Err != nil:
		res.Outcome = TransferError
		w.discard(partial)
		w.log.Error("transfer error", append(fields, zap.Error(res.Err))...)
		w.notifier.Notify(ctx, fmt.Sprintf("transfer error: %s: %v", remote, res.Err))
		if err := w.conn.Reconnect(ctx); err != nil {
			return res, err
		}

	case res.Written != res.Expected:
		res.Outcome = SizeMismatch
		w.log.Warn("verification failed", fields...)
		w.discard(partial)

	default:
		if err := os.Rename(partial, local); err != nil {
			w.discard(partial)
			return res, errors.Wrapf(err, "moving %s into place", local)
		}
		res.Outcome = Verified
		w.log.Info("transfer and verification ok", fields...)
		res.Purged, err = w.purge(ctx, remote)
		if err != nil {
			return res, err
		}
	}

	RecordTransfer(res.Outcome, res.Written)
	if err := w.journal.Record(JournalEntry{Path: remote, Outcome: res.Outcome, Size: res.Written}); err != nil {
		w.log.Warn("journal not updated", zap.Error(err))
	}
	return res, nil
}

func (w *Worker) download(remote, local string) (expected, written int64, err error) {
	s := w.conn.Session()
	if err := s.Binary(); err != nil {
		return 0, 0, err
	}
	expected, err = s.FileSize(remote)
	if err != nil {
		return 0, 0, err
	}

	r, err := s.Retr(remote)
	if err != nil {
		return expected, 0, err
	}
	written, err = saveRemoteFile(local, r)
	if closeErr := r.Close(); err == nil {
		err = closeErr
	}
	return expected, written, err
}

// discard removes a download that did not verify. An older local file with
// the same name is left untouched.
func (w *Worker) discard(partial string) {
	if err := os.Remove(partial); err != nil && !os.IsNotExist(err) {
		w.log.Error("removing partial copy", zap.String("local", partial), zap.Error(err))
	}
}

// purge deletes a verified remote file. When the delete cannot be done the
// file stays on the server and the next run transfers it again.
func (w *Worker) purge(ctx context.Context, remote string) (bool, error) {
	err := w.conn.Session().Delete(remote)
	if err == nil {
		return true, nil
	}
	w.log.Warn("remote delete failed", zap.String("path", remote), zap.Error(err))
	if IsRejected(err) {
		return false, nil
	}
	return false, w.conn.Reconnect(ctx)
}
