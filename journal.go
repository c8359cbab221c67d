package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// journalMaxEntries caps the history kept across runs; older lines are
// dropped when the journal is opened.
var journalMaxEntries = 10000

// JournalEntry is the recorded outcome for one remote file
type JournalEntry struct {
	Path    string
	Outcome TransferOutcome
	Size    int64
}

// Journal keeps the history of file outcomes across runs. A nil *Journal
// records nothing.
type Journal struct {
	Entries []JournalEntry
	file    string
}

// openJournal loads an existing journal or starts an empty one. An empty
// filename disables journaling.
func openJournal(filename string) (*Journal, error) {
	if filename == "" {
		return nil, nil
	}
	entries, err := parseJournalFile(filename)
	if err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, err
	}
	j := &Journal{Entries: entries, file: filename}
	if len(entries) > journalMaxEntries {
		j.Entries = entries[len(entries)-journalMaxEntries:]
		if err := j.save(); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func parseJournalFile(filename string) ([]JournalEntry, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	var entries []JournalEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// outcome:size:path, the path may itself contain colons
		parts := strings.SplitN(scanner.Text(), ":", 3)
		if len(parts) != 3 {
			continue
		}
		outcome, ok := parseOutcome(parts[0])
		if !ok {
			continue
		}
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, JournalEntry{Path: parts[2], Outcome: outcome, Size: size})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading journal %s", filename)
	}
	return entries, nil
}

// Record appends one entry to the journal file.
func (j *Journal) Record(entry JournalEntry) error {
	if j == nil {
		return nil
	}
	j.Entries = append(j.Entries, entry)

	f, err := os.OpenFile(j.file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "writing journal")
	}
	if _, err := fmt.Fprintf(f, "%s:%d:%s\n", entry.Outcome, entry.Size, entry.Path); err != nil {
		f.Close()
		return errors.Wrap(err, "writing journal")
	}
	return errors.Wrap(f.Close(), "writing journal")
}

// save rewrites the whole journal; used only to compact it.
func (j *Journal) save() error {
	tmp := j.file + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "writing journal")
	}

	w := bufio.NewWriter(f)
	for _, e := range j.Entries {
		fmt.Fprintf(w, "%s:%d:%s\n", e.Outcome, e.Size, e.Path)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, "writing journal")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "writing journal")
	}
	return errors.Wrap(os.Rename(tmp, j.file), "writing journal")
}
