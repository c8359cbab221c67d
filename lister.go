package main

import (
	"path"
)

// Lister returns the immediate children of a remote directory.
type Lister struct {
	conn sessionSource
}

// List returns child names in server order. Some servers answer NLST with
// full paths, so only the last element is kept; "." and ".." are dropped.
func (l *Lister) List(dir string) ([]string, error) {
	names, err := l.conn.Session().NameList(dir)
	if err != nil {
		return nil, err
	}

	children := make([]string, 0, len(names))
	for _, name := range names {
		name = path.Base(name)
		if name == "." || name == ".." || name == "/" {
			continue
		}
		children = append(children, name)
	}
	return children, nil
}

// Classifier tells directories from files by trying to enter them. Listing
// formats differ between servers; CWD behaves the same everywhere.
type Classifier struct {
	conn sessionSource
}

// Classify returns Directory if the server lets the session enter p and File
// if it refuses. Any other error is a connection failure and leaves the
// answer unknown.
func (c *Classifier) Classify(p string) (EntryKind, error) {
	s := c.conn.Session()
	prior, err := s.CurrentDir()
	if err != nil {
		return File, err
	}
	if err := s.ChangeDir(p); err != nil {
		if IsRejected(err) {
			return File, nil
		}
		return File, err
	}
	if err := s.ChangeDir(prior); err != nil {
		return Directory, err
	}
	return Directory, nil
}
