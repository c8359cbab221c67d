package main

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var (
	errFakeRefused = errors.New("550 refused")
	errFakeDropped = errors.New("connection reset by peer")
)

type fakeNode struct {
	dir  bool
	data []byte
}

// fakeServer is an in-memory remote tree shared by every session dialed
// from it, so state survives reconnects the way a real server's does.
type fakeServer struct {
	nodes    map[string]*fakeNode
	children map[string][]string

	// drop["OP /path"] = n makes the next n such calls lose the connection
	drop map[string]int
	// refuse["OP /path"] makes such calls fail with a rejection
	refuse map[string]bool
	// truncate[path] = n delivers only n bytes on RETR, without an error
	truncate map[string]int
	// dialFailures makes the next n dials fail
	dialFailures int

	dials int
	noops int
	calls []string
}

func newFakeServer() *fakeServer {
	srv := &fakeServer{
		nodes:    map[string]*fakeNode{"/": {dir: true}},
		children: map[string][]string{},
		drop:     map[string]int{},
		refuse:   map[string]bool{},
		truncate: map[string]int{},
	}
	return srv
}

func (srv *fakeServer) add(p string, n *fakeNode) {
	p = path.Clean(p)
	parent := path.Dir(p)
	if _, ok := srv.nodes[parent]; !ok {
		srv.addDir(parent)
	}
	if _, ok := srv.nodes[p]; !ok {
		srv.children[parent] = append(srv.children[parent], path.Base(p))
	}
	srv.nodes[p] = n
}

func (srv *fakeServer) addDir(p string) {
	srv.add(p, &fakeNode{dir: true})
}

func (srv *fakeServer) addFile(p string, size int) {
	srv.add(p, &fakeNode{data: bytes.Repeat([]byte{'x'}, size)})
}

func (srv *fakeServer) remove(p string) {
	delete(srv.nodes, p)
	parent := path.Dir(p)
	kids := srv.children[parent]
	for i, name := range kids {
		if name == path.Base(p) {
			srv.children[parent] = append(kids[:i:i], kids[i+1:]...)
			break
		}
	}
}

func (srv *fakeServer) exists(p string) bool {
	_, ok := srv.nodes[p]
	return ok
}

// paths lists every node below "/" in sorted order.
func (srv *fakeServer) paths() []string {
	var out []string
	for p := range srv.nodes {
		if p != "/" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (srv *fakeServer) count(call string) int {
	n := 0
	for _, c := range srv.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (srv *fakeServer) dial(ctx context.Context) (Session, error) {
	srv.dials++
	if srv.dialFailures > 0 {
		srv.dialFailures--
		return nil, errors.New("dial tcp: connection refused")
	}
	return &fakeSession{srv: srv, cwd: "/"}, nil
}

type fakeSession struct {
	srv  *fakeServer
	cwd  string
	dead bool
}

func (s *fakeSession) op(op, p string) error {
	call := strings.TrimSpace(op + " " + p)
	s.srv.calls = append(s.srv.calls, call)
	if s.dead {
		return &RemoteError{Op: op, Path: p, Err: errFakeDropped}
	}
	if s.srv.drop[call] > 0 {
		s.srv.drop[call]--
		s.dead = true
		return &RemoteError{Op: op, Path: p, Err: errFakeDropped}
	}
	if s.srv.refuse[call] {
		return &RemoteError{Op: op, Path: p, Err: errFakeRefused, Rejected: true}
	}
	return nil
}

func (s *fakeSession) abs(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(s.cwd, p)
}

func refused(op, p string) error {
	return &RemoteError{Op: op, Path: p, Err: errFakeRefused, Rejected: true}
}

func (s *fakeSession) NameList(p string) ([]string, error) {
	if err := s.op("NLST", p); err != nil {
		return nil, err
	}
	n, ok := s.srv.nodes[s.abs(p)]
	if !ok || !n.dir {
		return nil, refused("NLST", p)
	}
	names := []string{".", ".."}
	return append(names, s.srv.children[s.abs(p)]...), nil
}

func (s *fakeSession) ChangeDir(p string) error {
	if err := s.op("CWD", p); err != nil {
		return err
	}
	n, ok := s.srv.nodes[s.abs(p)]
	if !ok || !n.dir {
		return refused("CWD", p)
	}
	s.cwd = s.abs(p)
	return nil
}

func (s *fakeSession) CurrentDir() (string, error) {
	if err := s.op("PWD", ""); err != nil {
		return "", err
	}
	return s.cwd, nil
}

func (s *fakeSession) Binary() error {
	return s.op("TYPE", "")
}

func (s *fakeSession) FileSize(p string) (int64, error) {
	if err := s.op("SIZE", p); err != nil {
		return 0, err
	}
	n, ok := s.srv.nodes[s.abs(p)]
	if !ok || n.dir {
		return 0, refused("SIZE", p)
	}
	return int64(len(n.data)), nil
}

func (s *fakeSession) Retr(p string) (io.ReadCloser, error) {
	if err := s.op("RETR", p); err != nil {
		return nil, err
	}
	n, ok := s.srv.nodes[s.abs(p)]
	if !ok || n.dir {
		return nil, refused("RETR", p)
	}
	data := n.data
	if limit, ok := s.srv.truncate[s.abs(p)]; ok && limit < len(data) {
		data = data[:limit]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeSession) Delete(p string) error {
	if err := s.op("DELE", p); err != nil {
		return err
	}
	n, ok := s.srv.nodes[s.abs(p)]
	if !ok || n.dir {
		return refused("DELE", p)
	}
	s.srv.remove(s.abs(p))
	return nil
}

func (s *fakeSession) RemoveDir(p string) error {
	if err := s.op("RMD", p); err != nil {
		return err
	}
	n, ok := s.srv.nodes[s.abs(p)]
	if !ok || !n.dir || len(s.srv.children[s.abs(p)]) > 0 {
		return refused("RMD", p)
	}
	s.srv.remove(s.abs(p))
	return nil
}

func (s *fakeSession) NoOp() error {
	if err := s.op("NOOP", ""); err != nil {
		return err
	}
	s.srv.noops++
	return nil
}

func (s *fakeSession) Quit() error {
	s.dead = true
	return nil
}

type recordingNotifier struct {
	msgs []string
}

func (n *recordingNotifier) Notify(_ context.Context, msg string) {
	n.msgs = append(n.msgs, msg)
}

// harness wires the engine to a fake server the same way run.go wires it to
// a real one.
type harness struct {
	srv      *fakeServer
	conn     *Recovery
	notifier *recordingNotifier
	walker   *Walker
	source   string
	target   string
}

type harnessOptions struct {
	log          *zap.Logger
	keepRoot     bool
	preserveTree bool
	keepAlive    int
	journal      *Journal
	source       string
	target       string
}

func newHarness(t *testing.T, srv *fakeServer, opts harnessOptions) *harness {
	t.Helper()
	log := opts.log
	if log == nil {
		log = zaptest.NewLogger(t)
	}
	if opts.keepAlive == 0 {
		opts.keepAlive = defaultKeepAlive
	}
	if opts.source == "" {
		opts.source = "/incoming"
	}
	if opts.target == "" {
		opts.target = t.TempDir()
	}

	h := &harness{
		srv:      srv,
		notifier: &recordingNotifier{},
		source:   opts.source,
		target:   opts.target,
	}
	h.conn = NewRecovery(srv.dial, time.Millisecond, log)
	worker := NewWorker(h.conn, WorkerOptions{
		SourceRoot:   opts.source,
		TargetRoot:   h.target,
		PreserveTree: opts.preserveTree,
		Notifier:     h.notifier,
		Journal:      opts.journal,
	}, log)
	h.walker = NewWalker(h.conn, worker, WalkerOptions{
		KeepRoot:       opts.keepRoot,
		KeepAliveEvery: opts.keepAlive,
	}, log)

	if err := h.conn.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) run(t *testing.T) Stats {
	t.Helper()
	stats, err := h.walker.Run(context.Background(), h.source)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return stats
}
