package main

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

// fixedSource serves one session and counts reconnect requests.
type fixedSource struct {
	s          Session
	reconnects int
}

func (f *fixedSource) Session() Session { return f.s }

func (f *fixedSource) Reconnect(context.Context) error {
	f.reconnects++
	return nil
}

// fullPathSession answers NLST the way some servers do, with absolute paths.
type fullPathSession struct {
	*fakeSession
}

func (s fullPathSession) NameList(p string) ([]string, error) {
	names, err := s.fakeSession.NameList(p)
	if err != nil {
		return nil, err
	}
	for i, n := range names {
		names[i] = p + "/" + n
	}
	return names, nil
}

func TestListStripsDotEntries(t *testing.T) {
	srv := newFakeServer()
	srv.addFile("/incoming/a.mp4", 1)
	srv.addDir("/incoming/sub")
	s, _ := srv.dial(context.Background())

	l := &Lister{conn: &fixedSource{s: s}}
	got, err := l.List("/incoming")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.mp4", "sub"}, got); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestListFullPathNames(t *testing.T) {
	srv := newFakeServer()
	srv.addFile("/incoming/a.mp4", 1)
	srv.addFile("/incoming/b.mp4", 1)
	s, _ := srv.dial(context.Background())

	l := &Lister{conn: &fixedSource{s: fullPathSession{s.(*fakeSession)}}}
	got, err := l.List("/incoming")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.mp4", "b.mp4"}, got); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestListEmptyDirectory(t *testing.T) {
	srv := newFakeServer()
	srv.addDir("/incoming")
	s, _ := srv.dial(context.Background())

	got, err := (&Lister{conn: &fixedSource{s: s}}).List("/incoming")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %q, want no children", got)
	}
}

func TestListRefused(t *testing.T) {
	srv := newFakeServer()
	s, _ := srv.dial(context.Background())

	_, err := (&Lister{conn: &fixedSource{s: s}}).List("/missing")
	if !IsRejected(err) {
		t.Fatalf("got %v, want a rejection", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		path    string
		refuse  string
		want    EntryKind
		wantErr bool
	}{
		{name: "directory", path: "/incoming/sub", want: Directory},
		{name: "file", path: "/incoming/a.mp4", want: File},
		{name: "refused directory", path: "/incoming/sub", refuse: "CWD /incoming/sub", want: File},
		{name: "missing", path: "/incoming/gone", want: File},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newFakeServer()
			srv.addFile("/incoming/a.mp4", 1)
			srv.addDir("/incoming/sub")
			if tc.refuse != "" {
				srv.refuse[tc.refuse] = true
			}
			s, _ := srv.dial(context.Background())
			if err := s.ChangeDir("/incoming"); err != nil {
				t.Fatal(err)
			}

			got, err := (&Classifier{conn: &fixedSource{s: s}}).Classify(tc.path)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
			if cwd, _ := s.CurrentDir(); cwd != "/incoming" {
				t.Errorf("working directory changed to %s", cwd)
			}
		})
	}
}

func TestClassifyConnectionLoss(t *testing.T) {
	srv := newFakeServer()
	srv.addDir("/incoming/sub")
	srv.drop["CWD /incoming/sub"] = 1
	s, _ := srv.dial(context.Background())

	_, err := (&Classifier{conn: &fixedSource{s: s}}).Classify("/incoming/sub")
	if err == nil || IsRejected(err) {
		t.Fatalf("got %v, want a connection error", err)
	}
}

func TestProberCadence(t *testing.T) {
	srv := newFakeServer()
	s, _ := srv.dial(context.Background())
	p := NewProber(&fixedSource{s: s}, 3, zaptest.NewLogger(t))

	for i := 0; i < 10; i++ {
		if err := p.Tick(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if srv.noops != 3 {
		t.Errorf("noops=%d, want 3", srv.noops)
	}
}

func TestProberDisabled(t *testing.T) {
	srv := newFakeServer()
	s, _ := srv.dial(context.Background())
	p := NewProber(&fixedSource{s: s}, 0, zaptest.NewLogger(t))

	for i := 0; i < 10; i++ {
		if err := p.Tick(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if srv.noops != 0 {
		t.Errorf("noops=%d, want 0", srv.noops)
	}
}

func TestProberRefusedNoopIsIgnored(t *testing.T) {
	srv := newFakeServer()
	srv.refuse["NOOP"] = true
	s, _ := srv.dial(context.Background())
	src := &fixedSource{s: s}

	if err := NewProber(src, 1, zaptest.NewLogger(t)).Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if src.reconnects != 0 {
		t.Errorf("reconnects=%d, want 0", src.reconnects)
	}
}

func TestProberFailureReconnects(t *testing.T) {
	srv := newFakeServer()
	srv.drop["NOOP"] = 1
	s, _ := srv.dial(context.Background())
	src := &fixedSource{s: s}

	if err := NewProber(src, 1, zaptest.NewLogger(t)).Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if src.reconnects != 1 {
		t.Errorf("reconnects=%d, want 1", src.reconnects)
	}
}
