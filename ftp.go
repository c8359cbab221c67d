package main

import (
	"context"
	"io"
	"net"
	"net/textproto"
	"strconv"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
)

type FTPSessionFactory struct{}

func (f *FTPSessionFactory) Accept(protocol string) bool {
	return protocol == "ftp"
}

func (f *FTPSessionFactory) Create(ctx context.Context, cfg *Config, creds *Credentials) (Session, error) {
	return NewFTPSession(ctx, cfg, creds)
}

func (f *FTPSessionFactory) Name() string {
	return "ftp"
}

type FTPSession struct {
	client *ftp.ServerConn
}

func NewFTPSession(ctx context.Context, cfg *Config, creds *Credentials) (*FTPSession, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(cfg.Timeout),
		ftp.DialWithDialFunc(timeoutDialer(cfg.Timeout)),
	}
	if cfg.protocolLog != nil {
		opts = append(opts, ftp.DialWithDebugOutput(cfg.protocolLog))
	}

	c, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}

	err = c.Login(creds.username, string(creds.password))
	if err != nil {
		c.Quit() // Close connection on login failure
		return nil, errors.Wrapf(err, "login as %s", creds.username)
	}

	return &FTPSession{client: c}, nil
}

// ftpRejected: 450 (file unavailable) and every permanent 5xx reply. 421 and
// the remaining 4xx codes mean the control or data channel is gone.
func ftpRejected(err error) bool {
	var tpErr *textproto.Error
	if !errors.As(err, &tpErr) {
		return false
	}
	return tpErr.Code == 450 || tpErr.Code >= 500
}

func (f *FTPSession) NameList(p string) ([]string, error) {
	names, err := f.client.NameList(p)
	return nameListResult(p, names, err)
}

// nameListResult treats 450 on NLST as an empty directory: servers such as
// ProFTPD answer "450 No files found" instead of an empty list. If the path
// is really missing the following RMD is refused and the directory is kept.
func nameListResult(p string, names []string, err error) ([]string, error) {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code == 450 {
		return nil, nil
	}
	return names, remoteError("NLST", p, err, ftpRejected)
}

func (f *FTPSession) ChangeDir(p string) error {
	return remoteError("CWD", p, f.client.ChangeDir(p), ftpRejected)
}

func (f *FTPSession) CurrentDir() (string, error) {
	dir, err := f.client.CurrentDir()
	return dir, remoteError("PWD", "", err, ftpRejected)
}

func (f *FTPSession) Binary() error {
	return remoteError("TYPE", "", f.client.Type(ftp.TransferTypeBinary), ftpRejected)
}

func (f *FTPSession) FileSize(p string) (int64, error) {
	size, err := f.client.FileSize(p)
	return size, remoteError("SIZE", p, err, ftpRejected)
}

func (f *FTPSession) Retr(p string) (io.ReadCloser, error) {
	r, err := f.client.Retr(p)
	if err != nil {
		return nil, remoteError("RETR", p, err, ftpRejected)
	}
	return &ftpResponse{Response: r, path: p}, nil
}

func (f *FTPSession) Delete(p string) error {
	return remoteError("DELE", p, f.client.Delete(p), ftpRejected)
}

func (f *FTPSession) RemoveDir(p string) error {
	return remoteError("RMD", p, f.client.RemoveDir(p), ftpRejected)
}

func (f *FTPSession) NoOp() error {
	return remoteError("NOOP", "", f.client.NoOp(), ftpRejected)
}

func (f *FTPSession) Quit() error {
	return f.client.Quit()
}

// ftpResponse reports data channel failures as remote errors. Close reads
// the final transfer reply, so it can fail after every byte was received.
type ftpResponse struct {
	*ftp.Response
	path string
}

func (r *ftpResponse) Read(b []byte) (int, error) {
	n, err := r.Response.Read(b)
	if err != nil && err != io.EOF {
		return n, remoteError("RETR", r.path, err, ftpRejected)
	}
	return n, err
}

func (r *ftpResponse) Close() error {
	return remoteError("RETR", r.path, r.Response.Close(), ftpRejected)
}
