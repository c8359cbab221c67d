package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

type SFTPSessionFactory struct{}

func (f *SFTPSessionFactory) Accept(protocol string) bool { return protocol == "sftp" }

func (f *SFTPSessionFactory) Create(ctx context.Context, cfg *Config, creds *Credentials) (Session, error) {
	return NewSFTPSession(ctx, cfg, creds)
}

func (f *SFTPSessionFactory) Name() string { return "sftp" }

// SFTPSession emulates an FTP working directory on top of sftp, which has
// none, so directory probing behaves the same for both protocols.
type SFTPSession struct {
	ssh    *ssh.Client
	client *sftp.Client
	cwd    string
}

// knownHosts stores already verified host fingerprints
var (
	knownHosts   = make(map[string]string)
	knownHostsMu sync.Mutex
)

var interactiveHostKeyCallback = func(hostname string, remote net.Addr, key ssh.PublicKey) error {
	fingerprint := ssh.FingerprintSHA256(key)

	knownHostsMu.Lock()
	storedFingerprint, exists := knownHosts[hostname]
	knownHostsMu.Unlock()
	if exists && storedFingerprint == fingerprint {
		return nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("unknown host key %s for %s; set host_key or known_hosts", fingerprint, hostname)
	}

	fmt.Printf("\nThe authenticity of host '%s' can't be established.\n", hostname)
	fmt.Printf("%s key fingerprint is %s\n", key.Type(), fingerprint)
	fmt.Print("Are you sure you want to continue connecting (yes/no)? ")

	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read user input: %w", err)
	}

	response = strings.TrimSpace(strings.ToLower(response))
	if response == "yes" || response == "y" {
		// Remember it so reconnects do not ask again
		knownHostsMu.Lock()
		knownHosts[hostname] = fingerprint
		knownHostsMu.Unlock()
		return nil
	}

	return fmt.Errorf("host key verification rejected by user")
}

func pinnedHostKeyCallback(want string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if got := ssh.FingerprintSHA256(key); got != want {
			return fmt.Errorf("host key mismatch for %s: got %s, want %s", hostname, got, want)
		}
		return nil
	}
}

func hostKeyCallback(cfg *Config) (ssh.HostKeyCallback, error) {
	switch {
	case cfg.HostKey != "":
		return pinnedHostKeyCallback(cfg.HostKey), nil
	case cfg.KnownHosts != "":
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, errors.Wrapf(err, "reading known hosts %s", cfg.KnownHosts)
		}
		return cb, nil
	default:
		return interactiveHostKeyCallback, nil
	}
}

func sshAuth(cfg *Config, creds *Credentials) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if cfg.KeyFile != "" {
		keyBytes, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read private key")
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse private key")
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if len(creds.password) > 0 {
		methods = append(methods, ssh.Password(string(creds.password)))
	}
	return methods, nil
}

func NewSFTPSession(ctx context.Context, cfg *Config, creds *Credentials) (*SFTPSession, error) {
	auth, err := sshAuth(cfg, creds)
	if err != nil {
		return nil, err
	}
	hostKey, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            creds.username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.Timeout,
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	conn, err := timeoutDialer(cfg.Timeout)("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", addr)
	}
	if err := ctx.Err(); err != nil {
		conn.Close()
		return nil, err
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "ssh handshake")
	}
	client := ssh.NewClient(c, chans, reqs)

	sc, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to start sftp subsystem")
	}

	cwd, err := sc.Getwd()
	if err != nil {
		sc.Close()
		client.Close()
		return nil, errors.Wrap(err, "failed to resolve home directory")
	}

	return &SFTPSession{ssh: client, client: sc, cwd: cwd}, nil
}

// sftpRejected: a status reply other than SSH_FX_NO_CONNECTION (6) and
// SSH_FX_CONNECTION_LOST (7), or a not-exist/permission error.
func sftpRejected(err error) bool {
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return true
	}
	var status *sftp.StatusError
	return errors.As(err, &status) && status.Code != 6 && status.Code != 7
}

func (s *SFTPSession) abs(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(s.cwd, p)
}

func (s *SFTPSession) NameList(p string) ([]string, error) {
	infos, err := s.client.ReadDir(s.abs(p))
	if err != nil {
		return nil, remoteError("readdir", p, err, sftpRejected)
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	return names, nil
}

func (s *SFTPSession) ChangeDir(p string) error {
	target := s.abs(p)
	fi, err := s.client.Stat(target)
	if err != nil {
		return remoteError("stat", p, err, sftpRejected)
	}
	if !fi.IsDir() {
		return &RemoteError{Op: "chdir", Path: p, Err: errors.New("not a directory"), Rejected: true}
	}
	s.cwd = target
	return nil
}

func (s *SFTPSession) CurrentDir() (string, error) {
	return s.cwd, nil
}

// Binary is a no-op: sftp transfers are always byte exact.
func (s *SFTPSession) Binary() error { return nil }

func (s *SFTPSession) FileSize(p string) (int64, error) {
	fi, err := s.client.Stat(s.abs(p))
	if err != nil {
		return 0, remoteError("stat", p, err, sftpRejected)
	}
	return fi.Size(), nil
}

func (s *SFTPSession) Retr(p string) (io.ReadCloser, error) {
	f, err := s.client.Open(s.abs(p))
	if err != nil {
		return nil, remoteError("open", p, err, sftpRejected)
	}
	return f, nil
}

func (s *SFTPSession) Delete(p string) error {
	return remoteError("remove", p, s.client.Remove(s.abs(p)), sftpRejected)
}

func (s *SFTPSession) RemoveDir(p string) error {
	return remoteError("rmdir", p, s.client.RemoveDirectory(s.abs(p)), sftpRejected)
}

func (s *SFTPSession) NoOp() error {
	_, _, err := s.ssh.SendRequest("keepalive@openssh.com", true, nil)
	return remoteError("keepalive", "", err, func(error) bool { return false })
}

func (s *SFTPSession) Quit() error {
	var result *multierror.Error
	if err := s.client.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.ssh.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
