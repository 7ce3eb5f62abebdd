package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"path"
	"strconv"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/config"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
)

// SFTPStore keeps files in a remote directory over one SSH connection.
type SFTPStore struct {
	ssh       *ssh.Client
	client    *sftp.Client
	remoteDir string
	log       logger.Logger
}

// NewSFTPStore dials the server and ensures the remote directory exists.
func NewSFTPStore(ctx context.Context, cfg config.SFTPConfig, log logger.Logger) (*SFTPStore, error) {
	hostKey, err := hostKeyCallback(cfg.KnownHostsFile, log)
	if err != nil {
		return nil, err
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: hostKey,
		Timeout:         cfg.DialTimeout,
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	sshClient, err := dialContext(ctx, addr, sshCfg)
	if err != nil {
		return nil, err
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close() //nolint:errcheck // client error takes precedence
		return nil, fmt.Errorf("sftp: new client: %w", err)
	}

	if err = client.MkdirAll(cfg.RemoteDir); err != nil {
		client.Close()    //nolint:errcheck // mkdir error takes precedence
		sshClient.Close() //nolint:errcheck // mkdir error takes precedence
		return nil, fmt.Errorf("sftp: mkdir %s: %w", cfg.RemoteDir, err)
	}

	log.Info("SFTP store initialized", logger.String("addr", addr), logger.String("remote_dir", cfg.RemoteDir))
	return &SFTPStore{ssh: sshClient, client: client, remoteDir: cfg.RemoteDir, log: log}, nil
}

func hostKeyCallback(knownHostsFile string, log logger.Logger) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		log.Warn("SFTP host key verification disabled; set SFTP_KNOWN_HOSTS to enable it")
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // opt-in via configuration
	}
	cb, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("sftp: load known hosts %s: %w", knownHostsFile, err)
	}
	return cb, nil
}

// dialContext dials in the background so ctx can abandon a hanging handshake.
func dialContext(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	type dialResult struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, cfg)
		ch <- dialResult{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				r.client.Close() //nolint:errcheck // abandoned connection
			}
		}()
		return nil, fmt.Errorf("sftp: dial canceled: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("sftp: dial %s: %w", addr, r.err)
		}
		return r.client, nil
	}
}

func (s *SFTPStore) remotePath(name string) string {
	return path.Join(s.remoteDir, name)
}

// Exists implements Store.
func (s *SFTPStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := s.client.Stat(s.remotePath(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("sftp: stat %s: %w", name, err)
}

// Put uploads to a temporary name and renames it into place.
func (s *SFTPStore) Put(ctx context.Context, name string, r io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := s.remotePath(name)
	if err := s.client.MkdirAll(path.Dir(target)); err != nil {
		return fmt.Errorf("sftp: mkdir for %s: %w", name, err)
	}

	tmp := target + ".part"
	dst, err := s.client.Create(tmp)
	if err != nil {
		return fmt.Errorf("sftp: create remote file: %w", err)
	}
	if _, err = io.Copy(dst, r); err != nil {
		dst.Close()          //nolint:errcheck // copy error takes precedence
		s.client.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("sftp: upload copy: %w", err)
	}
	if err = dst.Close(); err != nil {
		return fmt.Errorf("sftp: close remote file: %w", err)
	}
	if err = s.client.PosixRename(tmp, target); err != nil {
		return fmt.Errorf("sftp: rename %s: %w", name, err)
	}

	s.log.Debug("Uploaded file over SFTP", logger.String("path", target))
	return nil
}

// Close releases the SFTP session and its SSH connection.
func (s *SFTPStore) Close() error {
	return errors.Join(s.client.Close(), s.ssh.Close())
}
