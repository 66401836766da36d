package sdr

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/crypto/ssh"
)

// SSHConfig describes how to reach the radio's Linux shell.
type SSHConfig struct {
	Host      string
	User      string
	Password  string
	KeyPath   string
	Port      int
	SysfsRoot string
	// DialRetries bounds reconnect attempts; 0 means a single attempt.
	DialRetries uint64
}

// SSHAttributeIO reads and writes IIO attributes through sysfs over SSH.
// The connection is opened lazily and reused.
type SSHAttributeIO struct {
	mu     sync.Mutex
	cfg    SSHConfig
	client *ssh.Client
}

// NewSSHAttributeIO validates configuration and fills in defaults.
func NewSSHAttributeIO(cfg SSHConfig) (*SSHAttributeIO, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh host is required")
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.SysfsRoot == "" {
		cfg.SysfsRoot = "/sys/bus/iio/devices"
	}

	return &SSHAttributeIO{cfg: cfg}, nil
}

// WriteAttribute writes value to the sysfs file backing device/channel/attr.
func (w *SSHAttributeIO) WriteAttribute(ctx context.Context, device, channel, attr, value string) error {
	// printf avoids shell interpretation of the value contents
	cmd := fmt.Sprintf("printf %s > %s", shellQuote(value), w.attributePath(device, channel, attr))
	if _, err := w.run(ctx, cmd); err != nil {
		return fmt.Errorf("write sysfs attribute via ssh: %w", err)
	}
	return nil
}

// ReadAttribute returns the trimmed contents of the attribute file.
func (w *SSHAttributeIO) ReadAttribute(ctx context.Context, device, channel, attr string) (string, error) {
	out, err := w.run(ctx, "cat "+shellQuote(w.attributePath(device, channel, attr)))
	if err != nil {
		return "", fmt.Errorf("read sysfs attribute via ssh: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Close drops the cached connection.
func (w *SSHAttributeIO) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client == nil {
		return nil
	}
	err := w.client.Close()
	w.client = nil
	return err
}

func (w *SSHAttributeIO) run(ctx context.Context, cmd string) (string, error) {
	client, err := w.dial(ctx)
	if err != nil {
		return "", err
	}

	session, err := client.NewSession()
	if err != nil {
		// stale connection; the next call redials
		w.Close()
		return "", fmt.Errorf("create ssh session: %w", err)
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout
	if err := session.Run(cmd); err != nil {
		return "", err
	}
	return stdout.String(), nil
}

func (w *SSHAttributeIO) dial(ctx context.Context) (*ssh.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		return w.client, nil
	}

	config, err := w.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(w.cfg.Host, fmt.Sprint(w.cfg.Port))
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), w.cfg.DialRetries), ctx)
	err = backoff.Retry(func() error {
		dialer := net.Dialer{}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("dial ssh: %w", err)
		}
		clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create ssh client: %w", err)
		}
		w.client = ssh.NewClient(clientConn, chans, reqs)
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return w.client, nil
}

func (w *SSHAttributeIO) clientConfig() (*ssh.ClientConfig, error) {
	auth := []ssh.AuthMethod{}
	if w.cfg.Password != "" {
		auth = append(auth, ssh.Password(w.cfg.Password))
	}
	if w.cfg.KeyPath != "" {
		key, err := os.ReadFile(w.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh password or key configured")
	}

	return &ssh.ClientConfig{
		User:            w.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}, nil
}

func (w *SSHAttributeIO) attributePath(device, channel, attr string) string {
	base := filepath.Join(w.cfg.SysfsRoot, device)
	if channel == "" {
		return filepath.Join(base, attr)
	}

	prefix := "in"
	lower := strings.ToLower(channel)
	if strings.HasPrefix(lower, "altvoltage") || strings.HasPrefix(lower, "out_") {
		prefix = "out"
	}

	return filepath.Join(base, fmt.Sprintf("%s_%s_%s", prefix, channel, attr))
}

// shellQuote wraps value in single quotes with embedded quotes escaped.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
