// internal/ssh/ssh_client.go
package ssh

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	apperr "provisioner/internal/error"
	"provisioner/internal/models"
	"strconv"
	"strings"
	"sync"
	"time"

	scp "github.com/bramvdbogaerde/go-scp"
	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultKeepAlive = 30 * time.Second
)

// Options configures Dial.
type Options struct {
	Host string
	Port int
	User string
	Auth models.Auth
	// Password is used when neither the agent nor a key is available.
	Password string
	// KnownHostsPath defaults to ~/.ssh/known_hosts.
	KnownHostsPath string
	// Stdout and Stderr receive streamed command output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
	Logger *logrus.Entry
	// Timeout bounds the TCP connect and handshake.
	Timeout time.Duration
	// KeepAlive is the keepalive interval; negative disables it.
	KeepAlive time.Duration
}

// Client is an Executor backed by an SSH connection. Commands get their own
// session; file operations go over SFTP and whole-file uploads over SCP.
type Client struct {
	client    *ssh.Client
	sftp      *Files
	scp       scp.Client
	agentConn net.Conn
	stdout    io.Writer
	stderr    io.Writer
	log       *logrus.Entry

	stopChan  chan struct{}
	closeOnce sync.Once
}

var _ Executor = (*Client)(nil)

// HostKeyVerificationRequired is returned for a host missing from
// known_hosts when new keys are not accepted.
type HostKeyVerificationRequired struct {
	Host        string
	Fingerprint string
}

func (e *HostKeyVerificationRequired) Error() string {
	return fmt.Sprintf("host key verification required for %s (%s)", e.Host, e.Fingerprint)
}

// Dial connects and authenticates to the host described by opts.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Port == 0 {
		opts.Port = models.DefaultSSHPort
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.KeepAlive == 0 {
		opts.KeepAlive = defaultKeepAlive
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	log := opts.Logger.WithField("host", opts.Host)

	c := &Client{
		stdout:   opts.Stdout,
		stderr:   opts.Stderr,
		log:      log,
		stopChan: make(chan struct{}),
	}

	authMethods, err := c.authMethods(opts)
	if err != nil {
		c.closeAgent()
		return nil, err
	}

	knownHostsPath := opts.KnownHostsPath
	if knownHostsPath == "" {
		home, err := homedir.Dir()
		if err != nil {
			c.closeAgent()
			return nil, apperr.New(apperr.ConfigError, "could not get home directory", err)
		}
		knownHostsPath = filepath.Join(home, ".ssh", "known_hosts")
	}
	hostKeyCallback, err := newHostKeyCallback(knownHostsPath, opts.Auth.AcceptsNewHostKey(), log)
	if err != nil {
		c.closeAgent()
		return nil, err
	}

	// The handshake may not wrap the callback's error, so keep it here.
	var unknownHost *HostKeyVerificationRequired
	config := &ssh.ClientConfig{
		User: opts.User,
		Auth: authMethods,
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			err := hostKeyCallback(hostname, remote, key)
			errors.As(err, &unknownHost)
			return err
		},
		Timeout:         opts.Timeout,
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	dialer := net.Dialer{Timeout: opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.closeAgent()
		return nil, apperr.New(apperr.ConnectionError, fmt.Sprintf("failed to dial %s", addr), err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		c.closeAgent()
		if unknownHost != nil {
			return nil, apperr.New(apperr.ConnectionError, "unknown host key", unknownHost)
		}
		return nil, apperr.New(apperr.ConnectionError, fmt.Sprintf("failed to connect to %s", addr), err)
	}
	c.client = ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := sftp.NewClient(c.client)
	if err != nil {
		c.Close()
		return nil, apperr.New(apperr.ConnectionError, "failed to create SFTP client", err)
	}
	c.sftp = NewFiles(sftpClient)

	scpClient, err := scp.NewClientBySSH(c.client)
	if err != nil {
		c.Close()
		return nil, apperr.New(apperr.ConnectionError, "failed to create SCP client", err)
	}
	c.scp = scpClient

	if opts.KeepAlive > 0 {
		go c.keepAliveLoop(opts.KeepAlive)
	}

	log.WithField("user", opts.User).Debug("connected")
	return c, nil
}

func (c *Client) authMethods(opts Options) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if opts.Auth.UseAgent() {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				c.log.WithError(err).Warn("ssh-agent not reachable, skipping")
			} else {
				c.agentConn = conn
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}

	keyPath, err := opts.Auth.ResolvedKeyPath()
	if err != nil {
		return nil, apperr.New(apperr.ConfigError, "invalid key path", err)
	}
	if keyPath != "" {
		key, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, apperr.New(apperr.FileError, "failed to read SSH key", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				return nil, apperr.New(apperr.ConfigError, "SSH key is encrypted, load it into ssh-agent instead", err)
			}
			return nil, apperr.New(apperr.ConfigError, "failed to parse SSH key", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if opts.Password != "" {
		password := opts.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(methods) == 0 {
		return nil, apperr.Newf(apperr.ConfigError, "no SSH authentication method available for %s@%s", opts.User, opts.Host)
	}
	return methods, nil
}

// newHostKeyCallback verifies host keys against path. Unknown hosts are
// rejected, or appended to path when acceptNew is set. A changed key is
// always rejected.
func newHostKeyCallback(path string, acceptNew bool, log *logrus.Entry) (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if !acceptNew {
			return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
				return &HostKeyVerificationRequired{Host: hostname, Fingerprint: ssh.FingerprintSHA256(key)}
			}, nil
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, apperr.New(apperr.FileError, "failed to create known_hosts directory", err)
		}
		if err := os.WriteFile(path, nil, 0600); err != nil {
			return nil, apperr.New(apperr.FileError, "failed to create known_hosts file", err)
		}
	}

	verify, err := knownhosts.New(path)
	if err != nil {
		return nil, apperr.New(apperr.FileError, "failed to read known_hosts", err)
	}

	var mu sync.Mutex
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
			return err
		}
		fingerprint := ssh.FingerprintSHA256(key)
		if !acceptNew {
			return &HostKeyVerificationRequired{Host: hostname, Fingerprint: fingerprint}
		}

		mu.Lock()
		defer mu.Unlock()
		if err := appendKnownHost(path, hostname, key); err != nil {
			return err
		}
		log.WithField("fingerprint", fingerprint).Warn("accepted new host key")
		return nil
	}, nil
}

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)

	var existing []string
	if content, err := os.ReadFile(path); err == nil {
		scanner := bufio.NewScanner(bytes.NewReader(content))
		for scanner.Scan() {
			l := scanner.Text()
			if l == line {
				// Accepted earlier in this process; the verifier only
				// knows what was on disk when it was built.
				return nil
			}
			if strings.TrimSpace(l) != "" {
				existing = append(existing, l)
			}
		}
	}
	content := strings.Join(append(existing, line), "\n") + "\n"

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write known_hosts file %s: %v", path, err)
	}
	return nil
}

// Run executes cmd, streaming output to the configured writers.
func (c *Client) Run(ctx context.Context, cmd Command) error {
	return c.exec(ctx, cmd, c.stdout)
}

// Output executes cmd and returns its stdout.
func (c *Client) Output(ctx context.Context, cmd Command) (string, error) {
	var stdout bytes.Buffer
	if err := c.exec(ctx, cmd, &stdout); err != nil {
		return "", err
	}
	return stdout.String(), nil
}

func (c *Client) exec(ctx context.Context, cmd Command, stdout io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	session, err := c.client.NewSession()
	if err != nil {
		return apperr.New(apperr.ConnectionError, "failed to create session", err)
	}
	defer session.Close()

	line := cmd.Render()
	c.log.WithField("command", cmd.Script()).Debug("run")

	tail := newTailBuffer(maxOutputTail)
	session.Stdout = io.MultiWriter(stdout, tail)
	session.Stderr = io.MultiWriter(c.stderr, tail)

	if err := session.Run(line); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return apperr.NewCommandError(cmd.Script(), exitErr.ExitStatus(), tail.String())
		}
		return apperr.New(apperr.ConnectionError, fmt.Sprintf("command %q did not complete", cmd.Script()), err)
	}
	return nil
}

func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	return c.sftp.Exists(ctx, path)
}

func (c *Client) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return c.sftp.ReadFile(ctx, path)
}

func (c *Client) Append(ctx context.Context, path string, lines ...string) error {
	return c.sftp.Append(ctx, path, lines...)
}

// WriteFile uploads data over SCP, replacing path.
func (c *Client) WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error {
	perm := fmt.Sprintf("%04o", mode.Perm())
	c.log.WithFields(logrus.Fields{
		"path": path,
		"size": humanize.Bytes(uint64(len(data))),
		"mode": perm,
	}).Debug("upload")
	if err := c.scp.CopyFile(ctx, bytes.NewReader(data), path, perm); err != nil {
		return apperr.New(apperr.FileError, fmt.Sprintf("failed to upload %s", path), err)
	}
	return nil
}

// keepAliveLoop sends keepalive requests so long stages such as pip
// installs do not get dropped by idle timeouts.
func (c *Client) keepAliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				c.log.WithError(err).Warn("keepalive failed")
				return
			}
		case <-c.stopChan:
			return
		}
	}
}

func (c *Client) closeAgent() {
	if c.agentConn != nil {
		c.agentConn.Close()
		c.agentConn = nil
	}
}

// Close stops the keepalive loop and closes SFTP, the connection and the
// agent socket.
func (c *Client) Close() error {
	var errs []string
	c.closeOnce.Do(func() {
		close(c.stopChan)

		if c.sftp != nil {
			if err := c.sftp.Close(); err != nil {
				errs = append(errs, fmt.Sprintf("sftp close error: %v", err))
			}
		}
		if c.client != nil {
			if err := c.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, fmt.Sprintf("client close error: %v", err))
			}
		}
		c.closeAgent()
	})

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
