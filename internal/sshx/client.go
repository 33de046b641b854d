package sshx

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// Runner executes structured commands on the deployment target. Pipeline
// components depend on this interface so they can be exercised against a
// fake in tests.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Result captures one remote command round trip.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ClientConfig describes how to reach the target host.
type ClientConfig struct {
	Host        string
	Port        int
	User        string
	KeyFile     string
	DialTimeout time.Duration
}

// Client is an SSH runner opening one session per command, mirroring the
// one-round-trip-per-step execution model of the pipeline.
type Client struct {
	config ClientConfig
	conn   *ssh.Client
}

// NewClient creates an unconnected client.
func NewClient(config ClientConfig) *Client {
	if config.Port == 0 {
		config.Port = 22
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}
	return &Client{config: config}
}

// Connect dials the host and authenticates with the configured key file.
// The dial timeout bounds connection establishment only; established
// sessions block until the remote command finishes.
func (c *Client) Connect() error {
	key, err := os.ReadFile(c.config.KeyFile)
	if err != nil {
		return fmt.Errorf("read key file %s: %w", c.config.KeyFile, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}

	cfg := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		Timeout:         c.config.DialTimeout,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	addr := net.JoinHostPort(c.config.Host, fmt.Sprintf("%d", c.config.Port))
	conn, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	c.conn = conn
	return nil
}

// Run executes cmd in a fresh session and captures its output. A non-zero
// remote exit status is returned as an error alongside the populated Result
// so best-effort callers can inspect and move on.
func (c *Client) Run(ctx context.Context, cmd Command) (*Result, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("ssh connection not established")
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr strings.Builder
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd.Render()) }()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	case err = <-done:
	}

	result := &Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			result.ExitCode = exitErr.ExitStatus()
		} else {
			result.ExitCode = 1
		}
		return result, fmt.Errorf("remote command %q: %w", cmd.Render(), err)
	}
	return result, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
