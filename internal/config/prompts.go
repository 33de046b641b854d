package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/Ezrahel/auto-deploy-hng/internal/exitcode"
	"github.com/Ezrahel/auto-deploy-hng/internal/logger"
)

// Collector gathers the deployment configuration interactively, honoring
// environment overrides first. Credential input is hidden when stdin is a
// terminal.
type Collector struct {
	reader *bufio.Reader
	out    io.Writer
	log    *logger.Logger

	// readSecret is swappable in tests; defaults to a hidden terminal read.
	readSecret func() (string, error)
}

// NewCollector builds a collector reading from in and prompting on out.
func NewCollector(in io.Reader, out io.Writer, log *logger.Logger) *Collector {
	c := &Collector{
		reader: bufio.NewReader(in),
		out:    out,
		log:    log.WithPrefix("params"),
	}
	c.readSecret = c.readSecretDefault
	return c
}

// Collect produces the validated, immutable Config for this invocation.
func (c *Collector) Collect(cleanup bool) (*Config, error) {
	c.log.Info("Collecting deployment parameters (environment overrides apply)")

	cfg := &Config{Cleanup: cleanup}

	cfg.RepoURL = c.value(EnvRepoURL, "Git repository URL (e.g. https://github.com/you/app.git)", "")
	cfg.GitToken = c.secret(EnvGitToken, "Git access token (input hidden)")
	cfg.Branch = c.value(EnvBranch, "Branch to deploy", DefaultBranch)
	if cfg.Branch == "" {
		cfg.Branch = DefaultBranch
	}
	cfg.SSHUser = c.value(EnvSSHUser, "SSH username on the server", "")
	cfg.ServerIP = c.value(EnvServerIP, "Server IPv4 address", "")
	cfg.SSHKeyPath = expandHome(c.value(EnvSSHKey, "Path to SSH private key", "~/.ssh/id_rsa"))

	portStr := c.value(EnvAppPort, "Application port", "3000")
	port, err := ParsePort(portStr)
	if err != nil {
		return nil, exitcode.Fatal(exitcode.BadPort, err, "invalid application port %q", portStr)
	}
	cfg.AppPort = port

	cfg.ProjectName = DeriveProjectName(cfg.RepoURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c.log.Success("Parameters collected for project %q (%s@%s, port %d)",
		cfg.ProjectName, cfg.SSHUser, cfg.ServerIP, cfg.AppPort)
	return cfg, nil
}

func (c *Collector) value(envKey, prompt, def string) string {
	if v := os.Getenv(envKey); v != "" {
		c.log.Debug("%s taken from environment", envKey)
		return trimAnswer(v)
	}
	if def != "" {
		fmt.Fprintf(c.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(c.out, "%s: ", prompt)
	}
	input, _ := c.reader.ReadString('\n')
	input = trimAnswer(input)
	if input == "" || (def != "" && strings.TrimSpace(input) == "") {
		return def
	}
	return input
}

func (c *Collector) secret(envKey, prompt string) string {
	if v := os.Getenv(envKey); v != "" {
		c.log.Debug("%s taken from environment", envKey)
		return trimAnswer(v)
	}
	fmt.Fprintf(c.out, "%s: ", prompt)
	s, err := c.readSecret()
	fmt.Fprintln(c.out)
	if err != nil {
		return ""
	}
	return trimAnswer(s)
}

// trimAnswer trims surrounding whitespace from an answer but keeps a
// whitespace-only answer intact, so validation can reject it with the
// blank-field code instead of mistaking it for an empty one.
func trimAnswer(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if t := strings.TrimSpace(s); t != "" {
		return t
	}
	return s
}

func (c *Collector) readSecretDefault() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		return string(b), err
	}
	// non-terminal stdin (tests, pipes): plain line read
	line, err := c.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + p[1:]
		}
	}
	return p
}
