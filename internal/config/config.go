package config

import (
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/Ezrahel/auto-deploy-hng/internal/exitcode"
)

// Config is the immutable deployment configuration collected once at startup
// and threaded, read-only, through every pipeline stage.
type Config struct {
	RepoURL     string
	GitToken    string
	Branch      string
	SSHUser     string
	ServerIP    string
	SSHKeyPath  string
	AppPort     int
	ProjectName string
	Cleanup     bool
}

// Environment override variables. Any of these short-circuits the
// corresponding interactive prompt.
const (
	EnvRepoURL  = "AUTODEPLOY_REPO_URL"
	EnvGitToken = "AUTODEPLOY_GIT_TOKEN"
	EnvBranch   = "AUTODEPLOY_BRANCH"
	EnvSSHUser  = "AUTODEPLOY_SSH_USER"
	EnvServerIP = "AUTODEPLOY_SERVER_IP"
	EnvSSHKey   = "AUTODEPLOY_SSH_KEY"
	EnvAppPort  = "AUTODEPLOY_APP_PORT"
)

const DefaultBranch = "main"

// Validate checks every invariant and returns a PipelineError carrying the
// dedicated parameter-validation exit code for the first violated one.
func (c *Config) Validate() error {
	fields := []struct {
		value string
		code  exitcode.Code
		name  string
	}{
		{c.RepoURL, exitcode.EmptyRepoURL, "repository URL"},
		{c.GitToken, exitcode.EmptyCredential, "git access token"},
		{c.SSHUser, exitcode.EmptyUser, "SSH username"},
	}
	for _, f := range fields {
		if f.value == "" {
			return exitcode.Fatal(f.code, nil, "%s must not be empty", f.name)
		}
		if strings.TrimSpace(f.value) == "" {
			return exitcode.Fatal(exitcode.BlankField, nil, "%s must not be whitespace only", f.name)
		}
	}

	if err := ValidateIPv4(c.ServerIP); err != nil {
		return exitcode.Fatal(exitcode.BadServerIP, err, "server address %q is not a valid IPv4 address", c.ServerIP)
	}

	if err := ValidateKeyFile(c.SSHKeyPath); err != nil {
		return exitcode.Fatal(exitcode.MissingKeyFile, err, "SSH key file %q is not readable", c.SSHKeyPath)
	}

	if c.AppPort < 1 || c.AppPort > 65535 {
		return exitcode.Fatal(exitcode.BadPort, nil, "application port %d is outside [1, 65535]", c.AppPort)
	}

	if c.ProjectName == "" || !validProjectName(c.ProjectName) {
		return exitcode.Fatal(exitcode.BadProjectName, nil, "cannot derive a usable project name from %q", c.RepoURL)
	}
	return nil
}

// ValidateIPv4 accepts dotted-quad IPv4 addresses only.
func ValidateIPv4(ip string) error {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil || strings.Count(ip, ".") != 3 {
		return fmt.Errorf("invalid IPv4 address: %s", ip)
	}
	return nil
}

// ValidateKeyFile checks that the key path exists and is readable.
func ValidateKeyFile(keyPath string) error {
	f, err := os.Open(keyPath)
	if err != nil {
		return err
	}
	return f.Close()
}

// ParsePort parses a TCP port in [1, 65535].
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("port must be numeric: %q", s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d outside [1, 65535]", port)
	}
	return port, nil
}

// DeriveProjectName extracts the repository basename with any .git suffix
// stripped. The result names the container, image, nginx site and remote
// directory.
func DeriveProjectName(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	// scp-style git URLs (git@host:repo) carry the repo after the colon
	if i := strings.LastIndex(trimmed, ":"); i >= 0 && !strings.Contains(trimmed[i:], "/") {
		trimmed = trimmed[i+1:]
	}
	name := path.Base(trimmed)
	if name == "." || name == "/" || name == "" {
		return ""
	}
	return name
}

// validProjectName restricts names to characters safe for container names,
// nginx site filenames and remote paths.
func validProjectName(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return name != "." && name != ".."
}

// AuthenticatedURL injects the access token into an https clone URL. The
// returned value is passed to git only and never logged.
func (c *Config) AuthenticatedURL() string {
	if c.GitToken == "" || !strings.HasPrefix(c.RepoURL, "https://") {
		return c.RepoURL
	}
	return "https://" + c.GitToken + "@" + strings.TrimPrefix(c.RepoURL, "https://")
}
