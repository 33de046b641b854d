package provision

import (
	"context"
	"strings"

	"github.com/Ezrahel/auto-deploy-hng/internal/exitcode"
	"github.com/Ezrahel/auto-deploy-hng/internal/logger"
	"github.com/Ezrahel/auto-deploy-hng/internal/sshx"
)

// Provisioner idempotently installs and starts Docker, the Compose plugin
// and Nginx on the target host. Every install check short-circuits when the
// tool is already present, so re-running against a provisioned host is a
// no-op besides the index refresh and version verification.
type Provisioner struct {
	runner sshx.Runner
	log    *logger.Logger
}

// New creates a Provisioner running commands through runner.
func New(runner sshx.Runner, log *logger.Logger) *Provisioner {
	return &Provisioner{runner: runner, log: log.WithPrefix("provision")}
}

// Prepare walks the full provisioning sequence. Each install step is
// individually fatal with its own exit code; group membership and service
// enablement are best-effort.
func (p *Provisioner) Prepare(ctx context.Context, sshUser string) error {
	p.log.Info("Refreshing package index")
	if _, err := p.runner.Run(ctx, sshx.Cmd("apt-get", "update", "-y").WithSudo()); err != nil {
		return exitcode.Fatal(exitcode.AptUpdateFailed, err, "package index refresh failed")
	}

	if err := p.installDocker(ctx); err != nil {
		return err
	}
	if err := p.installCompose(ctx); err != nil {
		return err
	}
	if err := p.installNginx(ctx); err != nil {
		return err
	}

	p.bestEffort(ctx, sshx.Cmd("usermod", "-aG", "docker", sshUser).WithSudo(),
		"add %s to docker group", sshUser)
	p.bestEffort(ctx, sshx.Cmd("systemctl", "enable", "--now", "docker").WithSudo(),
		"enable docker service")
	p.bestEffort(ctx, sshx.Cmd("systemctl", "enable", "--now", "nginx").WithSudo(),
		"enable nginx service")

	return p.verify(ctx)
}

func (p *Provisioner) installDocker(ctx context.Context) error {
	if p.installed(ctx, sshx.Cmd("command", "-v", "docker")) {
		p.log.Info("Docker already installed, skipping")
		return nil
	}
	p.log.Info("Installing Docker")
	install := sshx.Cmd("sh", "-c", "curl -fsSL https://get.docker.com | sudo sh")
	if _, err := p.runner.Run(ctx, install); err != nil {
		return exitcode.Fatal(exitcode.DockerInstallFailed, err, "docker installation failed")
	}
	p.log.Success("Docker installed")
	return nil
}

func (p *Provisioner) installCompose(ctx context.Context) error {
	if p.installed(ctx, sshx.Cmd("docker", "compose", "version")) {
		p.log.Info("Docker Compose already installed, skipping")
		return nil
	}
	p.log.Info("Installing Docker Compose plugin")
	install := sshx.Cmd("apt-get", "install", "-y", "docker-compose-plugin").WithSudo()
	if _, err := p.runner.Run(ctx, install); err != nil {
		return exitcode.Fatal(exitcode.ComposeInstallFailed, err, "compose installation failed")
	}
	p.log.Success("Docker Compose installed")
	return nil
}

func (p *Provisioner) installNginx(ctx context.Context) error {
	if p.installed(ctx, sshx.Cmd("command", "-v", "nginx")) {
		p.log.Info("Nginx already installed, skipping")
		return nil
	}
	p.log.Info("Installing Nginx")
	install := sshx.Cmd("apt-get", "install", "-y", "nginx").WithSudo()
	if _, err := p.runner.Run(ctx, install); err != nil {
		return exitcode.Fatal(exitcode.NginxInstallFailed, err, "nginx installation failed")
	}
	p.log.Success("Nginx installed")
	return nil
}

// verify prints installed versions; a failing remote segment here is fatal
// because it means provisioning left the host in a bad state.
func (p *Provisioner) verify(ctx context.Context) error {
	tools := []sshx.Command{
		sshx.Cmd("docker", "--version"),
		sshx.Cmd("docker", "compose", "version"),
		sshx.Cmd("nginx", "-v"),
	}
	for _, tool := range tools {
		res, err := p.runner.Run(ctx, tool)
		if err != nil {
			return exitcode.Fatal(exitcode.VerifyToolsFailed, err,
				"installed-tool verification failed (%s)", tool)
		}
		version := res.Stdout
		if version == "" {
			// nginx -v writes to stderr
			version = res.Stderr
		}
		p.log.Info("%s", strings.TrimSpace(version))
	}
	p.log.Success("Remote environment ready")
	return nil
}

func (p *Provisioner) installed(ctx context.Context, check sshx.Command) bool {
	res, err := p.runner.Run(ctx, check)
	return err == nil && res.ExitCode == 0
}

func (p *Provisioner) bestEffort(ctx context.Context, cmd sshx.Command, format string, args ...interface{}) {
	if _, err := p.runner.Run(ctx, cmd); err != nil {
		p.log.Warning("Non-critical step failed ("+format+"): %v", append(args, err)...)
		return
	}
	p.log.Debug("ok: "+format, args...)
}
