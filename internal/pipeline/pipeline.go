package pipeline

import (
	"context"
	"os/exec"

	"github.com/Ezrahel/auto-deploy-hng/internal/cleanup"
	"github.com/Ezrahel/auto-deploy-hng/internal/config"
	"github.com/Ezrahel/auto-deploy-hng/internal/deployer"
	"github.com/Ezrahel/auto-deploy-hng/internal/detect"
	"github.com/Ezrahel/auto-deploy-hng/internal/exitcode"
	"github.com/Ezrahel/auto-deploy-hng/internal/gitsync"
	"github.com/Ezrahel/auto-deploy-hng/internal/logger"
	"github.com/Ezrahel/auto-deploy-hng/internal/nginx"
	"github.com/Ezrahel/auto-deploy-hng/internal/provision"
	"github.com/Ezrahel/auto-deploy-hng/internal/sshx"
	"github.com/Ezrahel/auto-deploy-hng/internal/validate"
)

// Pipeline sequences the deployment stages strictly forward: any fatal error
// aborts the whole run immediately. The local stages (working copy, build
// descriptor) run before the first SSH connection, so a broken repository
// never costs a remote session. With the cleanup flag set, the teardown path
// replaces the deploy stages.
type Pipeline struct {
	log *logger.Logger

	// connect, ping, sync and inspect are swappable in tests.
	connect func(cfg *config.Config) (sshx.Runner, func() error, error)
	ping    func(ip string) error
	sync    func(cfg *config.Config, workDir string) error
	inspect func(workDir string) (*detect.Descriptor, error)
}

// New creates a Pipeline.
func New(log *logger.Logger) *Pipeline {
	p := &Pipeline{
		log:     log,
		connect: dialSSH,
		ping:    pingHost,
	}
	p.sync = func(cfg *config.Config, workDir string) error {
		return gitsync.New(p.log).EnsurePresent(workDir, cfg.AuthenticatedURL(), cfg.Branch)
	}
	p.inspect = func(workDir string) (*detect.Descriptor, error) {
		return detect.Inspect(workDir, p.log)
	}
	return p
}

// Run executes the full pipeline for one immutable configuration.
func (p *Pipeline) Run(ctx context.Context, cfg *config.Config) error {
	if cfg.Cleanup {
		runner, closeConn, err := p.probe(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeConn()
		cleanup.New(runner, p.log).Run(ctx, cfg)
		return nil
	}

	workDir := gitsync.WorkDir(cfg.ProjectName)
	if err := p.sync(cfg, workDir); err != nil {
		return err
	}

	desc, err := p.inspect(workDir)
	if err != nil {
		return err
	}

	runner, closeConn, err := p.probe(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeConn()

	if err := provision.New(runner, p.log).Prepare(ctx, cfg.SSHUser); err != nil {
		return err
	}

	if err := deployer.New(runner, p.log).Deploy(ctx, cfg, desc, workDir); err != nil {
		return err
	}

	if err := nginx.New(runner, p.log).Configure(ctx, cfg.ProjectName, cfg.AppPort); err != nil {
		return err
	}

	if err := validate.New(runner, p.log).Check(ctx, cfg, desc); err != nil {
		return err
	}

	p.log.Success("Deployment of %s complete: http://%s/", cfg.ProjectName, cfg.ServerIP)
	return nil
}

// probe checks reachability (best-effort) and SSH authentication (fatal),
// returning the connected runner used by every later stage.
func (p *Pipeline) probe(ctx context.Context, cfg *config.Config) (sshx.Runner, func() error, error) {
	plog := p.log.WithPrefix("connect")

	plog.Info("Pinging %s", cfg.ServerIP)
	if err := p.ping(cfg.ServerIP); err != nil {
		plog.Warning("Host did not answer ping (ICMP may be filtered): %v", err)
	} else {
		plog.Info("Host answered ping")
	}

	plog.Info("Testing SSH authentication as %s", cfg.SSHUser)
	runner, closeConn, err := p.connect(cfg)
	if err != nil {
		return nil, nil, exitcode.Fatal(exitcode.SSHAuthFailed, err,
			"cannot open an authenticated SSH session; fix credentials or network and re-run")
	}

	if _, err := runner.Run(ctx, sshx.Cmd("echo", "connected")); err != nil {
		closeConn()
		return nil, nil, exitcode.Fatal(exitcode.SSHAuthFailed, err, "SSH session test failed")
	}
	plog.Success("SSH connectivity verified")
	return runner, closeConn, nil
}

func dialSSH(cfg *config.Config) (sshx.Runner, func() error, error) {
	client := sshx.NewClient(sshx.ClientConfig{
		Host:    cfg.ServerIP,
		User:    cfg.SSHUser,
		KeyFile: cfg.SSHKeyPath,
	})
	if err := client.Connect(); err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func pingHost(ip string) error {
	return exec.Command("ping", "-c", "3", "-W", "2", ip).Run()
}
