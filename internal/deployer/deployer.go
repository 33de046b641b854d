package deployer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Ezrahel/auto-deploy-hng/internal/config"
	"github.com/Ezrahel/auto-deploy-hng/internal/detect"
	"github.com/Ezrahel/auto-deploy-hng/internal/exitcode"
	"github.com/Ezrahel/auto-deploy-hng/internal/logger"
	"github.com/Ezrahel/auto-deploy-hng/internal/sshx"
)

// transferExcludes keeps version-control metadata, dependency caches and
// secret-bearing env files off the target host.
var transferExcludes = []string{".git", "node_modules", ".env"}

const logTailLines = "20"

// Deployer mirrors the working copy to the target host and converges it to
// exactly one running instance of the project.
type Deployer struct {
	runner sshx.Runner
	log    *logger.Logger

	// rsync is swappable in tests.
	rsync func(args ...string) (string, error)
}

// New creates a Deployer.
func New(runner sshx.Runner, log *logger.Logger) *Deployer {
	d := &Deployer{runner: runner, log: log.WithPrefix("deploy")}
	d.rsync = runRsync
	return d
}

// RemoteDir is the project directory under the remote user's home. SSH
// sessions start in the home directory, so the path stays relative and
// needs no tilde expansion.
func RemoteDir(projectName string) string {
	return projectName
}

// Deploy runs the executor sequence: remote directory creation, file mirror,
// best-effort teardown of any prior deployment, then the build-mode dispatch
// and a log tail. Teardown-first makes re-invocation converge to a single
// running instance instead of stacking duplicates.
func (d *Deployer) Deploy(ctx context.Context, cfg *config.Config, desc *detect.Descriptor, workDir string) error {
	remoteDir := RemoteDir(cfg.ProjectName)

	d.log.Info("Creating remote directory %s", remoteDir)
	if _, err := d.runner.Run(ctx, sshx.Cmd("mkdir", "-p", remoteDir)); err != nil {
		return exitcode.Fatal(exitcode.RemoteMkdirFailed, err, "could not create %s on the server", remoteDir)
	}

	if err := d.transfer(cfg, workDir, remoteDir); err != nil {
		return err
	}

	d.teardown(ctx, cfg.ProjectName, remoteDir)

	var err error
	switch desc.Mode {
	case detect.ComposeStack:
		err = d.composeUp(ctx, remoteDir)
	default:
		err = d.runSingleImage(ctx, cfg, remoteDir)
	}
	if err != nil {
		return err
	}

	d.tailLogs(ctx, cfg.ProjectName, remoteDir, desc.Mode)
	return nil
}

// transfer mirrors the working copy with rsync over ssh. A partial transfer
// is fatal; the executor never continues from one.
func (d *Deployer) transfer(cfg *config.Config, workDir, remoteDir string) error {
	d.log.Info("Mirroring %s to %s@%s:%s", workDir, cfg.SSHUser, cfg.ServerIP, remoteDir)

	args := []string{"-az", "--delete"}
	for _, ex := range transferExcludes {
		args = append(args, "--exclude", ex)
	}
	args = append(args,
		"-e", fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=no", cfg.SSHKeyPath),
		workDir+"/",
		fmt.Sprintf("%s@%s:%s/", cfg.SSHUser, cfg.ServerIP, remoteDir),
	)

	out, err := d.rsync(args...)
	if err != nil {
		return exitcode.Fatal(exitcode.TransferFailed, err, "file transfer failed")
	}
	d.log.Debug("rsync: %s", out)
	d.log.Success("Files transferred")
	return nil
}

// teardown stops any prior container or stack under the project name.
// Nothing to stop is not an error.
func (d *Deployer) teardown(ctx context.Context, projectName, remoteDir string) {
	d.log.Info("Stopping any previous deployment of %s", projectName)

	steps := []sshx.Command{
		sshx.Cmd("sh", "-c", fmt.Sprintf("cd %s && docker compose down --remove-orphans", remoteDir)),
		sshx.Cmd("docker", "rm", "-f", projectName),
	}
	for _, step := range steps {
		if _, err := d.runner.Run(ctx, step); err != nil {
			d.log.Debug("teardown step skipped: %v", err)
		}
	}
}

func (d *Deployer) composeUp(ctx context.Context, remoteDir string) error {
	d.log.Info("Building and starting compose stack")

	script := fmt.Sprintf("cd %s && docker compose build && docker compose up -d", remoteDir)
	if _, err := d.runner.Run(ctx, sshx.Cmd("sh", "-c", script)); err != nil {
		return exitcode.Fatal(exitcode.ComposeUpFailed, err, "compose build/start failed")
	}

	if res, err := d.runner.Run(ctx, sshx.Cmd("sh", "-c",
		fmt.Sprintf("cd %s && docker compose ps", remoteDir))); err == nil {
		d.log.Info("Stack status:\n%s", res.Stdout)
	}
	d.log.Success("Compose stack running")
	return nil
}

func (d *Deployer) runSingleImage(ctx context.Context, cfg *config.Config, remoteDir string) error {
	image := cfg.ProjectName + ":latest"

	d.log.Info("Building image %s", image)
	build := sshx.Cmd("sh", "-c", fmt.Sprintf("cd %s && docker build -t %s .", remoteDir, image))
	if _, err := d.runner.Run(ctx, build); err != nil {
		return exitcode.Fatal(exitcode.ImageBuildFailed, err, "image build failed")
	}

	d.log.Info("Starting container %s on port %d", cfg.ProjectName, cfg.AppPort)
	run := sshx.Cmd("docker", "run", "-d",
		"--name", cfg.ProjectName,
		"--restart", "unless-stopped",
		"-p", fmt.Sprintf("%d:%d", cfg.AppPort, cfg.AppPort),
		image,
	)
	if _, err := d.runner.Run(ctx, run); err != nil {
		return exitcode.Fatal(exitcode.ContainerRunFailed, err, "container start failed")
	}

	if res, err := d.runner.Run(ctx, sshx.Cmd("docker", "ps", "--filter", "name="+cfg.ProjectName)); err == nil {
		d.log.Info("Container status:\n%s", res.Stdout)
	}
	d.log.Success("Container running")
	return nil
}

// tailLogs emits the last lines of container or stack output for operator
// visibility; retrieval failure is a warning only.
func (d *Deployer) tailLogs(ctx context.Context, projectName, remoteDir string, mode detect.Mode) {
	var cmd sshx.Command
	if mode == detect.ComposeStack {
		cmd = sshx.Cmd("sh", "-c",
			fmt.Sprintf("cd %s && docker compose logs --tail %s", remoteDir, logTailLines))
	} else {
		cmd = sshx.Cmd("docker", "logs", "--tail", logTailLines, projectName)
	}

	res, err := d.runner.Run(ctx, cmd)
	if err != nil {
		d.log.Warning("Could not retrieve application logs: %v", err)
		return
	}
	out := res.Stdout
	if out == "" {
		out = res.Stderr
	}
	d.log.Info("Application logs (last %s lines):\n%s", logTailLines, out)
}

func runRsync(args ...string) (string, error) {
	cmd := exec.Command("rsync", args...)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("rsync: %w: %s", err, strings.TrimSpace(errOut.String()))
	}
	return strings.TrimSpace(out.String()), nil
}
