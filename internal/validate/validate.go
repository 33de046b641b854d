package validate

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

// Validator checks service, container and proxy health after a deployment.
type Validator struct {
	runner sshx.Runner
	log    *logger.Logger

	// localProbe is swappable in tests; probes a URL from the controller.
	localProbe func(url string) error
}

// New creates a Validator.
func New(runner sshx.Runner, log *logger.Logger) *Validator {
	v := &Validator{runner: runner, log: log.WithPrefix("validate")}
	v.localProbe = curlProbe
	return v
}

// Check runs the four validation steps in order. The first three are fatal
// with dedicated codes; reachability probes are downgraded to warnings
// because firewall rules can legitimately block them while the deployment
// itself is healthy.
func (v *Validator) Check(ctx context.Context, cfg *config.Config, desc *detect.Descriptor) error {
	v.log.Info("Checking docker service state")
	if !v.serviceActive(ctx, "docker") {
		return exitcode.Fatal(exitcode.DockerInactive, nil, "docker service is not active on the server")
	}

	v.log.Info("Checking that %s is running", cfg.ProjectName)
	if err := v.checkRunning(ctx, cfg, desc); err != nil {
		return err
	}

	v.log.Info("Checking nginx service state")
	if !v.serviceActive(ctx, "nginx") {
		return exitcode.Fatal(exitcode.NginxInactive, nil, "nginx service is not active on the server")
	}

	v.probes(ctx, cfg)
	v.log.Success("Deployment validated")
	return nil
}

func (v *Validator) serviceActive(ctx context.Context, unit string) bool {
	res, err := v.runner.Run(ctx, sshx.Cmd("systemctl", "is-active", unit))
	return err == nil && strings.TrimSpace(res.Stdout) == "active"
}

func (v *Validator) checkRunning(ctx context.Context, cfg *config.Config, desc *detect.Descriptor) error {
	var cmd sshx.Command
	if desc.Mode == detect.ComposeStack {
		cmd = sshx.Cmd("sh", "-c", fmt.Sprintf("cd %s && docker compose ps --status running",
			cfg.ProjectName))
	} else {
		cmd = sshx.Cmd("docker", "ps", "--filter", "name="+cfg.ProjectName,
			"--filter", "status=running", "--format", "{{.Names}}")
	}

	res, err := v.runner.Run(ctx, cmd)
	if err != nil || res == nil || strings.TrimSpace(res.Stdout) == "" {
		return exitcode.Fatal(exitcode.ContainerNotRunning, err,
			"no running container or stack entry found for %s", cfg.ProjectName)
	}
	return nil
}

// probes curls the direct application port and the proxy port on the host,
// then the external path from the controller machine. All warnings only.
func (v *Validator) probes(ctx context.Context, cfg *config.Config) {
	inHost := []struct {
		label string
		url   string
	}{
		{"application port", fmt.Sprintf("http://localhost:%d", cfg.AppPort)},
		{"proxy port", "http://localhost:80"},
	}
	for _, p := range inHost {
		probe := sshx.Cmd("curl", "-fsS", "-o", "/dev/null", "--max-time", "10", p.url)
		if _, err := v.runner.Run(ctx, probe); err != nil {
			v.log.Warning("In-host probe of %s failed (possibly firewalled): %v", p.label, err)
		} else {
			v.log.Info("In-host probe of %s succeeded", p.label)
		}
	}

	external := fmt.Sprintf("http://%s:80", cfg.ServerIP)
	if err := v.localProbe(external); err != nil {
		v.log.Warning("External probe of %s failed (possibly firewalled): %v", external, err)
	} else {
		v.log.Info("External probe of %s succeeded", external)
	}
}

func curlProbe(url string) error {
	cmd := exec.Command("curl", "-fsS", "-o", "/dev/null", "--max-time", "10", url)
	var errOut bytes.Buffer
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("curl %s: %w: %s", url, err, strings.TrimSpace(errOut.String()))
	}
	return nil
}
