package cleanup

import (
	"context"
	"fmt"

	"github.com/Ezrahel/auto-deploy-hng/internal/config"
	"github.com/Ezrahel/auto-deploy-hng/internal/logger"
	"github.com/Ezrahel/auto-deploy-hng/internal/sshx"
)

// StepResult records one teardown step's outcome. Cleanup favours maximal
// removal over strict error propagation, so failures are collected and
// summarized instead of aborting the sequence.
type StepResult struct {
	Name string
	Err  error
}

// Reverser tears down everything a deployment of the project left on the
// host: containers, stack, image, proxy site and the remote directory.
type Reverser struct {
	runner sshx.Runner
	log    *logger.Logger
}

// New creates a Reverser.
func New(runner sshx.Runner, log *logger.Logger) *Reverser {
	return &Reverser{runner: runner, log: log.WithPrefix("cleanup")}
}

// Run executes the full cleanup sequence and returns every step's outcome.
// It never fails: a host with nothing to remove produces a clean summary.
func (r *Reverser) Run(ctx context.Context, cfg *config.Config) []StepResult {
	name := cfg.ProjectName
	r.log.Info("Cleaning up deployment of %s on %s", name, cfg.ServerIP)

	steps := []struct {
		name string
		cmd  sshx.Command
	}{
		{"stop compose stack", sshx.Cmd("sh", "-c",
			fmt.Sprintf("cd %s && docker compose down --volumes --remove-orphans", name))},
		{"remove container", sshx.Cmd("docker", "rm", "-f", name)},
		{"remove image", sshx.Cmd("docker", "rmi", "-f", name+":latest")},
		{"remove proxy site", sshx.Cmd("rm", "-f",
			"/etc/nginx/sites-available/"+name, "/etc/nginx/sites-enabled/"+name).WithSudo()},
		{"reload nginx", sshx.Script(
			sshx.Cmd("nginx", "-t").WithSudo(),
			sshx.Cmd("systemctl", "reload", "nginx").WithSudo())},
		{"remove remote directory", sshx.Cmd("rm", "-rf", name)},
	}

	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		_, err := r.runner.Run(ctx, step.cmd)
		if err != nil {
			r.log.Warning("%s: nothing removed or step failed: %v", step.name, err)
		} else {
			r.log.Info("%s: done", step.name)
		}
		results = append(results, StepResult{Name: step.name, Err: err})
	}

	r.summarize(results)
	return results
}

func (r *Reverser) summarize(results []StepResult) {
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	if failed == 0 {
		r.log.Success("Cleanup complete, all %d steps succeeded", len(results))
		return
	}
	r.log.Success("Cleanup complete: %d/%d steps succeeded (failures above were non-fatal)",
		len(results)-failed, len(results))
}
