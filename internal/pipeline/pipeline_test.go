package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ezrahel/auto-deploy-hng/internal/config"
	"github.com/Ezrahel/auto-deploy-hng/internal/detect"
	"github.com/Ezrahel/auto-deploy-hng/internal/exitcode"
	"github.com/Ezrahel/auto-deploy-hng/internal/logger"
	"github.com/Ezrahel/auto-deploy-hng/internal/sshx"
)

var testLog = logger.New(nil, nil, logger.LevelError)

type fakeRunner struct {
	calls []string
	ctxs  []context.Context
}

func (f *fakeRunner) Run(ctx context.Context, cmd sshx.Command) (*sshx.Result, error) {
	f.calls = append(f.calls, cmd.Render())
	f.ctxs = append(f.ctxs, ctx)
	return &sshx.Result{Stdout: "ok"}, nil
}

func testConfig(cleanup bool) *config.Config {
	return &config.Config{
		RepoURL:     "https://github.com/acme/shop.git",
		GitToken:    "tok",
		Branch:      "main",
		SSHUser:     "deploy",
		ServerIP:    "10.0.0.1",
		SSHKeyPath:  "/tmp/key",
		AppPort:     3000,
		ProjectName: "shop",
		Cleanup:     cleanup,
	}
}

func newPipeline(runner sshx.Runner, connErr, pingErr error) (*Pipeline, *bool) {
	closed := false
	p := New(testLog)
	p.ping = func(string) error { return pingErr }
	p.connect = func(*config.Config) (sshx.Runner, func() error, error) {
		if connErr != nil {
			return nil, nil, connErr
		}
		return runner, func() error { closed = true; return nil }, nil
	}
	return p, &closed
}

func TestCleanupModeSkipsDeployStages(t *testing.T) {
	fake := &fakeRunner{}
	p, closed := newPipeline(fake, nil, nil)

	require.NoError(t, p.Run(context.Background(), testConfig(true)))
	assert.True(t, *closed)

	joined := strings.Join(fake.calls, "\n")
	assert.Contains(t, joined, "docker rm -f shop")
	assert.NotContains(t, joined, "apt-get update")
	assert.NotContains(t, joined, "docker build")
}

func TestSSHFailureIsFatal(t *testing.T) {
	p, _ := newPipeline(nil, fmt.Errorf("connection refused"), nil)

	err := p.Run(context.Background(), testConfig(true))
	require.Error(t, err)
	var perr *exitcode.PipelineError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, exitcode.SSHAuthFailed, perr.Code)
}

func TestPingFailureIsOnlyAWarning(t *testing.T) {
	fake := &fakeRunner{}
	p, _ := newPipeline(fake, nil, fmt.Errorf("100%% packet loss"))

	require.NoError(t, p.Run(context.Background(), testConfig(true)))
	// the authenticated session test still ran
	assert.Contains(t, fake.calls[0], "echo connected")
}

func TestSynchronizerRunsBeforeConnectivityProbe(t *testing.T) {
	p, _ := newPipeline(nil, fmt.Errorf("no route to host"), nil)
	dialed := false
	inner := p.connect
	p.connect = func(cfg *config.Config) (sshx.Runner, func() error, error) {
		dialed = true
		return inner(cfg)
	}
	p.sync = func(*config.Config, string) error {
		return exitcode.Fatal(exitcode.CloneFailed, nil, "repository not found")
	}

	err := p.Run(context.Background(), testConfig(false))
	require.Error(t, err)
	var perr *exitcode.PipelineError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, exitcode.CloneFailed, perr.Code)
	assert.False(t, dialed)
}

func TestMissingDescriptorFailsBeforeSSH(t *testing.T) {
	p, _ := newPipeline(nil, fmt.Errorf("no route to host"), nil)
	dialed := false
	inner := p.connect
	p.connect = func(cfg *config.Config) (sshx.Runner, func() error, error) {
		dialed = true
		return inner(cfg)
	}
	p.sync = func(*config.Config, string) error { return nil }
	p.inspect = func(string) (*detect.Descriptor, error) {
		return nil, exitcode.Fatal(exitcode.NoBuildDescriptor, nil, "no Dockerfile or compose file")
	}

	err := p.Run(context.Background(), testConfig(false))
	require.Error(t, err)
	var perr *exitcode.PipelineError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, exitcode.NoBuildDescriptor, perr.Code)
	assert.False(t, dialed)
}

func TestRunContextReachesSessionTest(t *testing.T) {
	fake := &fakeRunner{}
	p, _ := newPipeline(fake, nil, nil)

	type ctxKey string
	ctx := context.WithValue(context.Background(), ctxKey("run"), "yes")
	require.NoError(t, p.Run(ctx, testConfig(true)))

	require.NotEmpty(t, fake.ctxs)
	assert.Equal(t, "yes", fake.ctxs[0].Value(ctxKey("run")))
}
