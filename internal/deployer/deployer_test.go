package deployer

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
	fail  []string
}

func (f *fakeRunner) Run(_ context.Context, cmd sshx.Command) (*sshx.Result, error) {
	line := cmd.Render()
	f.calls = append(f.calls, line)
	for _, substr := range f.fail {
		if strings.Contains(line, substr) {
			return &sshx.Result{ExitCode: 1}, fmt.Errorf("fake failure: %s", substr)
		}
	}
	return &sshx.Result{Stdout: "ok"}, nil
}

func (f *fakeRunner) index(substr string) int {
	for i, c := range f.calls {
		if strings.Contains(c, substr) {
			return i
		}
	}
	return -1
}

func testConfig() *config.Config {
	return &config.Config{
		SSHUser:     "deploy",
		ServerIP:    "10.0.0.1",
		SSHKeyPath:  "/home/op/.ssh/id_rsa",
		AppPort:     3000,
		ProjectName: "shop",
	}
}

func newDeployer(fake *fakeRunner, rsyncErr error) (*Deployer, *[]string) {
	d := New(fake, testLog)
	var rsyncCalls []string
	d.rsync = func(args ...string) (string, error) {
		rsyncCalls = append(rsyncCalls, strings.Join(args, " "))
		return "", rsyncErr
	}
	return d, &rsyncCalls
}

func pipelineCode(t *testing.T, err error) exitcode.Code {
	t.Helper()
	var perr *exitcode.PipelineError
	require.True(t, errors.As(err, &perr), "expected a PipelineError, got %v", err)
	return perr.Code
}

func TestSingleImageDeploySequence(t *testing.T) {
	fake := &fakeRunner{}
	d, rsyncCalls := newDeployer(fake, nil)
	desc := &detect.Descriptor{Mode: detect.SingleImage, File: "Dockerfile"}

	require.NoError(t, d.Deploy(context.Background(), testConfig(), desc, "./shop"))

	require.Len(t, *rsyncCalls, 1)
	assert.Contains(t, (*rsyncCalls)[0], "--exclude .git")
	assert.Contains(t, (*rsyncCalls)[0], "--exclude node_modules")
	assert.Contains(t, (*rsyncCalls)[0], "--exclude .env")
	assert.Contains(t, (*rsyncCalls)[0], "deploy@10.0.0.1:shop/")

	// teardown always precedes the new container start
	rm := fake.index("docker rm -f shop")
	run := fake.index("docker run -d")
	require.GreaterOrEqual(t, rm, 0)
	require.GreaterOrEqual(t, run, 0)
	assert.Less(t, rm, run)

	assert.Contains(t, fake.calls[run], "-p 3000:3000")
	assert.Contains(t, fake.calls[run], "shop:latest")
	assert.GreaterOrEqual(t, fake.index("docker logs --tail"), 0)
}

func TestComposeDeploySequence(t *testing.T) {
	fake := &fakeRunner{}
	d, _ := newDeployer(fake, nil)
	desc := &detect.Descriptor{Mode: detect.ComposeStack, File: "docker-compose.yml"}

	require.NoError(t, d.Deploy(context.Background(), testConfig(), desc, "./shop"))

	down := fake.index("docker compose down")
	up := fake.index("docker compose up -d")
	require.GreaterOrEqual(t, down, 0)
	require.GreaterOrEqual(t, up, 0)
	assert.Less(t, down, up)
	assert.GreaterOrEqual(t, fake.index("docker compose logs"), 0)
	assert.Equal(t, -1, fake.index("docker run"))
}

func TestMkdirFailureIsFatal(t *testing.T) {
	fake := &fakeRunner{fail: []string{"mkdir"}}
	d, rsyncCalls := newDeployer(fake, nil)

	err := d.Deploy(context.Background(), testConfig(),
		&detect.Descriptor{Mode: detect.SingleImage}, "./shop")
	assert.Equal(t, exitcode.RemoteMkdirFailed, pipelineCode(t, err))
	assert.Empty(t, *rsyncCalls)
}

func TestTransferFailureIsFatal(t *testing.T) {
	fake := &fakeRunner{}
	d, _ := newDeployer(fake, fmt.Errorf("connection reset"))

	err := d.Deploy(context.Background(), testConfig(),
		&detect.Descriptor{Mode: detect.SingleImage}, "./shop")
	assert.Equal(t, exitcode.TransferFailed, pipelineCode(t, err))
	// partial transfer is never continued
	assert.Equal(t, -1, fake.index("docker build"))
}

func TestTeardownErrorsAreSwallowed(t *testing.T) {
	fake := &fakeRunner{fail: []string{"docker compose down", "docker rm -f"}}
	d, _ := newDeployer(fake, nil)

	require.NoError(t, d.Deploy(context.Background(), testConfig(),
		&detect.Descriptor{Mode: detect.SingleImage}, "./shop"))
	assert.GreaterOrEqual(t, fake.index("docker run -d"), 0)
}

func TestBuildAndRunFailureCodes(t *testing.T) {
	cases := []struct {
		mode detect.Mode
		fail string
		code exitcode.Code
	}{
		{detect.SingleImage, "docker build", exitcode.ImageBuildFailed},
		{detect.SingleImage, "docker run -d", exitcode.ContainerRunFailed},
		{detect.ComposeStack, "docker compose build", exitcode.ComposeUpFailed},
	}
	for _, tc := range cases {
		fake := &fakeRunner{fail: []string{tc.fail}}
		d, _ := newDeployer(fake, nil)

		err := d.Deploy(context.Background(), testConfig(),
			&detect.Descriptor{Mode: tc.mode}, "./shop")
		assert.Equal(t, tc.code, pipelineCode(t, err), "failing %q", tc.fail)
	}
}

func TestLogTailFailureIsNonFatal(t *testing.T) {
	fake := &fakeRunner{fail: []string{"docker logs"}}
	d, _ := newDeployer(fake, nil)

	require.NoError(t, d.Deploy(context.Background(), testConfig(),
		&detect.Descriptor{Mode: detect.SingleImage}, "./shop"))
}
