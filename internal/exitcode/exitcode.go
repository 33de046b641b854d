package exitcode

import "fmt"

// Code is the process exit code reported for a pipeline failure. Each code
// maps to exactly one failure point so operators can diagnose a run from the
// exit status alone.
type Code int

const (
	OK Code = 0

	// Parameter collection (10-17)
	EmptyRepoURL    Code = 10
	EmptyCredential Code = 11
	EmptyUser       Code = 12
	BadServerIP     Code = 13
	MissingKeyFile  Code = 14
	BadPort         Code = 15
	BlankField      Code = 16
	BadProjectName  Code = 17

	// Repository synchronization (20-25)
	CloneFailed    Code = 20
	FetchFailed    Code = 21
	CheckoutFailed Code = 22
	PullFailed     Code = 23
	DirtyWorkTree  Code = 24
	NotARepository Code = 25

	// Build descriptor detection (30)
	NoBuildDescriptor Code = 30

	// Connectivity (40)
	SSHAuthFailed Code = 40

	// Environment provisioning (50-55)
	AptUpdateFailed      Code = 50
	DockerInstallFailed  Code = 51
	ComposeInstallFailed Code = 52
	NginxInstallFailed   Code = 53
	VerifyToolsFailed    Code = 55

	// Deployment (60-64)
	RemoteMkdirFailed  Code = 60
	TransferFailed     Code = 61
	ComposeUpFailed    Code = 62
	ImageBuildFailed   Code = 63
	ContainerRunFailed Code = 64

	// Reverse proxy (70)
	ProxyConfigFailed Code = 70

	// Validation (80-82)
	DockerInactive      Code = 80
	ContainerNotRunning Code = 81
	NginxInactive       Code = 82
)

// PipelineError is a fatal pipeline failure: a stable exit code, a
// remediation-oriented message for the operator and the underlying cause.
type PipelineError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error { return e.Cause }

// Fatal wraps cause into a PipelineError with the given code.
func Fatal(code Code, cause error, format string, args ...interface{}) *PipelineError {
	return &PipelineError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}
