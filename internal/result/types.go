package result

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure a run produced. The numeric value is
// also the process exit status.
type Code int

const (
	OK               Code = 0
	BuilderConfig    Code = 10
	CoverageConfig   Code = 11
	TargetConfig     Code = 12
	PluginConfig     Code = 13
	CallCommand      Code = 20
	TargetRun        Code = 30
	TargetRunTimeout Code = 31
	Install          Code = 40
	EnvPrepare       Code = 50
	CoverageGenerate Code = 60
)

var codeNames = map[Code]string{
	OK:               "OK",
	BuilderConfig:    "BUILDER_CONFIG_ERR",
	CoverageConfig:   "COVERAGE_CONFIG_ERR",
	TargetConfig:     "TARGET_CONFIG_ERR",
	PluginConfig:     "PLUGIN_CONFIG_ERR",
	CallCommand:      "CALL_COMMAND_ERR",
	TargetRun:        "TARGET_RUN_ERR",
	TargetRunTimeout: "TARGET_RUN_TIMEOUT_ERR",
	Install:          "INSTALL_ERR",
	EnvPrepare:       "ENV_PREPARE_ERR",
	CoverageGenerate: "COVERAGE_GENERATE_ERR",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE_%d", int(c))
}

// Error is the error type returned by every fallible operation of a run.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Errf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to err. An err that already carries a code keeps it.
func Wrap(code Code, err error, message string) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// CodeOf reports the code carried by err. Errors without one are treated as
// run failures.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return TargetRun
}

// ExitCode is the process exit status for err. Errors that carry no code,
// such as command line usage errors, exit with 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var re *Error
	if !errors.As(err, &re) {
		return 1
	}
	return int(re.Code)
}
