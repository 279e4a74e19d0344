package command

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"

	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"
)

type Command struct {
	WorkDir    string
	Executable string
	Args       []string
	Verbose    bool
}

type Runner interface {
	Execute(ctx context.Context, command Command) (string, error)
	// Stream runs the command with stdout and/or stdin attached to the
	// given streams, for binary payloads like image tarballs.
	Stream(ctx context.Context, command Command, stdout io.Writer, stdin io.Reader) error
}

func NewCommandRunner(logger applogger.Logger, silentMode bool) Runner {
	return &runner{
		logger:     logger,
		silentMode: silentMode,
	}
}

type runner struct {
	logger     applogger.Logger
	silentMode bool
}

func (r runner) Execute(ctx context.Context, command Command) (string, error) {
	cmd, err := r.build(ctx, command)
	if err != nil {
		return "", err
	}
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if command.Verbose && !r.silentMode {
		cmd.Stdout = io.MultiWriter(&output, os.Stdout)
		cmd.Stderr = io.MultiWriter(&output, os.Stderr)
	}
	err = cmd.Run()
	return output.String(), err
}

func (r runner) Stream(ctx context.Context, command Command, stdout io.Writer, stdin io.Reader) error {
	cmd, err := r.build(ctx, command)
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stdin = stdin
	cmd.Stderr = &stderr
	if runErr := cmd.Run(); runErr != nil {
		return errors.Join(runErr, errors.New(stderr.String()))
	}
	return nil
}

func (r runner) build(ctx context.Context, command Command) (*exec.Cmd, error) {
	if command.Executable == "" {
		return nil, errors.New("command executable can not be empty")
	}
	// nolint:gosec
	cmd := exec.CommandContext(ctx, command.Executable, command.Args...)
	cmd.Dir = command.WorkDir
	r.logger.Debug(cmd.String())
	return cmd, nil
}
