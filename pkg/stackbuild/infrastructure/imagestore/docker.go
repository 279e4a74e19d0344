package imagestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/stackbuild/tools/pkg/stackbuild/application/service"
	"github.com/stackbuild/tools/pkg/stackbuild/infrastructure/command"
)

// Store adapts the docker CLI. It implements both the build-executor
// contract of the stack service and the tarball streaming the
// dep-cache needs.
func NewDockerStore(runner command.Runner) *Store {
	return &Store{runner: runner}
}

type Store struct {
	runner command.Runner
}

func (s *Store) Exists(ctx context.Context, ref string) (bool, error) {
	output, err := s.runner.Execute(ctx, command.Command{
		Executable: "docker",
		Args:       []string{"image", "inspect", "--format", "{{.Id}}", ref},
	})
	if err == nil {
		return true, nil
	}
	// Inspect reports an absent image as "No such image"; anything else
	// (daemon down, permission) must not masquerade as a cache miss.
	if strings.Contains(output, "No such image") {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to inspect %v: %v", ref, strings.TrimSpace(output))
}

func (s *Store) Build(ctx context.Context, request service.BuildRequest) (string, error) {
	iidFile, err := os.CreateTemp("", "stackbuild-iid-")
	if err != nil {
		return "", errors.Wrap(err, "failed to create iidfile")
	}
	iidPath := iidFile.Name()
	iidFile.Close()
	defer os.Remove(iidPath)

	args := []string{"build", "--file", request.Config.Dockerfile, "--iidfile", iidPath}
	for _, key := range sortedArgKeys(request.BuildArgs) {
		args = append(args, "--build-arg", key+"="+request.BuildArgs[key])
	}
	args = append(args, ".")
	output, err := s.runner.Execute(ctx, command.Command{
		WorkDir:    request.Config.Context,
		Executable: "docker",
		Args:       args,
		Verbose:    true,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to build %v: %v", request.Node, strings.TrimSpace(output))
	}
	return readImageID(iidPath)
}

func (s *Store) Tag(ctx context.Context, imageID, ref string) error {
	_, err := s.runner.Execute(ctx, command.Command{
		Executable: "docker",
		Args:       []string{"tag", imageID, ref},
	})
	return errors.Wrapf(err, "failed to tag %v as %v", imageID, ref)
}

func (s *Store) Push(ctx context.Context, ref string) error {
	_, err := s.runner.Execute(ctx, command.Command{
		Executable: "docker",
		Args:       []string{"push", ref},
		Verbose:    true,
	})
	return errors.Wrapf(err, "failed to push %v", ref)
}

func (s *Store) Pull(ctx context.Context, ref string) error {
	_, err := s.runner.Execute(ctx, command.Command{
		Executable: "docker",
		Args:       []string{"pull", ref},
		Verbose:    true,
	})
	return errors.Wrapf(err, "failed to pull %v", ref)
}

func (s *Store) SaveTo(ctx context.Context, ref string, w io.Writer) error {
	err := s.runner.Stream(ctx, command.Command{
		Executable: "docker",
		Args:       []string{"save", ref},
	}, w, nil)
	return errors.Wrapf(err, "failed to save %v", ref)
}

func (s *Store) LoadFrom(ctx context.Context, r io.Reader) error {
	err := s.runner.Stream(ctx, command.Command{
		Executable: "docker",
		Args:       []string{"load"},
	}, nil, r)
	return errors.Wrap(err, "failed to load image")
}

// readImageID canonicalizes the iidfile content to a validated OCI
// digest string.
func readImageID(path string) (string, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read iidfile %v", filepath.Base(path))
	}
	id, err := digest.Parse(strings.TrimSpace(string(body)))
	if err != nil {
		return "", errors.Wrapf(err, "unexpected image id %q", strings.TrimSpace(string(body)))
	}
	return id.String(), nil
}

func sortedArgKeys(args map[string]string) []string {
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
