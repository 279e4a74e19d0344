package sourceresolver

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
	"github.com/stackbuild/tools/pkg/stackbuild/application/service"
	"github.com/stackbuild/tools/pkg/stackbuild/infrastructure/command"
)

var commitSHA = regexp.MustCompile(`^[0-9a-f]{40}$`)

func NewGitResolver(runner command.Runner) service.SourceResolver {
	return &gitResolver{runner: runner}
}

type gitResolver struct {
	runner command.Runner
}

// SHA resolves a git source's ref to a commit SHA via ls-remote. A ref
// that already is a full SHA resolves to itself; path sources resolve
// to an empty SHA, their content enters the build context directly.
func (r gitResolver) SHA(ctx context.Context, source model.Source) (string, error) {
	if !source.IsGit() {
		return "", nil
	}
	if commitSHA.MatchString(source.Ref) {
		return source.Ref, nil
	}
	output, err := r.runner.Execute(ctx, command.Command{
		Executable: "git",
		Args:       []string{"ls-remote", source.URL, source.Ref},
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve ref %v of %v", source.Ref, source.URL)
	}
	fields := strings.Fields(output)
	if len(fields) == 0 {
		return "", errors.Errorf("ref %v not found in %v", source.Ref, source.URL)
	}
	return fields[0], nil
}
