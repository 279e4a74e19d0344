package prepull

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

const maxConcurrentPulls = 4

type ImagePuller interface {
	Pull(ctx context.Context, ref string) error
}

func NewPuller(puller ImagePuller) *Puller {
	return &Puller{puller: puller}
}

type Puller struct {
	puller ImagePuller
}

// WarmInternal pre-pulls cached internal images best-effort: every
// failure becomes a note, none aborts the run.
func (p *Puller) WarmInternal(ctx context.Context, refs []string) []model.Note {
	var mutex sync.Mutex
	var notes []model.Note
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentPulls)
	for _, ref := range refs {
		ref := ref
		group.Go(func() error {
			if err := p.puller.Pull(groupCtx, ref); err != nil {
				mutex.Lock()
				notes = append(notes, model.InfoNote("cache warm-up skipped %v: %v", ref, err))
				mutex.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
	return notes
}

// PullExternal pre-pulls external base images and fails fast,
// aggregating every failure into one report before aborting.
func (p *Puller) PullExternal(ctx context.Context, refs []string) error {
	failures := make([]error, len(refs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentPulls)
	for i, ref := range refs {
		i, ref := i, ref
		group.Go(func() error {
			failures[i] = p.puller.Pull(groupCtx, ref)
			return nil
		})
	}
	_ = group.Wait()
	return errors.Join(failures...)
}
