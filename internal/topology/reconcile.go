package topology

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Rebuilder produces a fresh drive list
type Rebuilder interface {
	Build(ctx context.Context) ([]*Drive, error)
}

// Reconciler folds attach/detach events into an existing drive list.
//
// Removal is surgical while addition rebuilds everything and replaces the
// overlapping drives. The asymmetry is intentional: it avoids diffing the
// partitions of drives that did not change.
type Reconciler struct {
	rebuilder Rebuilder
	logger    zerolog.Logger
}

// NewReconciler creates a reconciler backed by r
func NewReconciler(r Rebuilder, logger zerolog.Logger) *Reconciler {
	return &Reconciler{rebuilder: r, logger: logger}
}

// Apply returns the list with removed and then added applied. Either may be
// empty. drives is never modified; on error it is returned as it was after
// the removal step.
func (r *Reconciler) Apply(ctx context.Context, drives []*Drive, added, removed string) ([]*Drive, error) {
	out := drives
	if removed != "" {
		out = Remove(out, removed)
	}
	if added == "" {
		return out, nil
	}

	fresh, err := r.rebuilder.Build(ctx)
	if err != nil {
		return out, errors.Wrapf(err, "rebuild after %s was added", added)
	}
	r.logger.Debug().Str("added", added).Int("drives", len(fresh)).Msg("merged rebuilt topology")
	return Merge(out, fresh), nil
}

// Remove drops the drive whose path or block path is objectPath. When no
// drive matches, it drops the partition with that path from every drive.
func Remove(drives []*Drive, objectPath string) []*Drive {
	_, idx, found := lo.FindIndexOf(drives, func(d *Drive) bool {
		return d.Path == objectPath || d.BlockPath == objectPath
	})
	if found {
		out := make([]*Drive, 0, len(drives)-1)
		out = append(out, drives[:idx]...)
		return append(out, drives[idx+1:]...)
	}

	out := make([]*Drive, len(drives))
	for i, d := range drives {
		if d.Partition(objectPath) == nil {
			out[i] = d
			continue
		}
		cp := d.clone()
		cp.Partitions = lo.Reject(cp.Partitions, func(p *Partition, _ int) bool {
			return p.Path == objectPath
		})
		out[i] = cp
	}
	return out
}

// Merge replaces every drive of drives that also appears in fresh and
// appends the whole fresh set
func Merge(drives, fresh []*Drive) []*Drive {
	freshPaths := lo.Associate(fresh, func(d *Drive) (string, struct{}) {
		return d.Path, struct{}{}
	})
	kept := lo.Filter(drives, func(d *Drive, _ int) bool {
		_, replaced := freshPaths[d.Path]
		return !replaced
	})
	return append(kept, fresh...)
}
