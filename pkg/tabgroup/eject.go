package tabgroup

import (
	"context"
	"errors"
	"fmt"

	"github.com/b/tmux-tabgroups/pkg/logging"
	"github.com/b/tmux-tabgroups/pkg/window"
)

// EjectOutcome says where an ejected window ended up.
type EjectOutcome string

const (
	EjectMovedToGroup EjectOutcome = "moved-to-group"
	EjectMovedGroup   EjectOutcome = "moved-group"
	EjectNewGroup     EjectOutcome = "new-group"
	EjectDetached     EjectOutcome = "detached"
)

// groupAtStrip returns the group, other than exclude, whose tab strip
// contains p.
func (r *Registry) groupAtStrip(ctx context.Context, p window.Point, exclude *Group) *Group {
	for _, g := range r.Groups() {
		if g == exclude || g.Lifecycle() != Active {
			continue
		}
		b, err := g.chrome.Bounds(ctx)
		if err != nil {
			continue
		}
		if b.Contains(p.X, p.Y) {
			return g
		}
	}
	return nil
}

// EjectTab pulls the window out of its group, optionally at a drop position.
//
// Dropped on the strip of another compatible group, the tab moves there.
// Otherwise, if it was the group's only tab the whole group moves to the
// drop position. Else the window leaves the group at its original size,
// moves to the drop position, and starts its own single-tab group when
// EjectNewGroup is set and its application has a tab client. Without a drop
// position the window is only detached, and a group losing its only tab
// dissolves.
// The window is never a member of two groups at the same time.
func (r *Registry) EjectTab(ctx context.Context, id window.Identifier, drop *window.Point) (EjectOutcome, error) {
	src, ok := r.GetTabGroupByApp(id)
	if !ok {
		return "", fmt.Errorf("window %s: %w", id, ErrNotFound)
	}
	ctx = logging.WithWindow(ctx, id)
	log := logging.FromContext(ctx)

	if drop != nil {
		if target := r.groupAtStrip(ctx, *drop, src); target != nil {
			cfg, ok := r.configs.Get(id.ApplicationID)
			if ok && cfg.Equivalent(target.ui) {
				if err := r.AddTab(ctx, target, id, nil); err != nil {
					return "", err
				}
				log.Debug().Str("group_id", target.id).Msg("tab dropped onto group")
				r.metrics.RecordEject(ctx, string(EjectMovedToGroup))
				return EjectMovedToGroup, nil
			}
			log.Debug().Str("group_id", target.id).Msg("drop target incompatible")
		}
	}

	if drop != nil && src.Len() == 1 {
		if err := src.MoveTo(ctx, *drop); err != nil && !errors.Is(err, ErrNotFound) {
			return "", err
		}
		r.metrics.RecordEject(ctx, string(EjectMovedGroup))
		return EjectMovedGroup, nil
	}

	removed, err := r.RemoveTab(ctx, id, false, true)
	if err != nil {
		return "", err
	}
	if !removed {
		return "", fmt.Errorf("window %s: %w", id, ErrNotFound)
	}
	if drop != nil {
		if err := window.Wrap(r.host, id).MoveTo(ctx, drop.X, drop.Y); err != nil {
			return "", fmt.Errorf("move ejected window %s: %w", id, err)
		}
	}

	if drop != nil && r.ejectNewGroup && r.configs.Exists(id.ApplicationID) {
		if _, err := r.CreateTabGroupWithTabs(ctx, []window.Identifier{id}); err != nil {
			return "", err
		}
		r.metrics.RecordEject(ctx, string(EjectNewGroup))
		return EjectNewGroup, nil
	}
	r.metrics.RecordEject(ctx, string(EjectDetached))
	return EjectDetached, nil
}
