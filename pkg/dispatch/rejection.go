package dispatch

import (
	"errors"
	"fmt"

	"github.com/b/tmux-tabgroups/pkg/appconfig"
	"github.com/b/tmux-tabgroups/pkg/tabgroup"
	"github.com/b/tmux-tabgroups/pkg/window"
)

// Kind classifies a rejected request.
type Kind string

const (
	KindNotFound                  Kind = "not_found"
	KindAlreadyConfigured         Kind = "already_configured"
	KindIncompatibleConfiguration Kind = "incompatible_configuration"
	KindInvalidOrdering           Kind = "invalid_ordering"
	KindInvalidRequest            Kind = "invalid_request"
	KindHostFailure               Kind = "host_failure"
	KindInternal                  Kind = "internal"
)

// Rejection is the only error the dispatcher returns.
type Rejection struct {
	Op      Op     `json:"op"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s rejected (%s): %s", r.Op, r.Kind, r.Message)
}

func (r *Rejection) Unwrap() error { return r.Err }

func invalid(format string, args ...any) *Rejection {
	return &Rejection{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *Rejection {
	return &Rejection{Kind: KindNotFound, Message: fmt.Sprintf(format, args...), Err: tabgroup.ErrNotFound}
}

// reject converts any error into a Rejection for op.
func reject(op Op, err error) *Rejection {
	var rej *Rejection
	if errors.As(err, &rej) {
		out := *rej
		out.Op = op
		if out.Message == "" {
			out.Message = string(out.Kind)
		}
		return &out
	}
	return &Rejection{Op: op, Kind: KindOf(err), Message: err.Error(), Err: err}
}

// KindOf maps an error from the registry, the configuration registry or the
// window host to a rejection kind.
func KindOf(err error) Kind {
	var rej *Rejection
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rej):
		return rej.Kind
	case errors.Is(err, tabgroup.ErrNotFound), errors.Is(err, window.ErrNoWindow):
		return KindNotFound
	case errors.Is(err, appconfig.ErrAlreadySet):
		return KindAlreadyConfigured
	case errors.Is(err, tabgroup.ErrIncompatibleConfiguration):
		return KindIncompatibleConfiguration
	case errors.Is(err, tabgroup.ErrInvalidOrdering):
		return KindInvalidOrdering
	case errors.Is(err, tabgroup.ErrInvalidArgument):
		return KindInvalidRequest
	}
	return KindHostFailure
}
