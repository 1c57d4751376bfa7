package tabgroup

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no group or tab matches. Absence is expected: most
	// windows are never tabbed.
	ErrNotFound = errors.New("not found")

	// ErrIncompatibleConfiguration means two applications do not share an
	// equivalent tab-strip descriptor, or one has none.
	ErrIncompatibleConfiguration = errors.New("incompatible tab configuration")

	// ErrInvalidOrdering means a reorder was not a permutation of the group's tabs.
	ErrInvalidOrdering = errors.New("invalid tab ordering")

	// ErrInvalidArgument covers malformed identifier lists.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrGroupDissolved is returned by operations that reach a group after its
	// last tab left. It matches ErrNotFound.
	ErrGroupDissolved = fmt.Errorf("tab group dissolved: %w", ErrNotFound)
)
