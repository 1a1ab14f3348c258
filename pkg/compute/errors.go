package compute

import (
	"errors"
	"fmt"

	"github.com/obsidianstack/repairstack/pkg/types"
)

var (
	// ErrInvalidParameter is wrapped by every input validation failure.
	ErrInvalidParameter = types.ErrInvalidParameter

	// ErrDegenerateModel is returned when the stationary distribution cannot
	// be normalised (zero or non-finite total mass).
	ErrDegenerateModel = errors.New("degenerate model")

	// ErrNoFeasibleConfiguration is returned by Result.Err when the search
	// space holds no pair with n >= m.
	ErrNoFeasibleConfiguration = errors.New("no feasible configuration")

	// ErrSearchTooLarge is returned by Optimize when the grid exceeds the
	// configured limit. It wraps ErrInvalidParameter.
	ErrSearchTooLarge = fmt.Errorf("%w: search space too large", ErrInvalidParameter)

	// ErrModelTooLarge is returned when n exceeds the component limit. It
	// wraps ErrInvalidParameter.
	ErrModelTooLarge = fmt.Errorf("%w: model too large", ErrInvalidParameter)
)
