package config

import (
	"context"

	"github.com/obsidianstack/repairstack/pkg/watch"
)

// Watch reloads the scenario at path on every change and passes it to
// onChange until ctx is cancelled. Scenarios that fail to load or validate
// are logged and skipped.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return watch.File(ctx, path, Load, onChange, watch.WithName("config"))
}
