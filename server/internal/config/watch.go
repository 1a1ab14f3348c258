package config

import (
	"context"
	"log/slog"

	"github.com/obsidianstack/repairstack/pkg/watch"
)

// Watch reloads the server configuration at path on every change and passes
// it to onChange until ctx is cancelled. A configuration that fails to load
// or validate is logged and the previous one stays in effect.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return watch.File(ctx, path, Load, func(c *Config) {
		slog.Info("config: applying", "rules", len(c.Server.Alerts.Rules))
		onChange(c)
	}, watch.WithName("config"))
}
