package httpserver

import (
	"context"
	"fmt"

	"github.com/circleci/mongomonitor/system"
)

// Load starts listening straight away, so a bad address fails before any service runs.
func Load(ctx context.Context, cfg Config, sys *system.System) (*HTTPServer, error) {
	server, err := New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error starting %q server: %w", cfg.Name, err)
	}

	sys.AddService(server.Serve)
	sys.AddMetrics(server)
	return server, nil
}
