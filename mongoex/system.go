package mongoex

import (
	"github.com/circleci/mongomonitor/system"
)

// Load creates the Dialer and registers its pool metrics with the system.
func Load(cfg Config, sys *system.System) *Dialer {
	d := NewDialer(cfg)
	sys.AddMetrics(d)
	return d
}
