package healthcheck

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hellofresh/health-go/v4"

	"github.com/circleci/mongomonitor/httpserver/ginrouter"
	"github.com/circleci/mongomonitor/system"
)

type API struct {
	router *gin.Engine
}

func New(ctx context.Context, checked []system.HealthChecker) (*API, error) {
	r := ginrouter.Default(ctx, "admin")

	live, ready, err := newHealthHandlers(checked)
	if err != nil {
		return nil, fmt.Errorf("failed to create health checks: %w", err)
	}

	r.GET("/live", gin.WrapH(live.Handler()))
	r.GET("/ready", gin.WrapH(ready.Handler()))
	r.GET("/debug/pprof/*profile", debugProfile)

	return &API{router: r}, nil
}

func (a *API) Handler() http.Handler {
	return a.router
}

func debugProfile(c *gin.Context) {
	switch c.Param("profile") {
	case "/cmdline":
		pprof.Cmdline(c.Writer, c.Request)
	case "/profile":
		pprof.Profile(c.Writer, c.Request)
	case "/symbol":
		pprof.Symbol(c.Writer, c.Request)
	case "/trace":
		pprof.Trace(c.Writer, c.Request)
	default:
		// Index serves the named runtime profiles as well as the listing.
		pprof.Index(c.Writer, c.Request)
	}
}

func newHealthHandlers(checked []system.HealthChecker) (live, ready *health.Health, err error) {
	live, err = health.New()
	if err != nil {
		return nil, nil, err
	}

	ready, err = health.New()
	if err != nil {
		return nil, nil, err
	}

	for _, c := range checked {
		name, readyCheck, liveCheck := c.HealthChecks()

		if readyCheck != nil {
			err = ready.Register(health.Config{
				Name:    name,
				Timeout: 5 * time.Second,
				Check:   readyCheck,
			})
			if err != nil {
				return nil, nil, err
			}
		}

		if liveCheck != nil {
			err = live.Register(health.Config{
				Name:    name,
				Timeout: 5 * time.Second,
				Check:   liveCheck,
			})
			if err != nil {
				return nil, nil, err
			}
		}
	}

	return live, ready, nil
}
