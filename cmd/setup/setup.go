// Package setup contains the o11y wiring shared by the monitor's commands.
package setup

import (
	"context"
	_ "time/tzdata" // include embedded timezone data

	"github.com/circleci/mongomonitor/config/o11y"
	"github.com/circleci/mongomonitor/config/secret"
)

type CLI struct {
	O11yStatsd           string        `name:"o11y-statsd" env:"O11Y_STATSD" help:"Address to send statsd metrics, empty disables metrics"`
	O11yHoneycombEnabled bool          `name:"o11y-honeycomb" env:"O11Y_HONEYCOMB" help:"Send traces to honeycomb"`
	O11yHoneycombDataset string        `name:"o11y-honeycomb-dataset" env:"O11Y_HONEYCOMB_DATASET" default:"mongomonitor"`
	O11yHoneycombKey     secret.String `name:"o11y-honeycomb-key" env:"O11Y_HONEYCOMB_KEY"`
	O11ySampleTraces     bool          `name:"o11y-sample-traces" env:"O11Y_SAMPLE_TRACES" help:"Sample healthy check passes"`
	O11yFormat           string        `name:"o11y-format" env:"O11Y_FORMAT" enum:"json,color,text" default:"json" help:"Format used for stderr logging"`
	O11yRollbarToken     secret.String `name:"o11y-rollbar-token" env:"O11Y_ROLLBAR_TOKEN"`
	O11yRollbarEnv       string        `name:"o11y-rollbar-env" env:"O11Y_ROLLBAR_ENV" default:"production"`
}

func LoadO11y(version, mode string, cli CLI) (context.Context, func(context.Context), error) {
	cfg := o11y.Config{
		Statsd:            cli.O11yStatsd,
		RollbarToken:      cli.O11yRollbarToken,
		RollbarEnv:        cli.O11yRollbarEnv,
		RollbarServerRoot: "github.com/circleci/mongomonitor",
		HoneycombEnabled:  cli.O11yHoneycombEnabled,
		HoneycombDataset:  cli.O11yHoneycombDataset,
		HoneycombKey:      cli.O11yHoneycombKey,
		SampleTraces:      cli.O11ySampleTraces,
		Format:            cli.O11yFormat,
		Version:           version,
		Service:           "mongomonitor",
		StatsNamespace:    "mongomonitor.",
		Mode:              mode,
	}
	return o11y.Setup(context.Background(), cfg)
}
