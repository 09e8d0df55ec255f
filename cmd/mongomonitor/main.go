package main

import (
	"context"
	"errors"
	"fmt"
	"log" //nolint:depguard // non-o11y log is allowed for a top-level fatal
	"time"

	"github.com/alecthomas/kong"

	"github.com/circleci/mongomonitor/checker"
	"github.com/circleci/mongomonitor/cmd"
	"github.com/circleci/mongomonitor/cmd/setup"
	"github.com/circleci/mongomonitor/httpserver/healthcheck"
	"github.com/circleci/mongomonitor/mongoex"
	"github.com/circleci/mongomonitor/notify"
	"github.com/circleci/mongomonitor/o11y"
	"github.com/circleci/mongomonitor/rundef"
	"github.com/circleci/mongomonitor/settings"
	"github.com/circleci/mongomonitor/slack"
	"github.com/circleci/mongomonitor/system"
	"github.com/circleci/mongomonitor/termination"
	"github.com/circleci/mongomonitor/worker"
)

type cli struct {
	setup.CLI

	Version   kong.VersionFlag `help:"Print the version and exit"`
	Config    string `short:"c" default:"config.json" help:"Path to the monitor's JSON config file"`
	TestEmail bool   `name:"test-email" help:"Send one test alert through the configured channel and exit"`
	AdminAddr string `env:"ADMIN_ADDR" help:"The address for the admin api to listen on, empty disables it"`
}

const (
	testSubject     = "Test Alert"
	deliveryTimeout = 30 * time.Second
)

func main() {
	err := run(cmd.Version, cmd.Date)
	if err != nil && !errors.Is(err, termination.ErrTerminated) {
		log.Fatal("Unexpected Error: ", err)
	}
	log.Println("exited 0")
}

func run(version, date string) (err error) {
	cli := cli{}
	kong.Parse(&cli,
		kong.Name("mongomonitor"),
		kong.Description("Watches a MongoDB replica set and alerts when it becomes unhealthy."),
		kong.Vars{"version": version},
	)

	mode := "monitor"
	if cli.TestEmail {
		mode = "test-email"
	}
	ctx, o11yCleanup, err := setup.LoadO11y(version, mode, cli.CLI)
	if err != nil {
		return err
	}
	defer o11yCleanup(ctx)

	ctx, runSpan := o11y.StartSpan(ctx, "main: run")
	defer o11y.End(runSpan, &err)

	o11y.Log(ctx, "starting mongomonitor",
		o11y.Field("version", version),
		o11y.Field("date", date),
		o11y.Field("config", cli.Config),
	)

	if err := rundef.Defaults(ctx); err != nil {
		o11y.LogError(ctx, "main: runtime defaults", err)
	}

	s, err := settings.Load(cli.Config)
	if err != nil {
		return err
	}

	channel, closeChannel := loadChannel(s)
	defer closeChannel()
	notifier := notify.New(channel)

	if cli.TestEmail {
		return sendTestAlert(ctx, notifier, cli.Config)
	}

	sys := system.New()
	defer sys.Cleanup(ctx)
	sys.AddCleanup(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
		defer cancel()
		return notifier.Close(ctx)
	})

	loadMonitor(s, notifier, sys)

	// Should be last so it collects all the health checks
	if cli.AdminAddr != "" {
		_, err = healthcheck.Load(ctx, cli.AdminAddr, sys)
		if err != nil {
			return err
		}
	}

	return sys.Run(ctx)
}

// loadChannel returns a nil channel when no webhook is configured, the notifier then only logs.
func loadChannel(s *settings.Settings) (notify.Channel, func()) {
	cfg, err := s.SlackConfig()
	if errors.Is(err, settings.ErrNoSlack) {
		return nil, func() {}
	}
	c := slack.New(cfg)
	return c, c.Close
}

func sendTestAlert(ctx context.Context, n *notify.Notifier, configPath string) error {
	n.Notify(ctx, testSubject, fmt.Errorf("This is a test alert from MongoMonitor using the config at %s", configPath))

	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()
	return n.Close(ctx)
}

func loadMonitor(s *settings.Settings, notifier checker.Notifier, sys *system.System) *checker.Checker {
	dialer := mongoex.Load(s.Mongo("mongomonitor"), sys)

	c := checker.New(checker.Options{
		Members:      s.Members,
		Thresholds:   s.Thresholds(),
		Interval:     s.IntervalDuration(),
		CheckTimeout: s.CheckTimeoutDuration(),
		Dialer: checker.DialFunc(func(ctx context.Context, host string) (checker.Node, error) {
			node, err := dialer.Dial(ctx, host)
			if err != nil {
				return nil, err
			}
			return node, nil
		}),
		Notifier: notifier,
	})

	sys.AddHealthCheck(c)
	sys.AddMetrics(c)
	sys.AddGauges(c.AlertGauges())
	sys.AddService(func(ctx context.Context) error {
		worker.RunEvery(ctx, worker.EveryConfig{
			Name:        "health-check",
			Interval:    s.IntervalDuration(),
			MaxWorkTime: c.MaxPassTime(),
			WorkFunc:    c.Run,
		})
		return nil
	})
	return c
}
