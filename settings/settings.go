// Package settings loads the monitor's JSON configuration file.
package settings

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/circleci/mongomonitor/checker"
	"github.com/circleci/mongomonitor/config/secret"
	"github.com/circleci/mongomonitor/mongoex"
	"github.com/circleci/mongomonitor/slack"
)

// Durations are whole or fractional minutes unless noted otherwise.
type Settings struct {
	Members  []string `mapstructure:"members"`
	Auth     Auth     `mapstructure:"auth"`
	Database string   `mapstructure:"database"`

	MinReplicaSetMembers       int     `mapstructure:"minReplicaSetMembers"`
	MaxHeartbeatThreshold      float64 `mapstructure:"maxHeartbeatThreshold"`
	MaxReplicationDelay        float64 `mapstructure:"maxReplicationDelay"`
	MinOplogLength             float64 `mapstructure:"minOplogLength"`
	AlertOnRemainingStoragePer float64 `mapstructure:"alertOnRemainingStoragePer"`

	// Interval is in seconds.
	Interval float64 `mapstructure:"interval"`
	// ConnectTimeout is in seconds.
	ConnectTimeout float64 `mapstructure:"connectTimeout"`
	// CheckTimeout is in seconds, it bounds all the checks against one member.
	CheckTimeout float64 `mapstructure:"checkTimeout"`
	TLS          bool    `mapstructure:"tls"`

	Slack *Slack `mapstructure:"slack"`
}

type Auth struct {
	Username   string        `mapstructure:"username"`
	Password   secret.String `mapstructure:"password"`
	AuthSource string        `mapstructure:"authSource"`
}

type Slack struct {
	ChannelURL    secret.String `mapstructure:"channelUrl"`
	NotifyMembers []string      `mapstructure:"notifyMembers"`
}

const (
	envPassword   = "MONGOMONITOR_AUTH_PASSWORD"
	envChannelURL = "MONGOMONITOR_SLACK_CHANNEL_URL"
)

// Load reads and validates the file at path. Secrets set in the environment take precedence
// over the file.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault("connectTimeout", 10)
	v.SetDefault("checkTimeout", 60)

	if err := v.BindEnv("auth.password", envPassword); err != nil {
		return nil, err
	}
	if err := v.BindEnv("slack.channelUrl", envChannelURL); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("settings: decode %s: %w", path, err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings: invalid %s: %w", path, err)
	}
	return s, nil
}

// Validate reports every problem at once. An empty member list is valid.
func (s *Settings) Validate() error {
	var result error
	add := func(format string, a ...interface{}) {
		result = multierror.Append(result, fmt.Errorf(format, a...))
	}

	for i, m := range s.Members {
		if strings.TrimSpace(m) == "" {
			add("members[%d] is empty", i)
		}
	}
	if s.Database == "" {
		add("database is required")
	}
	if s.Interval <= 0 {
		add("interval must be greater than zero")
	}
	if s.MinReplicaSetMembers < 0 {
		add("minReplicaSetMembers must not be negative")
	}
	for _, d := range []struct {
		name string
		val  float64
	}{
		{name: "maxHeartbeatThreshold", val: s.MaxHeartbeatThreshold},
		{name: "maxReplicationDelay", val: s.MaxReplicationDelay},
		{name: "minOplogLength", val: s.MinOplogLength},
		{name: "connectTimeout", val: s.ConnectTimeout},
		{name: "checkTimeout", val: s.CheckTimeout},
	} {
		if d.val < 0 || math.IsNaN(d.val) {
			add("%s must not be negative", d.name)
		}
	}
	if p := s.AlertOnRemainingStoragePer; p < 0 || p > 100 {
		add("alertOnRemainingStoragePer must be between 0 and 100")
	}
	if s.Auth.Password != "" && s.Auth.Username == "" {
		add("auth.username is required with auth.password")
	}
	if s.Slack != nil && s.Slack.ChannelURL == "" {
		add("slack.channelUrl is required")
	}

	return result
}

func (s *Settings) Thresholds() checker.Thresholds {
	return checker.Thresholds{
		MinReplicaSetMembers:  s.MinReplicaSetMembers,
		MaxHeartbeatAge:       minutes(s.MaxHeartbeatThreshold),
		MaxReplicationDelay:   minutes(s.MaxReplicationDelay),
		MinOplogLength:        minutes(s.MinOplogLength),
		MinFreeStoragePercent: s.AlertOnRemainingStoragePer,
	}
}

func (s *Settings) IntervalDuration() time.Duration {
	return seconds(s.Interval)
}

func (s *Settings) CheckTimeoutDuration() time.Duration {
	return seconds(s.CheckTimeout)
}

func (s *Settings) Mongo(appName string) mongoex.Config {
	return mongoex.Config{
		AppName:  appName,
		Database: s.Database,
		Auth: mongoex.Auth{
			Username:   s.Auth.Username,
			Password:   s.Auth.Password,
			AuthSource: s.Auth.AuthSource,
		},
		TLS:            s.TLS,
		ConnectTimeout: seconds(s.ConnectTimeout),
	}
}

// ErrNoSlack is returned by SlackConfig when no channel is configured.
var ErrNoSlack = errors.New("settings: slack is not configured")

func (s *Settings) SlackConfig() (slack.Config, error) {
	if s.Slack == nil {
		return slack.Config{}, ErrNoSlack
	}
	return slack.Config{
		ChannelURL:    s.Slack.ChannelURL,
		NotifyMembers: s.Slack.NotifyMembers,
	}, nil
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
