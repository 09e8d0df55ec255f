package mongoex

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gwatts/rootcerts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/circleci/mongomonitor/config/secret"
	"github.com/circleci/mongomonitor/o11y"
	"github.com/circleci/mongomonitor/replset"
)

type Auth struct {
	Username   string
	Password   secret.String
	AuthSource string
}

// URI builds the connection string for a single member. The result holds the password,
// so it must not be logged.
func URI(host, database string, auth Auth) string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   host,
		Path:   "/" + database,
	}
	if auth.Username != "" {
		u.User = url.UserPassword(auth.Username, auth.Password.Raw())
	}
	if auth.AuthSource != "" {
		u.RawQuery = url.Values{"authSource": {auth.AuthSource}}.Encode()
	}
	return u.String()
}

type Config struct {
	AppName  string
	Database string
	Auth     Auth
	TLS      bool
	// ConnectTimeout bounds both establishing the connection and selecting the member.
	ConnectTimeout time.Duration
}

// Dialer opens direct connections to single members. It is safe for concurrent use.
type Dialer struct {
	cfg     Config
	metrics *poolMetrics
}

func NewDialer(cfg Config) *Dialer {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Dialer{
		cfg:     cfg,
		metrics: newPoolMetrics("mongo"),
	}
}

// Dial connects to host without discovering the rest of the replica set, and pings it
// so an unreachable member fails here rather than on its first command.
func (d *Dialer) Dial(ctx context.Context, host string) (_ *Node, err error) {
	ctx, span := o11y.StartSpan(ctx, "mongoex: dial")
	defer o11y.End(span, &err)
	span.AddField("host", host)
	span.AddField("username", d.cfg.Auth.Username)
	span.AddField("tls", d.cfg.TLS)

	opts := options.Client().
		ApplyURI(URI(host, d.cfg.Database, d.cfg.Auth)).
		SetAppName(d.cfg.AppName).
		SetDirect(true).
		SetConnectTimeout(d.cfg.ConnectTimeout).
		SetServerSelectionTimeout(d.cfg.ConnectTimeout).
		SetPoolMonitor(d.metrics.PoolMonitor(nil))

	if d.cfg.TLS {
		opts = opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    rootcerts.ServerCertPool(),
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongoex: connect: %w", err)
	}

	err = client.Ping(ctx, readpref.Nearest())
	if err != nil {
		_ = client.Disconnect(o11y.Detach(ctx))
		return nil, fmt.Errorf("mongoex: ping: %w", err)
	}

	return &Node{
		host:     host,
		database: d.cfg.Database,
		client:   client,
	}, nil
}

// MetricName and Gauges report the connection pool events of every connection dialled.
func (d *Dialer) MetricName() string {
	return d.metrics.MetricName()
}

func (d *Dialer) Gauges(ctx context.Context) map[string]float64 {
	return d.metrics.Gauges(ctx)
}

// Node is a direct connection to one replica set member.
type Node struct {
	host     string
	database string
	client   *mongo.Client
}

func (n *Node) Host() string {
	return n.host
}

func (n *Node) ReplSetStatus(ctx context.Context) (status replset.Status, err error) {
	err = n.adminCommand(ctx, "replSetGetStatus", &status)
	return status, err
}

func (n *Node) ReplSetConfig(ctx context.Context) (replset.Config, error) {
	var resp replset.ConfigResponse
	err := n.adminCommand(ctx, "replSetGetConfig", &resp)
	return resp.Config, err
}

func (n *Node) Hello(ctx context.Context) (hello replset.Hello, err error) {
	err = n.adminCommand(ctx, "hello", &hello)
	return hello, err
}

func (n *Node) DBStats(ctx context.Context) (stats replset.DBStats, err error) {
	ctx, span := Span(ctx, n.database, "dbStats")
	defer o11y.End(span, &err)
	span.AddField("host", n.host)

	err = n.client.Database(n.database).RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}}).Decode(&stats)
	if err != nil {
		return stats, fmt.Errorf("dbStats: %w", err)
	}
	return stats, nil
}

// OldestOplogEntry returns the first entry in natural order, which is the oldest the
// capped oplog still holds.
func (n *Node) OldestOplogEntry(ctx context.Context) (entry replset.OplogEntry, err error) {
	ctx, span := Span(ctx, "oplog.rs", "oldest")
	defer o11y.End(span, &err)
	span.AddField("host", n.host)

	opts := options.FindOne().
		SetSort(bson.D{{Key: "$natural", Value: 1}}).
		SetProjection(bson.D{{Key: "ts", Value: 1}})
	err = n.client.Database("local").Collection("oplog.rs").FindOne(ctx, bson.D{}, opts).Decode(&entry)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return entry, replset.ErrOplogEmpty
	case err != nil:
		return entry, fmt.Errorf("oplog: %w", err)
	}
	return entry, nil
}

func (n *Node) Close(ctx context.Context) error {
	return n.client.Disconnect(ctx)
}

func (n *Node) adminCommand(ctx context.Context, command string, result interface{}) (err error) {
	ctx, span := Span(ctx, "admin", command)
	defer o11y.End(span, &err)
	span.AddField("host", n.host)

	err = n.client.Database("admin").RunCommand(ctx, bson.D{{Key: command, Value: 1}}).Decode(result)
	if err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}
