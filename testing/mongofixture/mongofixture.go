/*
Package mongofixture connects tests to a live replica set member and gives each test its own
database, so they don't interfere.

The member is taken from MONGOMONITOR_TEST_HOST, with optional MONGOMONITOR_TEST_USERNAME and
MONGOMONITOR_TEST_PASSWORD. Tests are skipped when no host is set.
*/
package mongofixture

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gotest.tools/v3/assert"

	"github.com/circleci/mongomonitor/o11y"
)

type Fixture struct {
	Host     string
	Database string
	Username string
	Password string
	Client   *mongo.Client
}

// Setup skips t when no member is configured.
func Setup(ctx context.Context, t testing.TB) *Fixture {
	t.Helper()

	host := os.Getenv("MONGOMONITOR_TEST_HOST")
	if host == "" {
		t.Skip("MONGOMONITOR_TEST_HOST not set")
	}

	ctx, span := o11y.StartSpan(ctx, "mongofixture: setup")
	defer span.End()

	f := &Fixture{
		Host:     host,
		Username: os.Getenv("MONGOMONITOR_TEST_USERNAME"),
		Password: os.Getenv("MONGOMONITOR_TEST_PASSWORD"),
	}

	opts := options.Client().
		ApplyURI("mongodb://" + host).
		SetAppName("mongofixture").
		SetDirect(true).
		SetServerSelectionTimeout(10 * time.Second)
	if f.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   f.Username,
			Password:   f.Password,
			AuthSource: "admin",
		})
	}

	client, err := mongo.Connect(ctx, opts)
	assert.Assert(t, err)
	t.Cleanup(func() {
		assert.Check(t, client.Disconnect(ctx))
	})
	f.Client = client

	f.Database = truncate(fmt.Sprintf("%s-%s", randomSuffix(), strings.ReplaceAll(t.Name(), "/", "_")))
	span.AddField("database", f.Database)

	db := client.Database(f.Database)
	// dbStats only reports storage for databases that exist.
	_, err = db.Collection("fixture").InsertOne(ctx, bson.D{{Key: "created", Value: time.Now()}})
	assert.Assert(t, err)
	t.Cleanup(func() {
		assert.Check(t, db.Drop(ctx))
	})

	return f
}

func randomSuffix() string {
	bytes := make([]byte, 3)
	if _, err := rand.Read(bytes); err != nil {
		return "not-random"
	}
	return hex.EncodeToString(bytes)
}

// truncate keeps names within the database name limit.
func truncate(s string) string {
	if len(s) >= 64 {
		return s[:63]
	}
	return s
}
