package mongofixture

import (
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/mongomonitor/testing/testcontext"
)

func TestSetup(t *testing.T) {
	ctx := testcontext.Background()
	fix := Setup(ctx, t)

	t.Run("Check we got an isolated database", func(t *testing.T) {
		assert.Check(t, cmp.Contains(fix.Database, "-TestSetup"))
		names, err := fix.Client.ListDatabaseNames(ctx, map[string]string{"name": fix.Database})
		assert.Assert(t, err)
		assert.Check(t, cmp.DeepEqual(names, []string{fix.Database}))
	})

	t.Run("Ping the member", func(t *testing.T) {
		assert.Check(t, fix.Client.Ping(ctx, readpref.Nearest()))
	})
}

func TestTruncate(t *testing.T) {
	assert.Check(t, cmp.Equal(truncate("short"), "short"))
	assert.Check(t, cmp.Len(truncate(strings.Repeat("a", 100)), 63))
}
