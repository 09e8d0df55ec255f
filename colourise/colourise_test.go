package colourise

import (
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestApplyColour_Deterministic(t *testing.T) {
	a := ApplyColour("mongo-1:27017")
	assert.Check(t, cmp.Equal(a, ApplyColour("mongo-1:27017")))
	assert.Check(t, strings.HasPrefix(a, "\033[1;38;5;"))
	assert.Check(t, strings.HasSuffix(a, "mongo-1:27017\033[0m"))
}

func TestErrorHighlight(t *testing.T) {
	assert.Check(t, cmp.Equal(ErrorHighlight("error"), "\033[1;37;41merror\033[0m"))
}
