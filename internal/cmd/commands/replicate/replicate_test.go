package replicate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSource(t *testing.T) {
	a, b := newSource(), newSource()
	assert.True(t, strings.HasPrefix(a, "replica-"))
	assert.NotEqual(t, a, b)
}
