package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	prev := GitSHA
	t.Cleanup(func() { GitSHA = prev })
	GitSHA = "abc123"
	assert.Equal(t, "needlesim dev (abc123, built unknown)", String())
}
