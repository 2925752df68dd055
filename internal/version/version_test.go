package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	oldV, oldC, oldD := Version, GitCommit, BuildDate
	t.Cleanup(func() { Version, GitCommit, BuildDate = oldV, oldC, oldD })

	Version, GitCommit, BuildDate = "1.2.3", "abc123", "2024-05-01"
	assert.Equal(t, "lahidna 1.2.3 (commit abc123, built 2024-05-01)", String())

	v, c, d := Info()
	assert.Equal(t, []string{"1.2.3", "abc123", "2024-05-01"}, []string{v, c, d})
}
