package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jormeli/slangload/pkg/version"
)

func TestInfo_IncludesCommit(t *testing.T) {
	t.Parallel()

	assert.Contains(t, version.Info(), version.Commit)
}
