package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionsAreOrdered(t *testing.T) {
	got, err := versions()
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_audit_events", "0002_audit_events_correlation"}, got)
}
