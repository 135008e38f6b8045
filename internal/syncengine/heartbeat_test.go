package syncengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orchardfs/orchard/internal/remote"
)

func TestNewHeartbeat_StartsOnline(t *testing.T) {
	h := NewHeartbeat(remote.NewMockAdapter(), testLogger())
	assert.True(t, h.Online())
}
