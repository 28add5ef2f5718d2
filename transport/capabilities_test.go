package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilities_RequiresEarlySubscription(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		want bool
	}{
		{name: "replays", caps: Capabilities{SupportsReplay: true}, want: false},
		{name: "no replay", caps: Capabilities{}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.caps.RequiresEarlySubscription())
		})
	}
}

func TestPredefinedCapabilities(t *testing.T) {
	assert.Equal(t, "channel", ChannelCapabilities.Name)
	assert.False(t, ChannelCapabilities.Durable)
	assert.Equal(t, "io", IOCapabilities.Name)
	assert.True(t, IOCapabilities.Durable)
	assert.False(t, IOCapabilities.RequiresEarlySubscription())
}
