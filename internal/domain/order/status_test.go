package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLegacyStatus(t *testing.T) {
	tests := map[string]Status{
		"pending":    StatusPending,
		"processing": StatusProcessing,
		"completed":  StatusCompleted,
		"cancelled":  StatusCancelled,
		"refunded":   StatusRefunded,
		"on-hold":    StatusOnHold,
		"failed":     StatusOnHold,
		"":           StatusOnHold,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ParseLegacyStatus(in))
		})
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
		assert.NotEqual(t, string(s), s.Label())
	}

	_, err := ParseStatus("shipped")
	assert.Error(t, err)
	assert.Equal(t, "shipped", Status("shipped").Label())
}
