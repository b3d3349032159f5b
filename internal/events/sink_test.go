package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestEncode(t *testing.T) {
	at := time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC)
	data, err := encode(DomainEvent{Type: "booking.accepted", BookingID: "b-1", Status: "ACCEPTED", At: at})
	require.NoError(t, err)

	assert.Equal(t, "booking.accepted", gjson.GetBytes(data, "type").String())
	assert.Equal(t, "b-1", gjson.GetBytes(data, "bookingId").String())
	assert.Equal(t, "2026-01-12T10:00:00Z", gjson.GetBytes(data, "at").String())
	assert.False(t, gjson.GetBytes(data, "data").Exists())
}

func TestEncode_DefaultsTimestamp(t *testing.T) {
	data, err := encode(DomainEvent{Type: "booking.created", BookingID: "b-2"})
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(data, "at").Time().IsZero())
}

func TestNopSink(t *testing.T) {
	assert.NoError(t, NopSink{}.Emit(context.Background(), DomainEvent{}))
}
