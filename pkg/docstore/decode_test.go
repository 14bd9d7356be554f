package docstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/basket-guardian/pkg/docstore"
)

func TestDocument_DataTo(t *testing.T) {
	type record struct {
		UserID      string    `mapstructure:"userId"`
		TotalAmount float64   `mapstructure:"totalAmount"`
		Date        time.Time `mapstructure:"date"`
		SentAt      time.Time `mapstructure:"sentAt"`
		Missing     time.Time `mapstructure:"missing"`
	}
	when := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	doc := docstore.Document{
		Ref: docstore.NewRef("history", "h1"),
		Data: map[string]any{
			"userId":      "u1",
			"totalAmount": int64(12),
			"date":        "2026-03-14T09:30:00.000000000Z",
			"sentAt":      when.UnixMilli(),
			"missing":     nil,
		},
	}

	var got record
	require.NoError(t, doc.DataTo(&got))
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, 12.0, got.TotalAmount)
	assert.True(t, when.Equal(got.Date))
	assert.True(t, when.Equal(got.SentAt))
	assert.True(t, got.Missing.IsZero())
}

func TestDocument_DataToBadTimestamp(t *testing.T) {
	doc := docstore.Document{
		Ref:  docstore.NewRef("history", "h1"),
		Data: map[string]any{"date": "yesterday"},
	}
	var got struct {
		Date time.Time `mapstructure:"date"`
	}
	assert.Error(t, doc.DataTo(&got))
}
