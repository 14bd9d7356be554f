package notify_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/basket-guardian/pkg/notify"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIsValidPushToken(t *testing.T) {
	tests := []struct {
		token string
		valid bool
	}{
		{"ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]", true},
		{"ExpoPushToken[abc123]", true},
		{"2c0a7c8e-3f5e-4d6b-9f7a-1b2c3d4e5f60", true},
		{"ExponentPushToken[]", false},
		{"fcm:abcdef", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.valid, notify.IsValidPushToken(tt.token))
		})
	}
}

func TestExpo_SendBulkChunksAndSkipsInvalid(t *testing.T) {
	var chunkSizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer expo-token", r.Header.Get("Authorization"))
		var msgs []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msgs))
		chunkSizes = append(chunkSizes, len(msgs))

		data := make([]map[string]string, len(msgs))
		for i, m := range msgs {
			assert.Equal(t, "Milk added", m["title"])
			data[i] = map[string]string{"status": "ok", "id": fmt.Sprintf("ticket-%v", m["to"])}
		}
		if len(msgs) < 100 {
			data[0] = map[string]string{"status": "error", "message": "DeviceNotRegistered"}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer server.Close()

	tokens := []string{"not-a-token"}
	for i := 0; i < 150; i++ {
		tokens = append(tokens, fmt.Sprintf("ExponentPushToken[device-%03d]", i))
	}

	pusher := notify.NewExpo("expo-token", quietLogger(), notify.WithExpoURL(server.URL))
	tickets, err := pusher.SendBulk(context.Background(), tokens, notify.PushMessage{Title: "Milk added", Body: "Ana added milk"})
	require.NoError(t, err)

	assert.Equal(t, []int{100, 50}, chunkSizes)
	require.Len(t, tickets, 150)
	assert.True(t, tickets[0].OK())
	assert.Equal(t, "ExponentPushToken[device-000]", tickets[0].Token)
	assert.False(t, tickets[100].OK())
	assert.Equal(t, "DeviceNotRegistered", tickets[100].Message)
}

func TestExpo_SendBulkNoValidTokens(t *testing.T) {
	pusher := notify.NewExpo("", quietLogger(), notify.WithExpoURL("http://127.0.0.1:0"))
	tickets, err := pusher.SendBulk(context.Background(), []string{"bogus"}, notify.PushMessage{Title: "x"})
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestExpo_SendBulkGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	pusher := notify.NewExpo("", quietLogger(), notify.WithExpoURL(server.URL))
	_, err := pusher.SendBulk(context.Background(), []string{"ExpoPushToken[a]"}, notify.PushMessage{Title: "x"})
	assert.Error(t, err)
}
