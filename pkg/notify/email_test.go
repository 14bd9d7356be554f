package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
	"github.com/ogulcanaydogan/basket-guardian/pkg/notify"
)

func TestNewResend_MissingConfig(t *testing.T) {
	_, err := notify.NewResend("", "alerts@example.com")
	assert.ErrorIs(t, err, model.ErrNotConfigured)

	_, err = notify.NewResend("re_key", "")
	assert.ErrorIs(t, err, model.ErrNotConfigured)
}

func TestResend_Send(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"email-123"}`))
	}))
	defer server.Close()

	mailer, err := notify.NewResend("re_key", "alerts@example.com", notify.WithResendURL(server.URL))
	require.NoError(t, err)

	id, err := mailer.Send(context.Background(), "ana@example.com", "Hello", "<p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, "email-123", id)
	assert.Equal(t, "alerts@example.com", received["from"])
	assert.Equal(t, []any{"ana@example.com"}, received["to"])
	assert.Equal(t, "Hello", received["subject"])
	assert.Equal(t, "<p>hi</p>", received["html"])
}

func TestResend_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid to"}`))
	}))
	defer server.Close()

	mailer, err := notify.NewResend("re_key", "alerts@example.com", notify.WithResendURL(server.URL))
	require.NoError(t, err)

	_, err = mailer.Send(context.Background(), "bad", "Hello", "<p>hi</p>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}
