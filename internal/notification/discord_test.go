package notification_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forest-guardian/flood-mapper/internal/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscord_SendSuccess(t *testing.T) {
	var got notification.DiscordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := notification.NewDiscord("", srv.URL)
	require.NoError(t, d.SendSuccess(context.Background(), "3 flooded pixels"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "3 flooded pixels", got.Embeds[0].Description)
	assert.Equal(t, 65280, got.Embeds[0].Color)

	assert.NoError(t, d.SendError(context.Background(), "ignored"), "empty url disables notifications")
}

func TestDiscord_SendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := notification.NewDiscord(srv.URL, "").SendError(context.Background(), "boom")
	assert.ErrorContains(t, err, "400")
}
