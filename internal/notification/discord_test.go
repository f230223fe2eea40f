package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscord_NotifySuccess(t *testing.T) {
	var got DiscordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord("", srv.URL)
	err := d.NotifySuccess(context.Background(), "London: 12.5% water", map[string]string{
		"scene": "S2B_30UXC_20240512_0_L2A",
		"cloud": "1.5%",
	})
	require.NoError(t, err)

	require.Len(t, got.Embeds, 1)
	assert.Equal(t, colorGreen, got.Embeds[0].Color)
	assert.Equal(t, "London: 12.5% water", got.Embeds[0].Description)
	require.Len(t, got.Embeds[0].Fields, 2)
	assert.Equal(t, "cloud", got.Embeds[0].Fields[0].Name)
	assert.Equal(t, "scene", got.Embeds[0].Fields[1].Name)
}

func TestDiscord_NotifyError(t *testing.T) {
	var got DiscordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscord(srv.URL, "").NotifyError(context.Background(), "no scenes"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, colorRed, got.Embeds[0].Color)
	assert.Contains(t, got.Embeds[0].Description, "no scenes")
}

func TestDiscord_RejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscord(srv.URL, "").NotifyError(context.Background(), "boom")
	assert.ErrorContains(t, err, "429")
}

func TestDiscord_DisabledWithoutURL(t *testing.T) {
	d := NewDiscord("", "")
	assert.NoError(t, d.NotifyError(context.Background(), "boom"))
	assert.NoError(t, d.NotifySuccess(context.Background(), "ok", nil))

	var nilDiscord *Discord
	assert.NoError(t, nilDiscord.NotifyError(context.Background(), "boom"))
}
