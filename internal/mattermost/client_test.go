package mattermost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/addon-ratings/internal/config"
	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

func TestRatingQueued(t *testing.T) {
	var got Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(&config.MattermostConfig{WebhookURL: server.URL, Channel: "ratings", Enabled: true},
		"https://ratings.example/", logger.New("debug", "text", "stdout"))

	score := 1
	body := "buy cheap stuff"
	rating := &models.Rating{ID: 5, AddonID: 3, Score: &score, Body: &body, Addon: models.Addon{Name: "Tab Tamer"}}

	require.NoError(t, client.RatingQueued(context.Background(), rating, models.FlagAutoMatch, "Words matched: [cheap]"))

	assert.Equal(t, "ratings", got.Channel)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "Rating #5 on Tab Tamer", got.Attachments[0].Title)
	assert.Equal(t, "https://ratings.example/api/v1/ratings/5", got.Attachments[0].TitleLink)
	assert.Len(t, got.Attachments[0].Fields, 3)
}

func TestSendMessage_Disabled(t *testing.T) {
	client := NewClient(&config.MattermostConfig{Enabled: false}, "", logger.New("debug", "text", "stdout"))
	assert.NoError(t, client.SendMessage(context.Background(), &Message{Text: "hi"}))
}

func TestSendMessage_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(&config.MattermostConfig{WebhookURL: server.URL, Enabled: true}, "", logger.New("debug", "text", "stdout"))
	assert.Error(t, client.SendMessage(context.Background(), &Message{Text: "hi"}))
}
