// Package mattermost provides webhook client for sending notifications to Mattermost.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aimd54/addon-ratings/internal/config"
	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

// Client handles Mattermost webhook notifications.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	siteURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new Mattermost client.
func NewClient(cfg *config.MattermostConfig, siteURL string, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled,
		siteURL:    strings.TrimSuffix(siteURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// Message represents a Mattermost message payload.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment.
type Attachment struct {
	Fallback  string  `json:"fallback,omitempty"`
	Color     string  `json:"color,omitempty"`
	Pretext   string  `json:"pretext,omitempty"`
	Title     string  `json:"title,omitempty"`
	TitleLink string  `json:"title_link,omitempty"`
	Text      string  `json:"text,omitempty"`
	Fields    []Field `json:"fields,omitempty"`
	Footer    string  `json:"footer,omitempty"`
}

// Field represents a message field.
type Field struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SendMessage sends a message to Mattermost.
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Mattermost is disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to Mattermost: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mattermost returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent message to Mattermost")

	return nil
}

// RatingQueued posts a moderation alert for a rating that screening put in the queue.
func (c *Client) RatingQueued(ctx context.Context, rating *models.Rating, reason, note string) error {
	if !c.enabled {
		return nil
	}

	body := rating.BodyText()
	if len(body) > 300 {
		body = body[:300] + "…"
	}
	score := "reply"
	if rating.Score != nil {
		score = fmt.Sprintf("%d/5", *rating.Score)
	}

	attachment := Attachment{
		Fallback:  fmt.Sprintf("Rating %d queued for moderation (%s)", rating.ID, reason),
		Color:     "#d9822b",
		Title:     fmt.Sprintf("Rating #%d on %s", rating.ID, addonLabel(rating)),
		TitleLink: fmt.Sprintf("%s/api/v1/ratings/%d", c.siteURL, rating.ID),
		Text:      body,
		Fields: []Field{
			{Short: true, Title: "Reason", Value: reason},
			{Short: true, Title: "Score", Value: score},
		},
		Footer: "addon-ratings",
	}
	if note != "" {
		attachment.Fields = append(attachment.Fields, Field{Title: "Details", Value: note})
	}

	return c.SendMessage(ctx, &Message{
		Username:    "Ratings Moderation",
		Text:        "A rating was automatically sent to the moderation queue.",
		Attachments: []Attachment{attachment},
	})
}

func addonLabel(r *models.Rating) string {
	if r.Addon.Name != "" {
		return r.Addon.Name
	}
	return fmt.Sprintf("add-on %d", r.AddonID)
}
