package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/forest-guardian/ndwi-water-cli/internal/utils"
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type DiscordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []DiscordField `json:"fields,omitempty"`
}

const (
	colorRed   = 16711680
	colorGreen = 65280
)

// Discord posts analysis notifications to webhooks. An empty URL disables
// that kind of notification.
type Discord struct {
	ErrorURL   string
	SuccessURL string
	client     *http.Client
}

func NewDiscord(errorURL, successURL string) *Discord {
	return &Discord{
		ErrorURL:   errorURL,
		SuccessURL: successURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *Discord) NotifyError(ctx context.Context, errorMessage string) error {
	return d.send(ctx, d.ErrorURL, DiscordMessage{
		Embeds: []DiscordEmbed{
			{
				Title:       "🚨 NDWI analysis failed",
				Description: fmt.Sprintf("An error occurred: %s", errorMessage),
				Color:       colorRed,
			},
		},
	})
}

func (d *Discord) NotifySuccess(ctx context.Context, summary string, fields map[string]string) error {
	embed := DiscordEmbed{
		Title:       "✅ NDWI analysis complete",
		Description: summary,
		Color:       colorGreen,
	}
	for _, name := range utils.SortedKeys(fields) {
		embed.Fields = append(embed.Fields, DiscordField{Name: name, Value: fields[name], Inline: true})
	}
	return d.send(ctx, d.SuccessURL, DiscordMessage{Embeds: []DiscordEmbed{embed}})
}

func (d *Discord) send(ctx context.Context, url string, message DiscordMessage) error {
	if d == nil || url == "" {
		return nil
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}
	return nil
}
