package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	colorGreen  = 0x2ECC71 // new_order
	colorBlue   = 0x3498DB // new_review
	colorOrange = 0xE67E22 // low_stock
)

// DiscordNotifier implements Notifier via Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordNotifier creates a new DiscordNotifier.
func NewDiscordNotifier(webhookURL string, opts ...DiscordOption) *DiscordNotifier {
	d := &DiscordNotifier{
		webhookURL: webhookURL,
		client:     http.DefaultClient,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DiscordOption configures a DiscordNotifier.
type DiscordOption func(*DiscordNotifier)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) DiscordOption {
	return func(d *DiscordNotifier) {
		d.client = c
	}
}

// discordWebhookPayload is the Discord webhook JSON structure.
type discordWebhookPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Color       int                 `json:"color"`
	Description string              `json:"description,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Notify sends the event as a single Discord embed.
func (d *DiscordNotifier) Notify(ctx context.Context, event Event) error {
	payload := discordWebhookPayload{
		Embeds: []discordEmbed{buildEmbed(event)},
	}
	return d.post(ctx, payload)
}

func buildEmbed(event Event) discordEmbed {
	embed := discordEmbed{
		Title: embedTitle(event.Type),
		Color: eventColor(event.Type),
		Fields: []discordEmbedField{
			{Name: "Connection", Value: event.ConnectionID, Inline: true},
			{Name: "Shop", Value: fmt.Sprintf("%d", event.ShopID), Inline: true},
		},
	}

	switch event.Type {
	case TypeNewOrder:
		embed.Description = fmt.Sprintf("%v new order(s)", event.Data["count"])
	case TypeNewReview:
		embed.Description = fmt.Sprintf("%v new review(s), average rating %v",
			event.Data["count"], event.Data["review_average"])
	case TypeLowStock:
		embed.Description = fmt.Sprintf("%v has only %v left in stock",
			event.Data["title"], event.Data["quantity"])
	}

	return embed
}

func embedTitle(eventType string) string {
	switch eventType {
	case TypeNewOrder:
		return "New Order"
	case TypeNewReview:
		return "New Review"
	case TypeLowStock:
		return "Low Stock Alert"
	default:
		return eventType
	}
}

func eventColor(eventType string) int {
	switch eventType {
	case TypeNewOrder:
		return colorGreen
	case TypeNewReview:
		return colorBlue
	default:
		return colorOrange
	}
}

func (d *DiscordNotifier) post(ctx context.Context, payload discordWebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		d.webhookURL,
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("creating discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("discord rate limited (429)")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("discord returned %d (body unreadable)", resp.StatusCode)
		}
		return fmt.Errorf("discord returned %d: %s", resp.StatusCode, respBody)
	}

	return nil
}
