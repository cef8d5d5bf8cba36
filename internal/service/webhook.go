package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/deba607/AbJee-Travel-sub001/internal/model"
)

// WebhookNotifier posts new moderation reports to an ops webhook
// (Slack/Discord-compatible payload). Delivery is fire-and-forget; a down
// webhook must never slow down or fail the reporting user's request.
type WebhookNotifier struct {
	reportsURL string
	client     *http.Client
}

func NewWebhookNotifier(reportsURL string) *WebhookNotifier {
	return &WebhookNotifier{
		reportsURL: reportsURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color,omitempty"`
	Fields      []webhookField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type webhookPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []webhookEmbed `json:"embeds"`
}

func (n *WebhookNotifier) NotifyReport(report *model.Report, reporter model.UserRef) {
	if n.reportsURL == "" {
		return
	}
	payload := webhookPayload{
		Username: "wanderlink-moderation",
		Embeds: []webhookEmbed{{
			Title:       "New message report",
			Description: report.Description,
			Color:       0xE74C3C,
			Fields: []webhookField{
				{Name: "Reason", Value: report.Reason, Inline: true},
				{Name: "Reporter", Value: reporter.Username, Inline: true},
				{Name: "Room", Value: report.RoomID, Inline: true},
				{Name: "Message", Value: report.MessageID},
			},
			Timestamp: report.CreatedAt.Format(time.RFC3339),
		}},
	}
	n.send(n.reportsURL, payload)
}

func (n *WebhookNotifier) send(url string, payload webhookPayload) {
	go func() {
		body, err := json.Marshal(payload)
		if err != nil {
			log.Printf("[webhook] marshal error: %v", err)
			return
		}
		resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			log.Printf("[webhook] send error: %v", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			log.Printf("[webhook] unexpected status: %s", fmt.Sprint(resp.StatusCode))
		}
	}()
}
