package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/defacewatch/defacewatch/internal/alerting"
	"github.com/defacewatch/defacewatch/internal/dferrors"
)

const webhookTimeout = 10 * time.Second

// webhookMessage is the JSON body posted to each channel endpoint.
type webhookMessage struct {
	AlertID        string    `json:"alertId"`
	Type           string    `json:"type"`
	Severity       string    `json:"severity"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	WebsiteURL     string    `json:"websiteUrl"`
	Classification string    `json:"classification"`
	Confidence     float64   `json:"confidence"`
	Actions        []string  `json:"actions,omitempty"`
	Users          []string  `json:"users,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// WebhookDeliverer posts alerts as JSON to channel URLs. Channels that are
// not http(s) URLs are logged and skipped.
type WebhookDeliverer struct {
	client *http.Client
}

// NewWebhookDeliverer builds a deliverer with a bounded request timeout.
func NewWebhookDeliverer() *WebhookDeliverer {
	return &WebhookDeliverer{
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// Deliver posts the alert to every channel URL. The first failure aborts so
// the router's retry covers the whole fan-out.
func (d *WebhookDeliverer) Deliver(ctx context.Context, alert *alerting.Alert, channels, users []string) error {
	msg := webhookMessage{
		AlertID:        alert.ID,
		Type:           string(alert.Type),
		Severity:       string(alert.Severity),
		Title:          alert.Title,
		Description:    alert.Description,
		WebsiteURL:     alert.Context.WebsiteURL,
		Classification: string(alert.ClassificationLabel),
		Confidence:     alert.ConfidenceScore,
		Actions:        alert.RecommendedActions,
		Users:          users,
		CreatedAt:      alert.CreatedAt,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return dferrors.Validation("notifications.Deliver", err)
	}

	for _, channel := range channels {
		if !strings.HasPrefix(channel, "http://") && !strings.HasPrefix(channel, "https://") {
			log.Debug().
				Str("channel", channel).
				Str("alertID", alert.ID).
				Msg("Channel is not a webhook URL, skipping")
			continue
		}
		if err := d.post(ctx, channel, body); err != nil {
			return dferrors.New(dferrors.KindDelivery, "notifications.Deliver", err)
		}
		log.Debug().
			Str("channel", channel).
			Str("alertID", alert.ID).
			Msg("Webhook delivered")
	}
	return nil
}

func (d *WebhookDeliverer) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "defacewatch/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", url, resp.StatusCode)
	}
	return nil
}
