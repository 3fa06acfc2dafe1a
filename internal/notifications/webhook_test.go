package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defacewatch/defacewatch/internal/alerting"
	"github.com/defacewatch/defacewatch/internal/dferrors"
	"github.com/defacewatch/defacewatch/internal/models"
)

func webhookAlert() *alerting.Alert {
	return &alerting.Alert{
		ID:                  "alert-1",
		Type:                alerting.AlertDefacementDetected,
		Severity:            alerting.SeverityCritical,
		Title:               "URGENT: Defacement detected",
		ClassificationLabel: models.ClassificationDefacement,
		ConfidenceScore:     0.92,
		Context:             alerting.AlertContext{WebsiteURL: "https://example.com"},
		CreatedAt:           time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWebhookDeliverPostsJSON(t *testing.T) {
	var got webhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewWebhookDeliverer()
	err := d.Deliver(context.Background(), webhookAlert(), []string{srv.URL}, []string{"analyst-1"})
	require.NoError(t, err)

	assert.Equal(t, "alert-1", got.AlertID)
	assert.Equal(t, "DEFACEMENT_DETECTED", got.Type)
	assert.Equal(t, "CRITICAL", got.Severity)
	assert.Equal(t, []string{"analyst-1"}, got.Users)
}

func TestWebhookDeliverFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewWebhookDeliverer()
	err := d.Deliver(context.Background(), webhookAlert(), []string{srv.URL}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, dferrors.ErrDelivery)
	assert.True(t, dferrors.IsRetryable(err))
}

func TestWebhookDeliverSkipsNonURLChannels(t *testing.T) {
	d := NewWebhookDeliverer()
	err := d.Deliver(context.Background(), webhookAlert(), []string{"email", "slack"}, nil)
	assert.NoError(t, err)
}
