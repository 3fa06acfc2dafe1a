package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defacewatch/defacewatch/internal/alerting"
	"github.com/defacewatch/defacewatch/internal/dferrors"
)

type fakeDeliverer struct {
	calls    int
	failures int
	err      error
	channels [][]string
	users    [][]string
}

func (f *fakeDeliverer) Deliver(ctx context.Context, alert *alerting.Alert, channels, users []string) error {
	f.calls++
	f.channels = append(f.channels, channels)
	f.users = append(f.users, users)
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	return nil
}

func criticalAlert(websiteID string) *alerting.Alert {
	return &alerting.Alert{
		ID:             "alert-1",
		Type:           alerting.AlertDefacementDetected,
		Severity:       alerting.SeverityCritical,
		SuppressionKey: websiteID + ":DEFACEMENT_DETECTED",
		Context:        alerting.AlertContext{WebsiteID: websiteID},
		CreatedAt:      time.Now(),
	}
}

func testRouter(d Deliverer) (*Router, *time.Time) {
	r := NewRouter(d)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	r.lastPrune = now
	r.sleep = func(time.Duration) {}
	return r, &now
}

func TestDefaultTemplatesExist(t *testing.T) {
	r, _ := testRouter(&fakeDeliverer{})

	want := []string{
		"benign_change", "critical_defacement", "high_defacement",
		"site_down_critical", "standard_defacement", "system_error",
	}
	var got []string
	for _, tmpl := range r.Templates() {
		got = append(got, tmpl.ID)
	}
	assert.Equal(t, want, got)
}

func TestRouteMatchesAndDelivers(t *testing.T) {
	d := &fakeDeliverer{}
	r, _ := testRouter(d)

	result, err := r.Route(context.Background(), criticalAlert("site-1"),
		[]string{"#security"}, []string{"oncall"})

	require.NoError(t, err)
	assert.Equal(t, []string{"critical_defacement"}, result.Delivered)
	assert.Empty(t, result.Throttled)
	assert.Equal(t, 1, d.calls)
	assert.Equal(t, []string{"#security"}, d.channels[0])
	assert.Equal(t, []string{"oncall"}, d.users[0])
}

func TestRouteConditionMismatch(t *testing.T) {
	d := &fakeDeliverer{}
	r, _ := testRouter(d)

	// A HIGH defacement alert must not match the CRITICAL template.
	alert := criticalAlert("site-1")
	alert.Severity = alerting.SeverityHigh

	result, err := r.Route(context.Background(), alert, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"high_defacement"}, result.MatchedTemplates)
	assert.Equal(t, 1, d.calls)
}

func TestRouteThrottle(t *testing.T) {
	d := &fakeDeliverer{}
	r, now := testRouter(d)

	_, err := r.Route(context.Background(), criticalAlert("site-1"), nil, nil)
	require.NoError(t, err)

	// One minute later: inside the 5-minute throttle window.
	*now = now.Add(time.Minute)
	result, err := r.Route(context.Background(), criticalAlert("site-1"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"critical_defacement"}, result.Throttled)
	assert.Empty(t, result.Delivered)
	assert.Equal(t, 1, d.calls)

	// Another site is keyed independently.
	result, err = r.Route(context.Background(), criticalAlert("site-2"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"critical_defacement"}, result.Delivered)

	// Past the window the original site delivers again.
	*now = now.Add(5 * time.Minute)
	result, err = r.Route(context.Background(), criticalAlert("site-1"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"critical_defacement"}, result.Delivered)
}

func TestRouteRetriesRecoverableErrors(t *testing.T) {
	d := &fakeDeliverer{
		failures: 2,
		err:      dferrors.New(dferrors.KindDelivery, "slack.Deliver", errors.New("rate limited")),
	}
	r, _ := testRouter(d)

	result, err := r.Route(context.Background(), criticalAlert("site-1"), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, d.calls)
	assert.Equal(t, []string{"critical_defacement"}, result.Delivered)
}

func TestRouteDoesNotRetryValidationErrors(t *testing.T) {
	d := &fakeDeliverer{
		failures: 10,
		err:      dferrors.Validation("slack.Deliver", errors.New("bad channel")),
	}
	r, _ := testRouter(d)

	result, err := r.Route(context.Background(), criticalAlert("site-1"), nil, nil)

	require.Error(t, err)
	assert.Equal(t, 1, d.calls)
	assert.Empty(t, result.Delivered)
}

func TestRouteGivesUpAfterMaxRetries(t *testing.T) {
	d := &fakeDeliverer{
		failures: 10,
		err:      dferrors.New(dferrors.KindDelivery, "slack.Deliver", errors.New("down")),
	}
	r, _ := testRouter(d)

	_, err := r.Route(context.Background(), criticalAlert("site-1"), nil, nil)

	require.Error(t, err)
	assert.Equal(t, 1+maxRetries, d.calls)
}

func TestEscalationScheduling(t *testing.T) {
	d := &fakeDeliverer{}
	r, now := testRouter(d)

	_, err := r.Route(context.Background(), criticalAlert("site-1"), nil, nil)
	require.NoError(t, err)

	assert.Empty(t, r.PendingEscalations())

	*now = now.Add(15 * time.Minute)
	due := r.PendingEscalations()
	require.Len(t, due, 1)
	assert.Equal(t, "alert-1", due[0].AlertID)
	assert.Equal(t, "critical_defacement", due[0].TemplateID)
}

func TestHistoryPrune(t *testing.T) {
	d := &fakeDeliverer{}
	r, now := testRouter(d)

	_, err := r.Route(context.Background(), criticalAlert("site-1"), nil, nil)
	require.NoError(t, err)
	assert.Len(t, r.history, 1)

	// 25 hours later another routing pass prunes the stale entry.
	*now = now.Add(25 * time.Hour)
	_, err = r.Route(context.Background(), criticalAlert("site-2"), nil, nil)
	require.NoError(t, err)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, stale := r.history["critical_defacement|site-1:DEFACEMENT_DETECTED"]
	assert.False(t, stale)
}

func TestConditionMembership(t *testing.T) {
	tmpl := &Template{
		AlertType:  alerting.AlertSuspiciousActivity,
		Conditions: map[string]interface{}{"severity": []string{"MEDIUM", "LOW"}},
	}

	alert := &alerting.Alert{Type: alerting.AlertSuspiciousActivity, Severity: alerting.SeverityLow}
	assert.True(t, tmpl.matches(alert))

	alert.Severity = alerting.SeverityHigh
	assert.False(t, tmpl.matches(alert))

	alert.Type = alerting.AlertSystemError
	assert.False(t, tmpl.matches(alert))
}
