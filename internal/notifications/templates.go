// Package notifications routes alerts to delivery channels through a
// template registry with throttling and escalation bookkeeping.
package notifications

import (
	"time"

	"github.com/defacewatch/defacewatch/internal/alerting"
)

// Template decides who gets notified about which alerts, and how often.
type Template struct {
	ID               string                 `json:"id"`
	AlertType        alerting.AlertType     `json:"alertType"`
	Priority         alerting.Severity      `json:"priority"`
	Channels         []string               `json:"channels"`
	Users            []string               `json:"users"`
	Conditions       map[string]interface{} `json:"conditions,omitempty"`
	ThrottleWindow   time.Duration          `json:"throttleWindow"`
	EscalationWindow time.Duration          `json:"escalationWindow"`
}

// DefaultTemplates returns the built-in template set. Channel and user
// lists start empty; operators extend them via configuration overrides.
func DefaultTemplates() []*Template {
	return []*Template{
		{
			ID:               "critical_defacement",
			AlertType:        alerting.AlertDefacementDetected,
			Priority:         alerting.SeverityCritical,
			Conditions:       map[string]interface{}{"severity": "CRITICAL"},
			ThrottleWindow:   5 * time.Minute,
			EscalationWindow: 15 * time.Minute,
		},
		{
			ID:               "high_defacement",
			AlertType:        alerting.AlertDefacementDetected,
			Priority:         alerting.SeverityHigh,
			Conditions:       map[string]interface{}{"severity": "HIGH"},
			ThrottleWindow:   15 * time.Minute,
			EscalationWindow: 30 * time.Minute,
		},
		{
			ID:             "standard_defacement",
			AlertType:      alerting.AlertSuspiciousActivity,
			Priority:       alerting.SeverityMedium,
			Conditions:     map[string]interface{}{"severity": []string{"MEDIUM", "LOW"}},
			ThrottleWindow: 30 * time.Minute,
		},
		{
			ID:               "site_down_critical",
			AlertType:        alerting.AlertSiteDown,
			Priority:         alerting.SeverityCritical,
			Conditions:       map[string]interface{}{"severity": []string{"HIGH", "CRITICAL"}},
			ThrottleWindow:   5 * time.Minute,
			EscalationWindow: 10 * time.Minute,
		},
		{
			ID:             "system_error",
			AlertType:      alerting.AlertSystemError,
			Priority:       alerting.SeverityMedium,
			ThrottleWindow: 30 * time.Minute,
		},
		{
			ID:             "benign_change",
			AlertType:      alerting.AlertBenignChange,
			Priority:       alerting.SeverityLow,
			ThrottleWindow: 2 * time.Hour,
		},
	}
}

// matches reports whether the template's conditions hold for the alert.
// Scalar conditions require equality; list conditions require membership.
func (t *Template) matches(alert *alerting.Alert) bool {
	if t.AlertType != alert.Type {
		return false
	}
	attrs := map[string]string{
		"severity":       string(alert.Severity),
		"alert_type":     string(alert.Type),
		"classification": string(alert.ClassificationLabel),
		"website_id":     alert.Context.WebsiteID,
	}
	for key, want := range t.Conditions {
		got, ok := attrs[key]
		if !ok {
			return false
		}
		if !conditionHolds(want, got) {
			return false
		}
	}
	return true
}

func conditionHolds(want interface{}, got string) bool {
	switch w := want.(type) {
	case string:
		return w == got
	case []string:
		for _, v := range w {
			if v == got {
				return true
			}
		}
		return false
	case []interface{}:
		for _, v := range w {
			if s, ok := v.(string); ok && s == got {
				return true
			}
		}
		return false
	default:
		return false
	}
}
