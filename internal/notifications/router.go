package notifications

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/defacewatch/defacewatch/internal/alerting"
	"github.com/defacewatch/defacewatch/internal/dferrors"
	"github.com/defacewatch/defacewatch/internal/metrics"
)

// Retry policy for recoverable delivery failures.
const (
	retryBase     = 1 * time.Second
	retryFactor   = 2.0
	maxRetries    = 3
	historyMaxAge = 24 * time.Hour
)

// Deliverer is the external delivery collaborator (Slack, email, webhook).
type Deliverer interface {
	Deliver(ctx context.Context, alert *alerting.Alert, channels, users []string) error
}

// ScheduledEscalation records a pending escalation callback. Delivery of
// the escalation itself is the operator platform's job.
type ScheduledEscalation struct {
	AlertID    string    `json:"alertId"`
	TemplateID string    `json:"templateId"`
	DueAt      time.Time `json:"dueAt"`
}

// RouteResult summarizes what one routing pass did.
type RouteResult struct {
	MatchedTemplates []string `json:"matchedTemplates"`
	Delivered        []string `json:"delivered"`
	Throttled        []string `json:"throttled"`
	Channels         []string `json:"channels"`
	Users            []string `json:"users"`
}

// Router matches alerts to templates and hands the fan-out to the delivery
// collaborator.
type Router struct {
	deliverer Deliverer
	now       func() time.Time
	sleep     func(time.Duration)

	mu          sync.Mutex
	templates   map[string]*Template
	history     map[string]time.Time
	escalations []ScheduledEscalation
	lastPrune   time.Time
}

// NewRouter builds a router preloaded with the default templates.
func NewRouter(deliverer Deliverer) *Router {
	r := &Router{
		deliverer: deliverer,
		now:       time.Now,
		sleep:     time.Sleep,
		templates: make(map[string]*Template),
		history:   make(map[string]time.Time),
	}
	for _, t := range DefaultTemplates() {
		r.templates[t.ID] = t
	}
	r.lastPrune = r.now()
	return r
}

// Register adds or replaces a template.
func (r *Router) Register(t *Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t
}

// Templates returns the registered templates sorted by id.
func (r *Router) Templates() []*Template {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Route delivers an alert through every matching, non-throttled template.
// Caller-provided channels and users are merged into each template's
// fan-out.
func (r *Router) Route(ctx context.Context, alert *alerting.Alert, extraChannels, extraUsers []string) (*RouteResult, error) {
	result := &RouteResult{}

	matched := r.matchTemplates(alert)
	for _, t := range matched {
		result.MatchedTemplates = append(result.MatchedTemplates, t.ID)
	}
	if len(matched) == 0 {
		log.Debug().
			Str("alertID", alert.ID).
			Str("type", string(alert.Type)).
			Msg("No notification template matched alert")
		return result, nil
	}

	var firstErr error
	for _, t := range matched {
		key := t.ID + "|" + alert.SuppressionKey
		if r.throttled(key, t.ThrottleWindow) {
			result.Throttled = append(result.Throttled, t.ID)
			metrics.NotificationsThrottledTotal.WithLabelValues(t.ID).Inc()
			log.Debug().
				Str("alertID", alert.ID).
				Str("template", t.ID).
				Msg("Notification throttled")
			continue
		}

		channels := union(t.Channels, extraChannels)
		users := union(t.Users, extraUsers)

		if err := r.deliverWithRetry(ctx, alert, channels, users); err != nil {
			log.Error().Err(err).
				Str("alertID", alert.ID).
				Str("template", t.ID).
				Msg("Notification delivery failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		r.recordSent(key)
		result.Delivered = append(result.Delivered, t.ID)
		result.Channels = union(result.Channels, channels)
		result.Users = union(result.Users, users)
		metrics.NotificationsSentTotal.WithLabelValues(t.ID).Inc()

		if t.EscalationWindow > 0 {
			r.scheduleEscalation(alert.ID, t.ID, t.EscalationWindow)
		}
	}

	r.maybePrune()
	return result, firstErr
}

// matchTemplates returns matching templates ordered by priority, most
// urgent first.
func (r *Router) matchTemplates(alert *alerting.Alert) []*Template {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*Template
	for _, t := range r.templates {
		if t.matches(alert) {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority.Ordinal() != matched[j].Priority.Ordinal() {
			return matched[i].Priority.Ordinal() > matched[j].Priority.Ordinal()
		}
		return matched[i].ID < matched[j].ID
	})
	return matched
}

func (r *Router) throttled(key string, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.history[key]
	return ok && r.now().Sub(last) < window
}

func (r *Router) recordSent(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[key] = r.now()
}

func (r *Router) scheduleEscalation(alertID, templateID string, window time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.escalations = append(r.escalations, ScheduledEscalation{
		AlertID:    alertID,
		TemplateID: templateID,
		DueAt:      r.now().Add(window),
	})
}

// PendingEscalations returns escalations due at or before now.
func (r *Router) PendingEscalations() []ScheduledEscalation {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var due []ScheduledEscalation
	for _, e := range r.escalations {
		if !e.DueAt.After(now) {
			due = append(due, e)
		}
	}
	return due
}

// deliverWithRetry retries recoverable failures with exponential backoff.
func (r *Router) deliverWithRetry(ctx context.Context, alert *alerting.Alert, channels, users []string) error {
	delay := retryBase
	var err error
	for attempt := 0; ; attempt++ {
		err = r.deliverer.Deliver(ctx, alert, channels, users)
		if err == nil {
			return nil
		}
		if !dferrors.IsRetryable(err) || attempt >= maxRetries {
			return err
		}
		log.Warn().Err(err).
			Str("alertID", alert.ID).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Retrying notification delivery")
		r.sleep(delay)
		delay = time.Duration(float64(delay) * retryFactor)
	}
}

// maybePrune drops history and escalation entries older than 24 hours so
// long-running processes stay bounded.
func (r *Router) maybePrune() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastPrune) < time.Hour {
		return
	}
	r.lastPrune = now

	cutoff := now.Add(-historyMaxAge)
	for key, last := range r.history {
		if last.Before(cutoff) {
			delete(r.history, key)
		}
	}
	kept := r.escalations[:0]
	for _, e := range r.escalations {
		if e.DueAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	r.escalations = kept
}

func union(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
