// Package storage persists websites, snapshots, alerts, feedback and job
// executions in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/defacewatch/defacewatch/internal/dferrors"
	"github.com/defacewatch/defacewatch/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS websites (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	name TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	check_interval TEXT NOT NULL DEFAULT '15m',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	last_checked_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	website_id TEXT NOT NULL REFERENCES websites(id),
	content_hash TEXT NOT NULL,
	content_text TEXT NOT NULL DEFAULT '',
	raw_html BLOB,
	status_code INTEGER NOT NULL DEFAULT 0,
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	content_length INTEGER NOT NULL DEFAULT 0,
	content_type TEXT NOT NULL DEFAULT '',
	vector_ref TEXT NOT NULL DEFAULT '',
	is_defaced INTEGER,
	confidence_score REAL,
	captured_at TIMESTAMP NOT NULL,
	analyzed_at TIMESTAMP,
	UNIQUE (website_id, captured_at)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_website ON snapshots(website_id, captured_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	website_id TEXT NOT NULL,
	snapshot_id TEXT,
	alert_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	classification_label TEXT,
	confidence_score REAL NOT NULL DEFAULT 0,
	similarity_score REAL,
	status TEXT NOT NULL DEFAULT 'open',
	created_at TIMESTAMP NOT NULL,
	acknowledged_at TIMESTAMP,
	acknowledged_by TEXT,
	resolved_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status, created_at DESC);

CREATE TABLE IF NOT EXISTS feedback (
	id TEXT PRIMARY KEY,
	website_id TEXT NOT NULL,
	snapshot_id TEXT,
	alert_id TEXT,
	original_label TEXT NOT NULL,
	original_confidence REAL NOT NULL DEFAULT 0,
	feedback_type TEXT NOT NULL,
	source TEXT NOT NULL,
	corrected_label TEXT,
	corrected_confidence REAL,
	reasoning TEXT,
	analyst_id TEXT,
	metadata TEXT,
	created_at TIMESTAMP NOT NULL,
	processed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at DESC);

CREATE TABLE IF NOT EXISTS job_executions (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	website_id TEXT,
	status TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	error TEXT
);

CREATE TABLE IF NOT EXISTS content_vectors (
	website_id TEXT NOT NULL,
	snapshot_id TEXT NOT NULL,
	content_type TEXT NOT NULL,
	vector TEXT NOT NULL,
	dimension INTEGER NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	payload TEXT,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (website_id, snapshot_id, content_type)
);
`

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Info().Str("path", path).Msg("Database opened")
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- websites ---

// CreateWebsite inserts a website.
func (s *Store) CreateWebsite(ctx context.Context, w *models.Website) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO websites (id, url, name, is_active, check_interval, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.URL, w.Name, w.IsActive, w.CheckInterval, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create website %s: %w", w.ID, err)
	}
	return nil
}

// GetWebsite fetches one website by id.
func (s *Store) GetWebsite(ctx context.Context, id string) (*models.Website, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, name, is_active, check_interval, created_at, updated_at, last_checked_at
		FROM websites WHERE id = ?`, id)
	return scanWebsite(row)
}

// ListActiveWebsites returns all websites flagged active.
func (s *Store) ListActiveWebsites(ctx context.Context) ([]*models.Website, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, name, is_active, check_interval, created_at, updated_at, last_checked_at
		FROM websites WHERE is_active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list websites: %w", err)
	}
	defer rows.Close()

	var out []*models.Website
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// SetWebsiteActive flips the active flag.
func (s *Store) SetWebsiteActive(ctx context.Context, id string, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE websites SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now(), id)
	return err
}

// TouchWebsite records a completed check.
func (s *Store) TouchWebsite(ctx context.Context, id string, checkedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE websites SET last_checked_at = ?, updated_at = ? WHERE id = ?`,
		checkedAt, checkedAt, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWebsite(row rowScanner) (*models.Website, error) {
	var w models.Website
	var lastChecked sql.NullTime
	err := row.Scan(&w.ID, &w.URL, &w.Name, &w.IsActive, &w.CheckInterval,
		&w.CreatedAt, &w.UpdatedAt, &lastChecked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dferrors.New(dferrors.KindNotFound, "storage.GetWebsite", dferrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if lastChecked.Valid {
		w.LastCheckedAt = &lastChecked.Time
	}
	return &w, nil
}

// --- snapshots ---

// SaveSnapshot inserts a snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, website_id, content_hash, content_text, raw_html,
			status_code, response_time_ms, content_length, content_type, vector_ref, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.WebsiteID, snap.ContentHash, snap.ContentText, snap.RawHTML,
		snap.StatusCode, snap.ResponseTimeMs, snap.ContentLength, snap.ContentType,
		snap.VectorRef, snap.CapturedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", snap.ID, err)
	}
	return nil
}

const snapshotColumns = `id, website_id, content_hash, content_text, raw_html,
	status_code, response_time_ms, content_length, content_type, vector_ref,
	is_defaced, confidence_score, captured_at, analyzed_at`

// LatestSnapshot returns the most recent snapshot for a website.
func (s *Store) LatestSnapshot(ctx context.Context, websiteID string) (*models.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+` FROM snapshots
		WHERE website_id = ? ORDER BY captured_at DESC LIMIT 1`, websiteID)
	return scanSnapshot(row)
}

// LatestAnalyzedSnapshot returns the most recent snapshot that already
// carries a verdict, excluding the given snapshot id.
func (s *Store) LatestAnalyzedSnapshot(ctx context.Context, websiteID, excludeID string) (*models.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+` FROM snapshots
		WHERE website_id = ? AND analyzed_at IS NOT NULL AND id != ?
		ORDER BY captured_at DESC LIMIT 1`, websiteID, excludeID)
	return scanSnapshot(row)
}

// GetSnapshot fetches one snapshot by id.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*models.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, id)
	return scanSnapshot(row)
}

// UpdateSnapshotVerdict writes the classification verdict once. Re-running
// classification for an already analyzed snapshot is a no-op.
func (s *Store) UpdateSnapshotVerdict(ctx context.Context, snapshotID string, isDefaced bool, confidence float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE snapshots SET is_defaced = ?, confidence_score = ?, analyzed_at = ?
		WHERE id = ? AND analyzed_at IS NULL`,
		isDefaced, confidence, time.Now(), snapshotID)
	if err != nil {
		return fmt.Errorf("failed to update verdict for snapshot %s: %w", snapshotID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Debug().Str("snapshotID", snapshotID).Msg("Snapshot verdict already set, skipping")
	}
	return nil
}

func scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	var snap models.Snapshot
	var isDefaced sql.NullBool
	var confidence sql.NullFloat64
	var analyzedAt sql.NullTime
	err := row.Scan(&snap.ID, &snap.WebsiteID, &snap.ContentHash, &snap.ContentText,
		&snap.RawHTML, &snap.StatusCode, &snap.ResponseTimeMs, &snap.ContentLength,
		&snap.ContentType, &snap.VectorRef, &isDefaced, &confidence,
		&snap.CapturedAt, &analyzedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dferrors.New(dferrors.KindNotFound, "storage.GetSnapshot", dferrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if isDefaced.Valid {
		snap.IsDefaced = &isDefaced.Bool
	}
	if confidence.Valid {
		snap.ConfidenceScore = &confidence.Float64
	}
	if analyzedAt.Valid {
		snap.AnalyzedAt = &analyzedAt.Time
	}
	return &snap, nil
}

// --- alerts ---

// SaveAlert inserts a stored alert in the open state.
func (s *Store) SaveAlert(ctx context.Context, a *models.StoredAlert) error {
	if a.Status == "" {
		a.Status = models.AlertStatusOpen
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, website_id, snapshot_id, alert_type, severity, title,
			description, classification_label, confidence_score, similarity_score, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.WebsiteID, a.SnapshotID, a.AlertType, a.Severity, a.Title,
		a.Description, a.ClassificationLabel, a.ConfidenceScore, a.SimilarityScore,
		a.Status, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save alert %s: %w", a.ID, err)
	}
	return nil
}

// AcknowledgeAlert moves an open alert to acknowledged.
func (s *Store) AcknowledgeAlert(ctx context.Context, id, analyst string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = ?, acknowledged_at = ?, acknowledged_by = ?
		WHERE id = ? AND status = ?`,
		models.AlertStatusAcknowledged, time.Now(), analyst, id, models.AlertStatusOpen)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dferrors.New(dferrors.KindNotFound, "storage.AcknowledgeAlert", dferrors.ErrNotFound)
	}
	return nil
}

// ResolveAlert moves an alert to resolved from either prior state.
func (s *Store) ResolveAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = ?, resolved_at = ?
		WHERE id = ? AND status != ?`,
		models.AlertStatusResolved, time.Now(), id, models.AlertStatusResolved)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dferrors.New(dferrors.KindNotFound, "storage.ResolveAlert", dferrors.ErrNotFound)
	}
	return nil
}

// ListOpenAlerts returns open alerts, newest first.
func (s *Store) ListOpenAlerts(ctx context.Context, limit int) ([]*models.StoredAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, website_id, snapshot_id, alert_type, severity, title, description,
			classification_label, confidence_score, similarity_score, status,
			created_at, acknowledged_at, acknowledged_by, resolved_at
		FROM alerts WHERE status = ? ORDER BY created_at DESC LIMIT ?`,
		models.AlertStatusOpen, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.StoredAlert
	for rows.Next() {
		var a models.StoredAlert
		var snapshotID, label, ackBy sql.NullString
		var similarity sql.NullFloat64
		var ackAt, resolvedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.WebsiteID, &snapshotID, &a.AlertType, &a.Severity,
			&a.Title, &a.Description, &label, &a.ConfidenceScore, &similarity,
			&a.Status, &a.CreatedAt, &ackAt, &ackBy, &resolvedAt); err != nil {
			return nil, err
		}
		a.SnapshotID = snapshotID.String
		a.ClassificationLabel = label.String
		a.AcknowledgedBy = ackBy.String
		if similarity.Valid {
			a.SimilarityScore = &similarity.Float64
		}
		if ackAt.Valid {
			a.AcknowledgedAt = &ackAt.Time
		}
		if resolvedAt.Valid {
			a.ResolvedAt = &resolvedAt.Time
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// --- feedback ---

// SaveFeedback inserts a feedback record.
func (s *Store) SaveFeedback(ctx context.Context, f *models.Feedback) error {
	metadata, err := json.Marshal(f.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode feedback metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, website_id, snapshot_id, alert_id, original_label,
			original_confidence, feedback_type, source, corrected_label,
			corrected_confidence, reasoning, analyst_id, metadata, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.WebsiteID, f.SnapshotID, f.AlertID, f.OriginalLabel,
		f.OriginalConfidence, f.Type, f.Source, f.CorrectedLabel,
		f.CorrectedConfidence, f.Reasoning, f.AnalystID, string(metadata),
		f.CreatedAt, f.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to save feedback %s: %w", f.ID, err)
	}
	return nil
}

// ListFeedbackBetween returns feedback created in [start, end), oldest
// first.
func (s *Store) ListFeedbackBetween(ctx context.Context, start, end time.Time) ([]*models.Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, website_id, snapshot_id, alert_id, original_label, original_confidence,
			feedback_type, source, corrected_label, corrected_confidence, reasoning,
			analyst_id, metadata, created_at, processed_at
		FROM feedback WHERE created_at >= ? AND created_at < ? ORDER BY created_at`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var out []*models.Feedback
	for rows.Next() {
		var f models.Feedback
		var snapshotID, alertID, correctedLabel, reasoning, analystID, metadata sql.NullString
		var correctedConfidence sql.NullFloat64
		var processedAt sql.NullTime
		if err := rows.Scan(&f.ID, &f.WebsiteID, &snapshotID, &alertID, &f.OriginalLabel,
			&f.OriginalConfidence, &f.Type, &f.Source, &correctedLabel,
			&correctedConfidence, &reasoning, &analystID, &metadata,
			&f.CreatedAt, &processedAt); err != nil {
			return nil, err
		}
		f.SnapshotID = snapshotID.String
		f.AlertID = alertID.String
		f.CorrectedLabel = models.Classification(correctedLabel.String)
		f.Reasoning = reasoning.String
		f.AnalystID = analystID.String
		if correctedConfidence.Valid {
			f.CorrectedConfidence = &correctedConfidence.Float64
		}
		if processedAt.Valid {
			f.ProcessedAt = &processedAt.Time
		}
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			if err := json.Unmarshal([]byte(metadata.String), &f.Metadata); err != nil {
				log.Warn().Err(err).Str("feedbackID", f.ID).Msg("Failed to decode feedback metadata")
			}
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// CountFeedbackSince counts feedback created at or after the cutoff.
func (s *Store) CountFeedbackSince(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback WHERE created_at >= ?`, cutoff).Scan(&n)
	return n, err
}

// MarkFeedbackProcessed stamps a feedback record as processed.
func (s *Store) MarkFeedbackProcessed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE feedback SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

// --- job executions ---

// RecordJobStart inserts a running execution record.
func (s *Store) RecordJobStart(ctx context.Context, e *models.JobExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_executions (id, job_id, website_id, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.JobID, e.WebsiteID, e.Status, e.StartedAt)
	return err
}

// RecordJobEnd completes an execution record.
func (s *Store) RecordJobEnd(ctx context.Context, id, status, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE job_executions SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, time.Now(), errMsg, id)
	return err
}
