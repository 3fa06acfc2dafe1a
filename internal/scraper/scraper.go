// Package scraper captures website content through external collaborators
// and detects changes against the previous snapshot.
package scraper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/defacewatch/defacewatch/internal/dferrors"
	"github.com/defacewatch/defacewatch/internal/models"
)

// CaptureResult is the raw page fetched by the browser collaborator.
type CaptureResult struct {
	HTML         []byte
	StatusCode   int
	ResponseTime time.Duration
	ContentType  string
}

// Browser fetches pages. Implementations wrap raw HTTP or a headless
// browser.
type Browser interface {
	Capture(ctx context.Context, url string) (*CaptureResult, error)
}

// ExtractedContent is the structured text pulled out of a capture.
type ExtractedContent struct {
	MainContent       string
	Title             string
	TextBlocks        []string
	MetaDescription   string
	ElementCount      int
	ExternalResources []string
}

// Extractor parses captured HTML into content fields.
type Extractor interface {
	Extract(html []byte) (*ExtractedContent, error)
}

// ChangeAnalysis describes how a capture differs from the previous one.
type ChangeAnalysis struct {
	HasChanged         bool     `json:"hasChanged"`
	ChangeCount        int      `json:"changeCount"`
	ChangedSections    []string `json:"changedSections,omitempty"`
	ChangedContent     []string `json:"changedContent,omitempty"`
	ContentSimilarity  float64  `json:"contentSimilarity"`
	ContentReplacement bool     `json:"contentReplacement"`
	NewExternalLinks   int      `json:"newExternalLinks"`
	Summary            string   `json:"summary"`
}

// ChangeDetector compares two extractions.
type ChangeDetector interface {
	Compare(previous, current *ExtractedContent) (*ChangeAnalysis, error)
}

// SnapshotStore is the persistence surface the scraper needs.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error
	LatestSnapshot(ctx context.Context, websiteID string) (*models.Snapshot, error)
}

// Outcome is the result of one scrape: the stored snapshot plus what the
// classification stage needs to decide whether to run.
type Outcome struct {
	Snapshot            *models.Snapshot
	Content             *ExtractedContent
	BaselineContent     *ExtractedContent
	Changes             *ChangeAnalysis
	NeedsClassification bool
}

// Service runs captures end to end.
type Service struct {
	browser   Browser
	extractor Extractor
	detector  ChangeDetector
	store     SnapshotStore
}

// NewService wires the capture collaborators.
func NewService(browser Browser, extractor Extractor, detector ChangeDetector, store SnapshotStore) *Service {
	return &Service{browser: browser, extractor: extractor, detector: detector, store: store}
}

// Scrape captures a website, persists the snapshot, and reports whether the
// content changed enough to classify.
func (s *Service) Scrape(ctx context.Context, website *models.Website) (*Outcome, error) {
	capture, err := s.browser.Capture(ctx, website.URL)
	if err != nil {
		return nil, dferrors.New(dferrors.KindCollab, "scraper.Capture", err).WithWebsite(website.ID)
	}

	content, err := s.extractor.Extract(capture.HTML)
	if err != nil {
		return nil, dferrors.New(dferrors.KindCollab, "scraper.Extract", err).WithWebsite(website.ID)
	}

	hash := hashContent(content)
	snapshot := &models.Snapshot{
		ID:             uuid.New().String(),
		WebsiteID:      website.ID,
		ContentHash:    hash,
		ContentText:    content.MainContent,
		RawHTML:        capture.HTML,
		StatusCode:     capture.StatusCode,
		ResponseTimeMs: capture.ResponseTime.Milliseconds(),
		ContentLength:  len(capture.HTML),
		ContentType:    capture.ContentType,
		CapturedAt:     time.Now(),
	}

	outcome := &Outcome{Snapshot: snapshot, Content: content}

	previous, err := s.store.LatestSnapshot(ctx, website.ID)
	if err != nil && !dferrors.IsNotFound(err) {
		return nil, dferrors.New(dferrors.KindCollab, "scraper.LatestSnapshot", err).WithWebsite(website.ID)
	}

	if previous == nil {
		// First capture: nothing to diff, store and classify as baseline.
		// Similarity defaults to 1.0 so downstream analyzers do not read the
		// missing baseline as a content replacement.
		outcome.Changes = &ChangeAnalysis{ContentSimilarity: 1.0, Summary: "initial capture, no baseline"}
		outcome.NeedsClassification = true
	} else if previous.ContentHash == hash {
		outcome.Changes = &ChangeAnalysis{ContentSimilarity: 1.0, Summary: "content unchanged"}
	} else {
		baseline, extractErr := s.extractor.Extract(previous.RawHTML)
		if extractErr != nil {
			log.Warn().Err(extractErr).
				Str("websiteID", website.ID).
				Msg("Failed to extract baseline content, diffing without it")
		} else {
			outcome.BaselineContent = baseline
		}

		changes, cmpErr := s.detector.Compare(baseline, content)
		if cmpErr != nil {
			return nil, dferrors.New(dferrors.KindCollab, "scraper.Compare", cmpErr).WithWebsite(website.ID)
		}
		changes.Summary = changeSummary(changes)
		outcome.Changes = changes
		outcome.NeedsClassification = changes.HasChanged
	}

	if err := s.store.SaveSnapshot(ctx, snapshot); err != nil {
		return nil, dferrors.New(dferrors.KindCollab, "scraper.SaveSnapshot", err).WithWebsite(website.ID)
	}

	log.Debug().
		Str("websiteID", website.ID).
		Str("snapshotID", snapshot.ID).
		Bool("changed", outcome.NeedsClassification).
		Int("statusCode", snapshot.StatusCode).
		Msg("Scrape complete")
	return outcome, nil
}

// changeSummary renders a one-line human summary of a change analysis.
func changeSummary(c *ChangeAnalysis) string {
	if !c.HasChanged {
		return "content unchanged"
	}
	parts := []string{fmt.Sprintf("%d section(s) changed", c.ChangeCount)}
	parts = append(parts, fmt.Sprintf("similarity %.0f%%", c.ContentSimilarity*100))
	if c.ContentReplacement {
		parts = append(parts, "content replaced wholesale")
	}
	if c.NewExternalLinks > 0 {
		parts = append(parts, fmt.Sprintf("%d new external link(s)", c.NewExternalLinks))
	}
	return strings.Join(parts, "; ")
}

func hashContent(content *ExtractedContent) string {
	h := sha256.New()
	h.Write([]byte(content.MainContent))
	h.Write([]byte{0})
	h.Write([]byte(content.Title))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(content.TextBlocks, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}
