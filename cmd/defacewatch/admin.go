package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/defacewatch/defacewatch/internal/feedback"
	"github.com/defacewatch/defacewatch/internal/logging"
	"github.com/defacewatch/defacewatch/internal/models"
	"github.com/defacewatch/defacewatch/internal/storage"
)

var websiteCmd = &cobra.Command{
	Use:   "website",
	Short: "Manage monitored websites",
}

var (
	addURL      string
	addName     string
	addInterval string
)

var websiteAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a website for monitoring",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addURL == "" {
			return fmt.Errorf("--url is required")
		}
		name := addName
		if name == "" {
			name = addURL
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		now := time.Now()
		w := &models.Website{
			ID:            uuid.New().String(),
			URL:           addURL,
			Name:          name,
			IsActive:      true,
			CheckInterval: addInterval,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := store.CreateWebsite(context.Background(), w); err != nil {
			return err
		}
		fmt.Printf("Registered %s (%s), checked every %s\n", w.Name, w.ID, w.CheckInterval)
		return nil
	},
}

var websiteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active websites",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		websites, err := store.ListActiveWebsites(context.Background())
		if err != nil {
			return err
		}
		if len(websites) == 0 {
			fmt.Println("No active websites")
			return nil
		}
		for _, w := range websites {
			last := "never"
			if w.LastCheckedAt != nil {
				last = w.LastCheckedAt.Format(time.RFC3339)
			}
			fmt.Printf("%s  %-30s %-40s interval=%s last=%s\n", w.ID, w.Name, w.URL, w.CheckInterval, last)
		}
		return nil
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Submit analyst feedback on a past classification",
}

var (
	fbWebsite    string
	fbSnapshot   string
	fbAlert      string
	fbOriginal   string
	fbCorrected  string
	fbConfidence float64
	fbReasoning  string
	fbAnalyst    string
)

var feedbackCorrectCmd = &cobra.Command{
	Use:   "correct",
	Short: "Relabel a classification",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitFeedback(func(c *feedback.Collector, sub feedback.Submission) (*models.Feedback, error) {
			sub.CorrectedLabel = models.Classification(fbCorrected)
			return c.SubmitCorrection(context.Background(), sub)
		})
	},
}

var feedbackFalsePositiveCmd = &cobra.Command{
	Use:   "false-positive",
	Short: "Mark an alert as a false positive",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitFeedback(func(c *feedback.Collector, sub feedback.Submission) (*models.Feedback, error) {
			return c.SubmitFalsePositive(context.Background(), sub)
		})
	},
}

var feedbackFalseNegativeCmd = &cobra.Command{
	Use:   "false-negative",
	Short: "Report a defacement the system missed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitFeedback(func(c *feedback.Collector, sub feedback.Submission) (*models.Feedback, error) {
			return c.SubmitFalseNegative(context.Background(), sub)
		})
	},
}

var feedbackReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the detection performance report",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := feedback.NewPerformanceTracker(store).Report(context.Background())
		if err != nil {
			return err
		}
		m := report.Current
		fmt.Printf("Window: %s .. %s\n", m.WindowStart.Format(time.RFC3339), m.WindowEnd.Format(time.RFC3339))
		fmt.Printf("Feedback: %d  Precision: %.2f  Recall: %.2f  F1: %.2f  Accuracy: %.2f\n",
			m.TotalFeedback, m.Precision, m.Recall, m.F1, m.Accuracy)
		fmt.Println("Recommendations:")
		for _, r := range report.Recommendations {
			fmt.Printf("  - %s\n", r)
		}
		return nil
	},
}

func submitFeedback(fn func(*feedback.Collector, feedback.Submission) (*models.Feedback, error)) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	collector := feedback.NewCollector(store, feedback.NewPerformanceTracker(store), nil)
	sub := feedback.Submission{
		WebsiteID:          fbWebsite,
		SnapshotID:         fbSnapshot,
		AlertID:            fbAlert,
		OriginalLabel:      models.Classification(fbOriginal),
		OriginalConfidence: fbConfidence,
		Reasoning:          fbReasoning,
		AnalystID:          fbAnalyst,
	}
	f, err := fn(collector, sub)
	if err != nil {
		return err
	}
	fmt.Printf("Feedback %s recorded (%s)\n", f.ID, f.Type)
	return nil
}

// openStore loads configuration and opens the database for admin commands.
func openStore() (*storage.Store, error) {
	logging.Init(logging.Config{Format: "auto", Level: "warn", Component: "defacewatch"})
	cfg, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	return storage.Open(cfg.Database.Path)
}

func init() {
	websiteAddCmd.Flags().StringVar(&addURL, "url", "", "Website URL to monitor (required)")
	websiteAddCmd.Flags().StringVar(&addName, "name", "", "Display name (defaults to the URL)")
	websiteAddCmd.Flags().StringVar(&addInterval, "interval", "15m", "Check interval, e.g. 5m or 1h")
	websiteCmd.AddCommand(websiteAddCmd)
	websiteCmd.AddCommand(websiteListCmd)

	for _, cmd := range []*cobra.Command{feedbackCorrectCmd, feedbackFalsePositiveCmd, feedbackFalseNegativeCmd} {
		cmd.Flags().StringVar(&fbWebsite, "website", "", "Website ID (required)")
		cmd.Flags().StringVar(&fbSnapshot, "snapshot", "", "Snapshot ID")
		cmd.Flags().StringVar(&fbAlert, "alert", "", "Alert ID")
		cmd.Flags().StringVar(&fbOriginal, "original", "", "Original classification label")
		cmd.Flags().Float64Var(&fbConfidence, "confidence", 0, "Original confidence score")
		cmd.Flags().StringVar(&fbReasoning, "reasoning", "", "Why the classification was wrong")
		cmd.Flags().StringVar(&fbAnalyst, "analyst", "", "Analyst identifier")
	}
	feedbackCorrectCmd.Flags().StringVar(&fbCorrected, "corrected", "", "Corrected classification label")

	feedbackCmd.AddCommand(feedbackCorrectCmd)
	feedbackCmd.AddCommand(feedbackFalsePositiveCmd)
	feedbackCmd.AddCommand(feedbackFalseNegativeCmd)
	feedbackCmd.AddCommand(feedbackReportCmd)
}
