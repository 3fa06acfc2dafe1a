package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/defacewatch/defacewatch/internal/ai"
	"github.com/defacewatch/defacewatch/internal/alerting"
	"github.com/defacewatch/defacewatch/internal/classifier"
	"github.com/defacewatch/defacewatch/internal/config"
	"github.com/defacewatch/defacewatch/internal/feedback"
	"github.com/defacewatch/defacewatch/internal/logging"
	"github.com/defacewatch/defacewatch/internal/notifications"
	"github.com/defacewatch/defacewatch/internal/orchestrator"
	"github.com/defacewatch/defacewatch/internal/scheduler"
	"github.com/defacewatch/defacewatch/internal/scraper"
	"github.com/defacewatch/defacewatch/internal/storage"
	"github.com/defacewatch/defacewatch/internal/vectorizer"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	envFile        = ".env"
	embeddingModel = "text-embedding-3-small"

	// exitFatal signals an unrecoverable runtime failure, as opposed to a
	// startup/configuration error (1) or a clean shutdown (0).
	exitFatal = 2
)

var rootCmd = &cobra.Command{
	Use:     "defacewatch",
	Short:   "Defacewatch - website defacement monitoring system",
	Long:    `Defacewatch continuously captures monitored websites, classifies content changes through a multi-stage pipeline, and alerts on likely defacements`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(websiteCmd)
	rootCmd.AddCommand(feedbackCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Defacewatch %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadSettings loads .env (when present) and the validated configuration.
func loadSettings() (*config.Settings, error) {
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}
	return config.Load()
}

func runServer() {
	// Baseline logger for early startup messages.
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "defacewatch"})

	cfg, err := loadSettings()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	// Re-initialize with configured settings.
	logging.Init(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level, Component: "defacewatch"})
	log.Info().Str("version", Version).Msg("Starting defacement monitoring server")

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open database")
		os.Exit(1)
	}
	defer store.Close()

	rules, err := classifier.NewRuleEngine()
	if err != nil {
		log.Error().Err(err).Msg("Failed to compile rule patterns")
		os.Exit(1)
	}

	aiClient := ai.NewClient(cfg.AI)
	vec := vectorizer.NewService(aiClient, store.Vectors(), embeddingModel)
	pipeline := classifier.NewPipeline(
		rules,
		classifier.NewBehavioralAnalyzer(),
		aiClient,
		vectorizer.NewSemanticAnalyzer(vec),
		classifier.NewConfidenceCalculator(),
		cfg.Pipeline,
	)

	generator := alerting.NewGenerator(cfg.Alert)
	router := notifications.NewRouter(notifications.NewWebhookDeliverer())

	classification := orchestrator.NewClassificationOrchestrator(
		cfg.Classification.MaxWorkers, cfg.Classification.MaxQueueSize,
		pipeline, generator, router, vec, store, cfg.Notification, store)

	scrapeSvc := scraper.NewService(
		scraper.NewHTTPBrowser(0),
		scraper.NewHTMLExtractor(),
		scraper.NewDiffDetector(),
		store,
	)
	scraping := orchestrator.NewScrapingOrchestrator(
		cfg.Scraping.MaxWorkers, cfg.Scraping.MaxQueueSize,
		scrapeSvc, store, classification, store)

	tracker := feedback.NewPerformanceTracker(store)
	engine := orchestrator.NewEngine(scraping, classification, tracker)
	sched := scheduler.New(engine, cfg.Scheduler)

	engine.Start()
	sched.Start()

	websites, err := store.ListActiveWebsites(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list active websites")
		os.Exit(1)
	}
	for _, w := range websites {
		if err := sched.ScheduleWebsiteMonitoring(w); err != nil {
			log.Warn().Err(err).Str("websiteID", w.ID).Msg("Failed to schedule website")
		}
	}
	log.Info().Int("websites", len(websites)).Msg("Monitoring schedules loaded")

	fatalChan := make(chan error, 1)
	startMetricsServer(cfg.MetricsPort, fatalChan)

	// Watch the .env file so log-level changes apply without a restart.
	configWatcher, err := config.NewWatcher(envFile)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create config watcher, .env changes will require restart")
	} else {
		if err := configWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start config watcher")
		}
		defer configWatcher.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-fatalChan:
		log.Error().Err(err).Msg("Fatal runtime error")
		exitCode = exitFatal
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	engine.Stop(shutdownCtx)

	log.Info().Msg("Server stopped")
	os.Exit(exitCode)
}

// startMetricsServer exposes Prometheus metrics. Port 0 disables it.
func startMetricsServer(port int, fatalChan chan<- error) {
	if port <= 0 {
		log.Info().Msg("Metrics server disabled")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	go func() {
		log.Info().Int("port", port).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatalChan <- err
		}
	}()
}
