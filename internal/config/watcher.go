package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/defacewatch/defacewatch/internal/logging"
)

// Watcher monitors the .env file and re-applies dynamic settings (currently
// the log level) when it changes.
type Watcher struct {
	envPath     string
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	lastModTime time.Time
}

// NewWatcher creates a watcher for the given env file.
func NewWatcher(envPath string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	cw := &Watcher{
		envPath:  envPath,
		watcher:  w,
		stopChan: make(chan struct{}),
	}
	if stat, err := os.Stat(envPath); err == nil {
		cw.lastModTime = stat.ModTime()
	}
	return cw, nil
}

// Start begins watching the env file's directory.
func (cw *Watcher) Start() error {
	dir := filepath.Dir(cw.envPath)
	if err := cw.watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to watch config directory")
		return err
	}

	go cw.watchForChanges()
	log.Info().Str("env_path", cw.envPath).Msg("Started watching config file for changes")
	return nil
}

// Stop stops the watcher.
func (cw *Watcher) Stop() {
	select {
	case <-cw.stopChan:
		return
	default:
		close(cw.stopChan)
	}
	cw.watcher.Close()
}

func (cw *Watcher) watchForChanges() {
	for {
		select {
		case <-cw.stopChan:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Name != cw.envPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Editors fire several events per save; debounce on mtime.
			stat, err := os.Stat(cw.envPath)
			if err != nil || !stat.ModTime().After(cw.lastModTime) {
				continue
			}
			cw.lastModTime = stat.ModTime()
			cw.reload()
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (cw *Watcher) reload() {
	if err := godotenv.Overload(cw.envPath); err != nil {
		log.Warn().Err(err).Str("path", cw.envPath).Msg("Failed to reload env file")
		return
	}
	level := os.Getenv("DEFACEWATCH_LOG_LEVEL")
	if level != "" {
		logging.SetLevel(level)
		log.Info().Str("level", level).Msg("Applied updated log level from config")
	}
}
