package workers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/sagecreek/internal/media"
)

// TempJanitor removes staged uploads that outlived any request, which only
// happens when a process died between staging and cleanup. MaxAge must exceed
// the longest analysis so in-flight files are never touched.
type TempJanitor struct {
	Dir      string
	Prefix   string
	MaxAge   time.Duration
	Interval time.Duration

	// OnTick runs after every sweep (expired in-memory sessions, for one).
	OnTick func()

	Logger *logrus.Logger

	now func() time.Time
}

func (j *TempJanitor) defaults() {
	if j.Dir == "" {
		j.Dir = os.TempDir()
	}
	if j.Prefix == "" {
		j.Prefix = media.TempPrefix
	}
	if j.MaxAge <= 0 {
		j.MaxAge = time.Hour
	}
	if j.Interval <= 0 {
		j.Interval = 10 * time.Minute
	}
	if j.Logger == nil {
		j.Logger = logrus.New()
	}
	if j.now == nil {
		j.now = time.Now
	}
}

// Start sweeps once immediately and then on every interval until ctx ends.
func (j *TempJanitor) Start(ctx context.Context) {
	j.defaults()
	go func() {
		j.tick()
		t := time.NewTicker(j.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				j.tick()
			}
		}
	}()
}

func (j *TempJanitor) tick() {
	if _, err := j.Sweep(); err != nil {
		j.Logger.WithError(err).WithField("dir", j.Dir).Warn("temp sweep failed")
	}
	if j.OnTick != nil {
		j.OnTick()
	}
}

// Sweep deletes prefixed regular files older than MaxAge and returns how many it removed.
func (j *TempJanitor) Sweep() (int, error) {
	j.defaults()

	entries, err := os.ReadDir(j.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := j.now().Add(-j.MaxAge)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasPrefix(e.Name(), j.Prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(j.Dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			j.Logger.WithError(err).WithField("path", path).Warn("failed to remove stale temp file")
			continue
		}
		removed++
	}
	if removed > 0 {
		j.Logger.WithFields(logrus.Fields{"dir": j.Dir, "removed": removed}).Info("removed stale temp files")
	}
	return removed, nil
}
