package local

import (
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Janitor sweeps expired per-request plot and table directories on a cron
// schedule. Artifacts referenced by a finished analysis have already been
// collected, so anything older than the TTL is safe to drop.
type Janitor struct {
	env    *Env
	ttl    time.Duration
	logger zerolog.Logger
	cron   *cron.Cron
}

// NewJanitor creates a janitor for the sandbox tree.
func NewJanitor(env *Env, ttl time.Duration, logger zerolog.Logger) *Janitor {
	return &Janitor{
		env:    env,
		ttl:    ttl,
		logger: logger.With().Str("component", "sandbox-janitor").Logger(),
		cron:   cron.New(),
	}
}

// Start schedules the sweep. spec is a standard cron expression, for example
// "@hourly".
func (j *Janitor) Start(spec string) error {
	if _, err := j.cron.AddFunc(spec, j.Sweep); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info().Str("schedule", spec).Dur("ttl", j.ttl).Msg("Sandbox janitor started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep removes request directories whose modification time exceeds the TTL.
func (j *Janitor) Sweep() {
	removed := 0
	cutoff := time.Now().Add(-j.ttl)

	for _, root := range []string{j.env.PlotsDir, j.env.TablesDir} {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			path := filepath.Join(root, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				j.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove expired request directory")
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		j.logger.Info().Int("removed", removed).Msg("Swept expired request directories")
	}
}
