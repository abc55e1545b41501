// Package runner composes one supervised run: load configuration records,
// synthesize the external monitor's config directory, launch the process,
// track its progress, shut it down and report.
package runner

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/igwedaniel/blockwatcher/internal/api"
	"github.com/igwedaniel/blockwatcher/internal/config"
	"github.com/igwedaniel/blockwatcher/internal/configsource"
	"github.com/igwedaniel/blockwatcher/internal/progress"
	"github.com/igwedaniel/blockwatcher/internal/supervisor"
	"github.com/igwedaniel/blockwatcher/internal/synthesis"
	"github.com/igwedaniel/blockwatcher/internal/types"
)

// Runner orchestrates one blockwatcher run
type Runner struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// New creates a Runner
func New(cfg *config.Config, logger *logrus.Logger) *Runner {
	return &Runner{cfg: cfg, logger: logger}
}

// Run executes load -> synthesize -> launch -> track -> shutdown -> report.
// The returned code is the process exit status: the child's own exit code
// on a natural exit, zero when the run was interrupted and shut down. A
// non-nil error is a fatal startup condition; nothing was launched.
func (r *Runner) Run(ctx context.Context) (int, error) {
	if err := os.MkdirAll(r.cfg.DataDir, 0o755); err != nil {
		return 1, fmt.Errorf("failed to create data directory: %w", err)
	}

	networks, monitors, triggers, err := r.loadConfigs(ctx)
	if err != nil {
		return 1, err
	}

	slugs := make([]string, 0, len(networks))
	for slug := range networks {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	r.logger.Infof("Monitoring %d network(s): %s", len(networks), strings.Join(slugs, ", "))

	synth := synthesis.New(r.logger)
	result, err := synth.Synthesize(networks, monitors, triggers, synthesis.Options{
		StoreBlocks: r.cfg.Monitor.StoreBlocks,
		Persistent:  r.cfg.Database.Enabled,
		ConfigDir:   r.cfg.ConfigDir,
	})
	if err != nil {
		return 1, err
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			r.logger.Warnf("Failed to clean up config directory: %v", err)
		}
	}()

	binary, err := supervisor.ResolveBinary(r.cfg.Monitor.BinaryName, r.cfg.Monitor.SearchPaths)
	if err != nil {
		return 1, err
	}

	spec := supervisor.LaunchSpec{
		BinaryPath: binary,
		ConfigDir:  result.Dir,
		DataDir:    r.cfg.DataDir,
		Verbose:    r.cfg.Verbose,
	}
	sup := supervisor.New(spec, r.cfg.Monitor.StopTimeout, r.logger)

	tracker := progress.New(r.cfg.DataDir, r.cfg.Monitor.PollInterval, r.cfg.Verbose, r.logger)
	tracker.Start(ctx)
	defer tracker.Stop()

	if r.cfg.StatusAPI.Port > 0 {
		statusServer := api.NewServer(&r.cfg.StatusAPI, tracker, sup, r.logger)
		go func() {
			if err := statusServer.Start(); err != nil {
				r.logger.Errorf("Status server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := statusServer.Stop(shutdownCtx); err != nil {
				r.logger.Errorf("Error stopping status server: %v", err)
			}
		}()
	}

	if err := sup.Start(); err != nil {
		return 1, err
	}
	r.logger.Infof("Data directory: %s", r.cfg.DataDir)
	r.logger.Infof("Store blocks: %v", r.cfg.Monitor.StoreBlocks)

	interrupted := false
	select {
	case <-ctx.Done():
		interrupted = true
		r.logger.Info("Shutdown signal received, stopping monitor process...")
		sup.Stop()
	case <-sup.Done():
		if code := sup.ExitCode(); code != 0 {
			r.logger.Errorf("Monitor process exited with code %d", code)
		} else {
			r.logger.Info("Monitor process exited")
		}
	}

	tracker.Stop()
	// One more pass picks up markers written just before the child exited
	tracker.Scan()
	r.printReport(tracker.Snapshot())

	if interrupted {
		return 0, nil
	}
	return sup.ExitCode(), nil
}

// loadConfigs loads networks from the selected backend, plus monitors and
// triggers when the relational backend is active. Network load failure is
// fatal; monitor/trigger load failure degrades to fabricated defaults.
func (r *Runner) loadConfigs(ctx context.Context) (map[string]types.NetworkConfig, []types.MonitorConfig, *configsource.TriggerSet, error) {
	if !r.cfg.Database.Enabled {
		r.logger.Infof("Using file-based configurations from: %s", r.cfg.ConfigDir)
		src := configsource.NewFileSource(r.cfg.ConfigDir, r.logger)
		networks, err := src.LoadNetworks(ctx, r.cfg.Networks)
		if err != nil {
			return nil, nil, nil, err
		}
		return networks, nil, nil, nil
	}

	r.logger.Info("Using database configurations")
	r.logger.Infof("Tenant ID: %s", r.cfg.Database.TenantID)

	src, err := configsource.NewPostgresSource(ctx, r.cfg.Database.URL, r.cfg.Database.TenantID, r.logger)
	if err != nil {
		return nil, nil, nil, err
	}
	defer src.Close()

	networks, err := src.LoadNetworks(ctx, r.cfg.Networks)
	if err != nil {
		return nil, nil, nil, err
	}

	monitors, triggers, err := src.LoadMonitorsAndTriggers(ctx)
	if err != nil {
		r.logger.Warnf("Failed to load monitors/triggers from database: %v (falling back to minimal configs)", err)
		return networks, nil, nil, nil
	}
	if len(monitors) == 0 {
		r.logger.Warn("No active monitors found in database, creating minimal config")
	}
	return networks, monitors, triggers, nil
}

// printReport logs final per-network statistics, best-effort, whatever the
// run outcome was.
func (r *Runner) printReport(stats map[string]types.NetworkProgress) {
	if len(stats) == 0 {
		r.logger.Info("No block progress recorded")
		return
	}

	networks := make([]string, 0, len(stats))
	for network := range stats {
		networks = append(networks, network)
	}
	sort.Strings(networks)

	r.logger.Info("Final statistics:")
	for _, network := range networks {
		s := stats[network]
		r.logger.WithFields(logrus.Fields{
			"network":          network,
			"blocks_processed": s.BlocksProcessed,
			"first_block":      s.FirstBlock,
			"last_block":       s.LastBlock,
			"last_update":      s.LastUpdate.Format("15:04:05"),
		}).Info("Network progress")
	}
}
