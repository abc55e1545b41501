// Package progress polls the data directory the external monitor writes
// into, maintaining per-network block statistics from progress markers and
// warning about missed-block markers.
package progress

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/igwedaniel/blockwatcher/internal/types"
)

const (
	lastBlockSuffix    = "_last_block.txt"
	missedBlocksSuffix = "_missed_blocks.txt"
)

// Tracker polls progress-marker files at a fixed cadence. The statistics
// map is single-writer (the polling loop); readers get a copy through
// Snapshot.
type Tracker struct {
	dataDir  string
	interval time.Duration
	verbose  bool
	logger   *logrus.Logger

	mu    sync.RWMutex
	stats map[string]*types.NetworkProgress

	// Throttles repeated missed-block warnings per poll cycle
	missedLimiter *rate.Limiter

	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New creates a Tracker over the given data directory
func New(dataDir string, interval time.Duration, verbose bool, logger *logrus.Logger) *Tracker {
	return &Tracker{
		dataDir:       dataDir,
		interval:      interval,
		verbose:       verbose,
		logger:        logger,
		stats:         make(map[string]*types.NetworkProgress),
		missedLimiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
		stopCh:        make(chan struct{}),
	}
}

// Start launches the polling loop. The loop exits after its current
// iteration once Stop is called or the context is cancelled.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = true
	t.mu.Unlock()

	t.wg.Add(1)
	go t.pollLoop(ctx)
}

// Stop signals the polling loop and waits for it to finish its iteration
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = false
	t.mu.Unlock()

	close(t.stopCh)
	t.wg.Wait()
}

// Snapshot returns a copy of the per-network statistics
func (t *Tracker) Snapshot() map[string]types.NetworkProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := make(map[string]types.NetworkProgress, len(t.stats))
	for network, progress := range t.stats {
		snapshot[network] = *progress
	}
	return snapshot
}

func (t *Tracker) pollLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.Scan()
		}
	}
}

// Scan performs one pass over the data directory: progress markers update
// statistics monotonically, missed-block markers only emit warnings. A
// failure on any single marker file is skipped, never fatal.
func (t *Tracker) Scan() {
	entries, err := os.ReadDir(t.dataDir)
	if err != nil {
		if t.verbose {
			t.logger.Debugf("Failed to read data directory: %v", err)
		}
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, lastBlockSuffix):
			network := strings.TrimSuffix(name, lastBlockSuffix)
			t.readProgressMarker(network, filepath.Join(t.dataDir, name))
		case strings.HasSuffix(name, missedBlocksSuffix):
			network := strings.TrimSuffix(name, missedBlocksSuffix)
			t.readMissedMarker(network, filepath.Join(t.dataDir, name))
		}
	}
}

// readProgressMarker parses the trailing block number and applies it only
// when it exceeds the previously recorded one. Stale or regressive reads
// are ignored, not errors.
func (t *Tracker) readProgressMarker(network, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if t.verbose {
			t.logger.Debugf("Error reading %s: %v", path, err)
		}
		return
	}

	blockNum, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		if t.verbose {
			t.logger.Debugf("Error reading %s: %v", path, err)
		}
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	progress, exists := t.stats[network]
	if !exists {
		t.stats[network] = &types.NetworkProgress{
			FirstBlock: blockNum,
			LastBlock:  blockNum,
			LastUpdate: time.Now(),
		}
		return
	}

	if blockNum <= progress.LastBlock {
		return
	}

	delta := blockNum - progress.LastBlock
	progress.LastBlock = blockNum
	progress.BlocksProcessed = blockNum - progress.FirstBlock
	progress.LastUpdate = time.Now()

	t.logger.WithFields(logrus.Fields{
		"network": network,
		"block":   blockNum,
		"delta":   delta,
		"total":   progress.BlocksProcessed,
	}).Info("Block processed")
}

// readMissedMarker counts the listed missed blocks and warns without
// touching main statistics.
func (t *Tracker) readMissedMarker(network, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return
	}

	missed := strings.Split(content, "\n")
	if t.missedLimiter.Allow() {
		t.logger.Warnf("%s has %d missed blocks!", network, len(missed))
	}
}
