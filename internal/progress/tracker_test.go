package progress

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMarker(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newTestTracker(t *testing.T, dataDir string) *Tracker {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return New(dataDir, 10*time.Millisecond, false, logger)
}

func TestScan_FirstObservationSeedsStats(t *testing.T) {
	dataDir := t.TempDir()
	writeMarker(t, dataDir, "ethereum_mainnet_last_block.txt", "1000\n")

	tracker := newTestTracker(t, dataDir)
	tracker.Scan()

	stats := tracker.Snapshot()
	require.Contains(t, stats, "ethereum_mainnet")
	progress := stats["ethereum_mainnet"]
	assert.EqualValues(t, 1000, progress.FirstBlock)
	assert.EqualValues(t, 1000, progress.LastBlock)
	assert.EqualValues(t, 0, progress.BlocksProcessed)
}

func TestScan_MonotonicUpdates(t *testing.T) {
	dataDir := t.TempDir()
	tracker := newTestTracker(t, dataDir)

	writeMarker(t, dataDir, "ethereum_mainnet_last_block.txt", "1000")
	tracker.Scan()
	writeMarker(t, dataDir, "ethereum_mainnet_last_block.txt", "1005")
	tracker.Scan()
	writeMarker(t, dataDir, "ethereum_mainnet_last_block.txt", "1012")
	tracker.Scan()

	progress := tracker.Snapshot()["ethereum_mainnet"]
	assert.EqualValues(t, 1012, progress.LastBlock)
	assert.EqualValues(t, 12, progress.BlocksProcessed)
	assert.Equal(t, progress.LastBlock-progress.FirstBlock, progress.BlocksProcessed)
}

func TestScan_RegressiveReadIgnored(t *testing.T) {
	dataDir := t.TempDir()
	tracker := newTestTracker(t, dataDir)

	writeMarker(t, dataDir, "ethereum_mainnet_last_block.txt", "1000")
	tracker.Scan()
	writeMarker(t, dataDir, "ethereum_mainnet_last_block.txt", "1010")
	tracker.Scan()
	// Out-of-order read must not move statistics backwards
	writeMarker(t, dataDir, "ethereum_mainnet_last_block.txt", "1003")
	tracker.Scan()

	progress := tracker.Snapshot()["ethereum_mainnet"]
	assert.EqualValues(t, 1010, progress.LastBlock)
	assert.EqualValues(t, 10, progress.BlocksProcessed)
}

func TestScan_RepeatedReadIgnored(t *testing.T) {
	dataDir := t.TempDir()
	tracker := newTestTracker(t, dataDir)

	writeMarker(t, dataDir, "ethereum_mainnet_last_block.txt", "1000")
	tracker.Scan()
	before := tracker.Snapshot()["ethereum_mainnet"]

	tracker.Scan()
	after := tracker.Snapshot()["ethereum_mainnet"]
	assert.Equal(t, before, after)
}

func TestScan_MalformedMarkerSkipped(t *testing.T) {
	dataDir := t.TempDir()
	tracker := newTestTracker(t, dataDir)

	writeMarker(t, dataDir, "good_last_block.txt", "42")
	writeMarker(t, dataDir, "bad_last_block.txt", "not a number")
	tracker.Scan()

	stats := tracker.Snapshot()
	assert.Contains(t, stats, "good")
	assert.NotContains(t, stats, "bad")
}

func TestScan_TracksMultipleNetworks(t *testing.T) {
	dataDir := t.TempDir()
	tracker := newTestTracker(t, dataDir)

	writeMarker(t, dataDir, "ethereum_mainnet_last_block.txt", "100")
	writeMarker(t, dataDir, "stellar_mainnet_last_block.txt", "900")
	tracker.Scan()

	stats := tracker.Snapshot()
	require.Len(t, stats, 2)
	assert.EqualValues(t, 100, stats["ethereum_mainnet"].LastBlock)
	assert.EqualValues(t, 900, stats["stellar_mainnet"].LastBlock)
}

func TestScan_MissedBlocksWarnWithoutTouchingStats(t *testing.T) {
	dataDir := t.TempDir()
	logger, hook := test.NewNullLogger()
	tracker := New(dataDir, 10*time.Millisecond, false, logger)

	writeMarker(t, dataDir, "ethereum_mainnet_missed_blocks.txt", "100\n101\n105\n")
	tracker.Scan()

	assert.Empty(t, tracker.Snapshot())

	require.NotEmpty(t, hook.AllEntries())
	assert.Contains(t, hook.LastEntry().Message, "3 missed blocks")
}

func TestSnapshot_ReturnsCopy(t *testing.T) {
	dataDir := t.TempDir()
	tracker := newTestTracker(t, dataDir)

	writeMarker(t, dataDir, "ethereum_mainnet_last_block.txt", "100")
	tracker.Scan()

	snapshot := tracker.Snapshot()
	entry := snapshot["ethereum_mainnet"]
	entry.LastBlock = 999999
	snapshot["ethereum_mainnet"] = entry

	assert.EqualValues(t, 100, tracker.Snapshot()["ethereum_mainnet"].LastBlock)
}

func TestStartStop_LoopObservesUpdates(t *testing.T) {
	dataDir := t.TempDir()
	tracker := newTestTracker(t, dataDir)

	tracker.Start(context.Background())
	writeMarker(t, dataDir, "ethereum_mainnet_last_block.txt", "500")

	require.Eventually(t, func() bool {
		_, ok := tracker.Snapshot()["ethereum_mainnet"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	tracker.Stop()
	// Stop is idempotent
	tracker.Stop()
}
