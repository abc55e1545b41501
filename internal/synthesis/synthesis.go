// Package synthesis renders loaded configuration records into the on-disk
// layout the external monitor consumes: networks/, monitors/ and triggers/
// subdirectories with one JSON file per record and a single merged trigger
// file.
package synthesis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/igwedaniel/blockwatcher/internal/configsource"
	"github.com/igwedaniel/blockwatcher/internal/types"
)

// Conventional no-op watch addresses per chain family
const (
	evmBurnAddress     = "0x0000000000000000000000000000000000000000"
	stellarBurnAddress = "GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF"
)

// Options controls where and how the configuration directory is produced
type Options struct {
	// StoreBlocks forces store_blocks on for every network. It never
	// downgrades a network's own store_blocks: true.
	StoreBlocks bool

	// Persistent writes into ConfigDir, preserving files this run does not
	// touch. When false an ephemeral directory is allocated instead,
	// removed by Result.Cleanup.
	Persistent bool
	ConfigDir  string
}

// Result is the synthesized configuration directory
type Result struct {
	Dir       string
	ephemeral bool
}

// Cleanup removes the directory when it was ephemeral
func (r *Result) Cleanup() error {
	if !r.ephemeral {
		return nil
	}
	return os.RemoveAll(r.Dir)
}

// Synthesizer writes configuration directories
type Synthesizer struct {
	logger *logrus.Logger
}

// New creates a Synthesizer
func New(logger *logrus.Logger) *Synthesizer {
	return &Synthesizer{logger: logger}
}

// Synthesize produces a complete configuration directory from the loaded
// records. With no monitors it fabricates one minimal no-op monitor per
// distinct network type, so the external process pulls and tracks blocks
// without acting on them. The triggers subdirectory always contains a
// parseable file, even when no triggers resolved.
func (s *Synthesizer) Synthesize(
	networks map[string]types.NetworkConfig,
	monitors []types.MonitorConfig,
	triggers *configsource.TriggerSet,
	opts Options,
) (*Result, error) {
	result, err := s.prepareDestination(opts)
	if err != nil {
		return nil, err
	}

	for slug, network := range networks {
		if opts.StoreBlocks {
			network.StoreBlocks = true
		}
		path := filepath.Join(result.Dir, "networks", slug+".json")
		if err := writeJSON(path, network); err != nil {
			result.Cleanup()
			return nil, err
		}
	}

	if len(monitors) == 0 {
		monitors = DefaultMonitors(networks)
	}
	for i, monitor := range monitors {
		name := monitor.Name
		if name == "" {
			name = fmt.Sprintf("monitor_%d", i)
		}
		path := filepath.Join(result.Dir, "monitors", name+".json")
		if err := writeJSON(path, monitor); err != nil {
			result.Cleanup()
			return nil, err
		}
	}

	if err := s.writeTriggers(result.Dir, triggers); err != nil {
		result.Cleanup()
		return nil, err
	}

	s.logger.Debugf("Created configs in: %s", result.Dir)
	return result, nil
}

func (s *Synthesizer) prepareDestination(opts Options) (*Result, error) {
	var result *Result
	if opts.Persistent {
		result = &Result{Dir: opts.ConfigDir}
	} else {
		dir, err := os.MkdirTemp("", "blockwatcher_")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp config directory: %w", err)
		}
		result = &Result{Dir: dir, ephemeral: true}
	}

	for _, subdir := range []string{"networks", "monitors", "triggers"} {
		if err := os.MkdirAll(filepath.Join(result.Dir, subdir), 0o755); err != nil {
			result.Cleanup()
			return nil, fmt.Errorf("failed to create %s directory: %w", subdir, err)
		}
	}
	return result, nil
}

// writeTriggers merges every resolved trigger into one slug-keyed file. The
// external process requires the file to exist and parse even when empty.
func (s *Synthesizer) writeTriggers(dir string, triggers *configsource.TriggerSet) error {
	if triggers == nil || triggers.Len() == 0 {
		return writeJSON(filepath.Join(dir, "triggers", "empty.json"), map[string]types.TriggerConfig{})
	}

	merged := make(map[string]types.TriggerConfig, triggers.Len())
	for _, trigger := range triggers.All() {
		merged[trigger.Slug] = *trigger
	}
	return writeJSON(filepath.Join(dir, "triggers", "database_triggers.json"), merged)
}

// DefaultMonitors fabricates one minimal monitor per distinct network type
// present: a no-op watch on a conventional burn address, matching only
// successful transactions, carrying no triggers.
func DefaultMonitors(networks map[string]types.NetworkConfig) []types.MonitorConfig {
	var evmSlugs, stellarSlugs []string
	for slug, network := range networks {
		switch network.NetworkType {
		case types.EVM:
			evmSlugs = append(evmSlugs, slug)
		case types.Stellar:
			stellarSlugs = append(stellarSlugs, slug)
		}
	}
	sort.Strings(evmSlugs)
	sort.Strings(stellarSlugs)

	var monitors []types.MonitorConfig
	if len(evmSlugs) > 0 {
		monitors = append(monitors, defaultMonitor("blockwatcher_evm", evmSlugs, evmBurnAddress))
	}
	if len(stellarSlugs) > 0 {
		monitors = append(monitors, defaultMonitor("blockwatcher_stellar", stellarSlugs, stellarBurnAddress))
	}
	return monitors
}

func defaultMonitor(name string, slugs []string, address string) types.MonitorConfig {
	return types.MonitorConfig{
		Name:      name,
		Paused:    false,
		Networks:  slugs,
		Addresses: []types.WatchedAddress{{Address: address}},
		MatchConditions: types.MatchConditions{
			Functions: []types.FunctionCondition{},
			Events:    []types.EventCondition{},
			Transactions: []types.TransactionCondition{
				{Status: "Success", Expression: nil},
			},
		},
		TriggerConditions: []json.RawMessage{},
		Triggers:          []types.TriggerRef{},
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
