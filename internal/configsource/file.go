package configsource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/igwedaniel/blockwatcher/internal/types"
)

// FileSource reads network configurations from <configDir>/networks/*.json
type FileSource struct {
	configDir string
	logger    *logrus.Logger
}

// NewFileSource creates a file-backed configuration source
func NewFileSource(configDir string, logger *logrus.Logger) *FileSource {
	return &FileSource{
		configDir: configDir,
		logger:    logger,
	}
}

// LoadNetworks reads every network file under the configuration directory.
// A file's own slug field keys the result; the file stem is the fallback.
// Malformed files are skipped with a warning, not fatal.
func (s *FileSource) LoadNetworks(ctx context.Context, slugs []string) (map[string]types.NetworkConfig, error) {
	networkDir := filepath.Join(s.configDir, "networks")
	entries, err := os.ReadDir(networkDir)
	if err != nil {
		return nil, fmt.Errorf("network config directory not found: %s", networkDir)
	}

	requested := make(map[string]bool, len(slugs))
	for _, slug := range slugs {
		requested[slug] = true
	}

	networks := make(map[string]types.NetworkConfig)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(networkDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warnf("Failed to load %s: %v", path, err)
			continue
		}

		var network types.NetworkConfig
		if err := json.Unmarshal(data, &network); err != nil {
			s.logger.Warnf("Failed to load %s: %v", path, err)
			continue
		}

		slug := network.Slug
		if slug == "" {
			slug = strings.TrimSuffix(entry.Name(), ".json")
			network.Slug = slug
		}

		// Filter by requested networks if specified
		if len(requested) > 0 && !requested[slug] {
			continue
		}

		networks[slug] = network
		s.logger.Debugf("Loaded network: %s", slug)
	}

	if len(networks) == 0 {
		return nil, &NotFoundError{Requested: slugs}
	}

	return networks, nil
}
