package configsource

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeNetworkFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func setupConfigDir(t *testing.T) string {
	t.Helper()
	configDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(configDir, "networks"), 0o755))
	return configDir
}

func TestFileSourceLoadNetworks_All(t *testing.T) {
	configDir := setupConfigDir(t)
	networkDir := filepath.Join(configDir, "networks")
	writeNetworkFile(t, networkDir, "ethereum_mainnet.json", `{
		"name": "Ethereum Mainnet",
		"slug": "ethereum_mainnet",
		"network_type": "EVM",
		"chain_id": 1,
		"rpc_urls": ["https://eth.example.com"]
	}`)
	writeNetworkFile(t, networkDir, "stellar_mainnet.json", `{
		"name": "Stellar Mainnet",
		"slug": "stellar_mainnet",
		"network_type": "Stellar",
		"rpc_urls": [{"url": {"value": "https://horizon.example.com"}, "weight": 80}]
	}`)

	src := NewFileSource(configDir, testLogger())
	networks, err := src.LoadNetworks(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, networks, 2)

	eth := networks["ethereum_mainnet"]
	require.NotNil(t, eth.ChainID)
	assert.EqualValues(t, 1, *eth.ChainID)
	require.Len(t, eth.RPCURLs, 1)
	assert.Equal(t, "https://eth.example.com", eth.RPCURLs[0].URL.Value)
	assert.Equal(t, 100, eth.RPCURLs[0].Weight)

	stellar := networks["stellar_mainnet"]
	require.Len(t, stellar.RPCURLs, 1)
	assert.Equal(t, 80, stellar.RPCURLs[0].Weight)
}

func TestFileSourceLoadNetworks_Selection(t *testing.T) {
	configDir := setupConfigDir(t)
	networkDir := filepath.Join(configDir, "networks")
	writeNetworkFile(t, networkDir, "a.json", `{"slug": "a", "network_type": "EVM", "rpc_urls": []}`)
	writeNetworkFile(t, networkDir, "b.json", `{"slug": "b", "network_type": "EVM", "rpc_urls": []}`)

	src := NewFileSource(configDir, testLogger())
	networks, err := src.LoadNetworks(context.Background(), []string{"b"})
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Contains(t, networks, "b")
}

func TestFileSourceLoadNetworks_DisjointSelection(t *testing.T) {
	configDir := setupConfigDir(t)
	writeNetworkFile(t, filepath.Join(configDir, "networks"), "a.json", `{"slug": "a", "network_type": "EVM"}`)

	src := NewFileSource(configDir, testLogger())
	_, err := src.LoadNetworks(context.Background(), []string{"nope"})

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{"nope"}, notFound.Requested)
}

func TestFileSourceLoadNetworks_EmptyDir(t *testing.T) {
	configDir := setupConfigDir(t)

	src := NewFileSource(configDir, testLogger())
	_, err := src.LoadNetworks(context.Background(), nil)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Empty(t, notFound.Requested)
}

func TestFileSourceLoadNetworks_MissingDirFatal(t *testing.T) {
	src := NewFileSource(t.TempDir(), testLogger())
	_, err := src.LoadNetworks(context.Background(), nil)
	require.Error(t, err)

	var notFound *NotFoundError
	assert.NotErrorAs(t, err, &notFound)
}

func TestFileSourceLoadNetworks_SlugFallsBackToFileStem(t *testing.T) {
	configDir := setupConfigDir(t)
	writeNetworkFile(t, filepath.Join(configDir, "networks"), "polygon.json", `{"network_type": "EVM", "rpc_urls": []}`)

	src := NewFileSource(configDir, testLogger())
	networks, err := src.LoadNetworks(context.Background(), nil)
	require.NoError(t, err)
	require.Contains(t, networks, "polygon")
	assert.Equal(t, "polygon", networks["polygon"].Slug)
}

func TestFileSourceLoadNetworks_MalformedFileSkipped(t *testing.T) {
	configDir := setupConfigDir(t)
	networkDir := filepath.Join(configDir, "networks")
	writeNetworkFile(t, networkDir, "good.json", `{"slug": "good", "network_type": "EVM", "rpc_urls": []}`)
	writeNetworkFile(t, networkDir, "broken.json", `{not json`)

	src := NewFileSource(configDir, testLogger())
	networks, err := src.LoadNetworks(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Contains(t, networks, "good")
}
