package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolharvest/internal/config"
	"toolharvest/internal/logger"
	"toolharvest/internal/models"
	"toolharvest/internal/output"
)

func replayConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Browser.Driver = config.DriverReplay
	cfg.Browser.ReplayDir = filepath.Join("..", "..", "..", "internal", "crawler", "testdata", "replay")
	cfg.Discovery.ScrollPauseMs = 0
	cfg.Discovery.GrowthTimeoutMs = 0
	cfg.Discovery.SettleDelayMs = 0
	cfg.Discovery.ImagePollAttempts = 1
	cfg.Discovery.ImagePollDelayMs = 0
	cfg.Extraction.NavigateDelayMs = 0
	cfg.Extraction.Workers = 2
	cfg.Retry.InitialDelayMs = 0
	cfg.Output.Dir = t.TempDir()

	return cfg
}

func TestPipeline_RunAllReplay(t *testing.T) {
	cfg := replayConfig(t)
	rt := newRuntime(cfg, logger.Discard())

	var out bytes.Buffer

	err := rt.finish(newPipeline(rt, &out).runAll(context.Background()))
	require.NoError(t, err)

	for _, name := range []string{
		output.DiscoveryFile, output.RawToolsFile, output.ToolsFile,
		output.CategoryMappingFile, output.NewCategoriesFile, output.ReportFile, output.ManifestFile,
	} {
		assert.FileExists(t, filepath.Join(cfg.Output.Dir, name))
	}

	items, err := output.ReadJSON[[]models.DiscoveredItem](cfg.Output.Dir, output.DiscoveryFile)
	require.NoError(t, err)
	assert.Len(t, items, 4)

	raw, err := output.ReadJSON[[]models.Tool](cfg.Output.Dir, output.RawToolsFile)
	require.NoError(t, err)
	assert.Len(t, raw, 3)

	manifest, err := output.ReadManifest(cfg.Output.Dir)
	require.NoError(t, err)
	assert.Equal(t, rt.runID, manifest.RunID)
	assert.NoError(t, manifest.Verify(cfg.Output.Dir))

	reportMD, err := os.ReadFile(filepath.Join(cfg.Output.Dir, output.ReportFile))
	require.NoError(t, err)
	assert.Contains(t, string(reportMD), "- ghost-tool")

	assert.Contains(t, out.String(), "Discovery")
	assert.Contains(t, out.String(), "Categories")
}

func TestPipeline_StagesReadEarlierArtifacts(t *testing.T) {
	cfg := replayConfig(t)

	first := newRuntime(cfg, logger.Discard())
	client, session, err := newCrawler(context.Background(), first)
	require.NoError(t, err)

	require.NoError(t, newPipeline(first, nil).discover(context.Background(), client))
	require.NoError(t, session.Close())
	require.NoError(t, first.finish(nil))

	second := newRuntime(cfg, logger.Discard())
	client, session, err = newCrawler(context.Background(), second)
	require.NoError(t, err)

	defer session.Close()

	p := newPipeline(second, nil)
	require.NoError(t, p.extract(context.Background(), client))
	assert.Len(t, p.raw, 3)
	assert.Equal(t, []string{"ghost-tool"}, p.failed)

	require.NoError(t, newPipeline(second, nil).normalize())
	require.NoError(t, newPipeline(second, nil).reconcile(context.Background()))
	require.NoError(t, second.finish(nil))

	manifest, err := output.ReadManifest(cfg.Output.Dir)
	require.NoError(t, err)

	_, carried := manifest.Lookup(output.DiscoveryFile)
	assert.True(t, carried)
	assert.NoError(t, manifest.Verify(cfg.Output.Dir))
}

func TestNormalize_MissingInput(t *testing.T) {
	rt := newRuntime(replayConfig(t), logger.Discard())

	err := newPipeline(rt, nil).normalize()
	assert.ErrorIs(t, err, output.ErrArtifactNotFound)
}

func TestMissingIdentifiers(t *testing.T) {
	items := []models.DiscoveredItem{{Identifier: "a"}, {Identifier: "b"}, {Identifier: "c"}}
	raw := []models.Tool{{Identifier: "b"}}

	assert.Equal(t, []string{"a", "c"}, missingIdentifiers(items, raw))
}
