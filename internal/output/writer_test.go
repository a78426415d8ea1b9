package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolharvest/internal/config"
	"toolharvest/internal/models"
	"toolharvest/pkg/metadata"
)

func TestWriter_WritesArtifactsAndManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewWriter(config.OutputConfig{Dir: dir}, "run-1", "test", nil)

	tools := []models.Tool{{
		Name:       "Acme & Co",
		WebsiteURL: "https://acme.example.com/?utm_source=toolify&ref=a",
	}}

	require.NoError(t, w.WriteDiscovery([]models.DiscoveredItem{{Identifier: "acme", CandidateLogoURL: "https://cdn.example.com/1.webp"}}))
	require.NoError(t, w.WriteTools(tools))
	require.NoError(t, w.WriteCategoryMapping(nil))
	require.NoError(t, w.WriteManifest())

	data, err := os.ReadFile(filepath.Join(dir, ToolsFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Acme & Co")
	assert.Contains(t, string(data), "utm_source=toolify&ref=a")
	assert.Contains(t, string(data), "\n  {")

	mapping, err := os.ReadFile(filepath.Join(dir, CategoryMappingFile))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(mapping))

	manifest, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "run-1", manifest.RunID)
	require.Len(t, manifest.Artifacts, 3)

	discovery, ok := manifest.Lookup(DiscoveryFile)
	require.True(t, ok)
	assert.Equal(t, 1, discovery.Items)

	assert.NoError(t, manifest.Verify(dir))
}

func TestWriter_Compact(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(config.OutputConfig{Dir: dir, Compact: true}, "run-1", "test", nil)

	require.NoError(t, w.WriteNewCategories([]models.CategoryRecord{{Name: "Video", Slug: "video"}}))

	data, err := os.ReadFile(filepath.Join(dir, NewCategoriesFile))
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"Video","slug":"video","description":"","icon":""}]`+"\n", string(data))
}

func TestWriter_CategoryMappingKeys(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(config.OutputConfig{Dir: dir, Compact: true}, "run-1", "test", nil)

	id := int64(7)
	require.NoError(t, w.WriteCategoryMapping([]models.CategoryMappingEntry{
		{SourceName: "Video Editing", SourceSlug: "video-editing", TargetCategoryID: &id},
		{SourceName: "Robots", SourceSlug: "robots", IsNew: true},
	}))

	data, err := os.ReadFile(filepath.Join(dir, CategoryMappingFile))
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"source_name":"Video Editing","source_slug":"video-editing","target_category_id":7,"is_new":false},
		{"source_name":"Robots","source_slug":"robots","target_category_id":null,"is_new":true}
	]`, string(data))
}

func TestWriter_Backup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, RawToolsFile)
	require.NoError(t, os.WriteFile(path, []byte(`["old"]`), 0o644))

	w := NewWriter(config.OutputConfig{Dir: dir, CreateBackup: true}, "run-1", "test", nil)
	require.NoError(t, w.WriteRawTools(nil))

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, `["old"]`, string(backup))

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(current))
}

func TestReadJSON(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(config.OutputConfig{Dir: dir}, "run-1", "test", nil)

	raw := []models.Tool{{Name: "A", Platforms: models.StringList{"Web"}, FeatureTags: models.StringList{}}}
	require.NoError(t, w.WriteRawTools(raw))

	got, err := ReadJSON[[]models.Tool](dir, RawToolsFile)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = ReadJSON[[]models.Tool](dir, ToolsFile)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestWriter_Carry(t *testing.T) {
	previous := metadata.NewManifest("run-0", "test")
	previous.Sign(DiscoveryFile, []byte("[]"), 0)
	previous.Sign(ToolsFile, []byte("[1]"), 1)

	w := NewWriter(config.OutputConfig{Dir: t.TempDir()}, "run-1", "test", nil)
	require.NoError(t, w.WriteTools(nil))
	w.Carry(previous)

	names := make([]string, 0, len(w.Manifest().Artifacts))
	for _, a := range w.Manifest().Artifacts {
		names = append(names, a.Name)
	}

	assert.Equal(t, []string{DiscoveryFile, ToolsFile}, names)

	tools, _ := w.Manifest().Lookup(ToolsFile)
	assert.Equal(t, 0, tools.Items)
}
