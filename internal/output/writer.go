// Package output writes the JSON artifacts of a harvest run and their manifest.
package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"toolharvest/internal/config"
	"toolharvest/internal/logger"
	"toolharvest/internal/models"
	"toolharvest/pkg/metadata"
)

// Artifact file names.
const (
	DiscoveryFile       = "discovery.json"
	RawToolsFile        = "raw_tools.json"
	ToolsFile           = "tools.json"
	CategoryMappingFile = "category_mapping.json"
	NewCategoriesFile   = "new_categories.json"
	ManifestFile        = "manifest.json"
	ReportFile          = "report.md"
)

// ErrArtifactNotFound is returned when a stage input has not been written yet.
var ErrArtifactNotFound = errors.New("artifact not found")

// Writer writes artifacts into one directory and signs each into the run manifest.
type Writer struct {
	dir      string
	compact  bool
	backup   bool
	manifest *metadata.Manifest
	log      *logger.Logger
}

// NewWriter creates a writer for cfg.Dir.
func NewWriter(cfg config.OutputConfig, runID, version string, log *logger.Logger) *Writer {
	if log == nil {
		log = logger.Discard()
	}

	return &Writer{
		dir:      cfg.Dir,
		compact:  cfg.Compact,
		backup:   cfg.CreateBackup,
		manifest: metadata.NewManifest(runID, version),
		log:      log.With("component", "output"),
	}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Manifest returns the manifest built so far.
func (w *Writer) Manifest() *metadata.Manifest {
	return w.manifest
}

// Carry copies the entries of an earlier run's manifest that this run has
// not written, so stage commands extend the manifest instead of replacing it.
func (w *Writer) Carry(previous *metadata.Manifest) {
	if previous == nil {
		return
	}

	for _, a := range previous.Artifacts {
		if _, ok := w.manifest.Lookup(a.Name); !ok {
			w.manifest.Artifacts = append(w.manifest.Artifacts, a)
		}
	}

	slices.SortFunc(w.manifest.Artifacts, func(a, b metadata.Artifact) int { return strings.Compare(a.Name, b.Name) })
}

// WriteDiscovery writes the discovery set.
func (w *Writer) WriteDiscovery(items []models.DiscoveredItem) error {
	if items == nil {
		items = []models.DiscoveredItem{}
	}

	return w.WriteJSON(DiscoveryFile, items, len(items))
}

// WriteRawTools writes the detail records as extracted.
func (w *Writer) WriteRawTools(tools []models.Tool) error {
	if tools == nil {
		tools = []models.Tool{}
	}

	return w.WriteJSON(RawToolsFile, tools, len(tools))
}

// WriteTools writes the normalized records.
func (w *Writer) WriteTools(tools []models.Tool) error {
	if tools == nil {
		tools = []models.Tool{}
	}

	return w.WriteJSON(ToolsFile, tools, len(tools))
}

// WriteCategoryMapping writes the category mapping.
func (w *Writer) WriteCategoryMapping(mapping []models.CategoryMappingEntry) error {
	if mapping == nil {
		mapping = []models.CategoryMappingEntry{}
	}

	return w.WriteJSON(CategoryMappingFile, mapping, len(mapping))
}

// WriteNewCategories writes the categories to create downstream.
func (w *Writer) WriteNewCategories(records []models.CategoryRecord) error {
	if records == nil {
		records = []models.CategoryRecord{}
	}

	return w.WriteJSON(NewCategoriesFile, records, len(records))
}

// WriteJSON encodes v into name and signs it into the manifest.
func (w *Writer) WriteJSON(name string, v any, items int) error {
	data, err := w.encode(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	return w.WriteFile(name, data, items)
}

// WriteFile writes raw content into name and signs it into the manifest.
func (w *Writer) WriteFile(name string, content []byte, items int) error {
	if err := w.write(name, content); err != nil {
		return err
	}

	w.manifest.Sign(name, content, items)

	return nil
}

// WriteManifest writes manifest.json. The manifest is not listed in itself.
func (w *Writer) WriteManifest() error {
	data, err := w.encode(w.manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	return w.write(ManifestFile, data)
}

func (w *Writer) encode(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if !w.compact {
		enc.SetIndent("", "  ")
	}

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (w *Writer) write(name string, content []byte) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}

	path := filepath.Join(w.dir, name)

	if w.backup {
		if _, statErr := os.Stat(path); statErr == nil {
			backupPath := path + ".bak"
			if renameErr := os.Rename(path, backupPath); renameErr != nil {
				w.log.Warn("could not create backup", "path", path, "error", renameErr)
			} else {
				w.log.Debug("backed up existing file", "path", backupPath)
			}
		}
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	w.log.Debug("wrote artifact", "path", path, "bytes", len(content))

	return nil
}

// ReadJSON decodes artifact name from dir into T.
func ReadJSON[T any](dir, name string) (T, error) {
	var v T

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return v, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
		}

		return v, fmt.Errorf("failed to read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s: %w", name, err)
	}

	return v, nil
}

// ReadManifest loads manifest.json from dir.
func ReadManifest(dir string) (*metadata.Manifest, error) {
	m, err := ReadJSON[metadata.Manifest](dir, ManifestFile)
	if err != nil {
		return nil, err
	}

	return &m, nil
}
