package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestManifest_SignAndVerify(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`[{"name":"Tool A"}]`)

	if err := os.WriteFile(filepath.Join(dir, "tools.json"), content, 0644); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}

	m := NewManifest("run-1", "test")
	m.Sign("tools.json", content, 1)

	if err := m.Verify(dir); err != nil {
		t.Fatalf("Verify returned unexpected error: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "tools.json"), []byte(`[]`), 0644); err != nil {
		t.Fatalf("Failed to rewrite artifact: %v", err)
	}

	if err := m.Verify(dir); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("Expected ErrHashMismatch, got %v", err)
	}
}

func TestManifest_SignReplaces(t *testing.T) {
	m := NewManifest("run-1", "test")
	m.Sign("b.json", []byte("1"), 1)
	m.Sign("a.json", []byte("2"), 2)
	m.Sign("b.json", []byte("3"), 3)

	if len(m.Artifacts) != 2 {
		t.Fatalf("Expected 2 artifacts, got %d", len(m.Artifacts))
	}

	if m.Artifacts[0].Name != "a.json" {
		t.Errorf("Expected sorted artifacts, got %s first", m.Artifacts[0].Name)
	}

	b, ok := m.Lookup("b.json")
	if !ok || b.Items != 3 {
		t.Errorf("Expected replaced entry with 3 items, got %+v", b)
	}
}

func TestManifest_VerifyErrors(t *testing.T) {
	if err := NewManifest("r", "v").Verify(t.TempDir()); !errors.Is(err, ErrNoArtifacts) {
		t.Errorf("Expected ErrNoArtifacts, got %v", err)
	}

	m := NewManifest("r", "v")
	m.Sign("missing.json", []byte("x"), 0)

	if err := m.Verify(t.TempDir()); !errors.Is(err, ErrMissingArtifact) {
		t.Errorf("Expected ErrMissingArtifact, got %v", err)
	}
}
