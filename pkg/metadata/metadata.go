// Package metadata provides checksums and a manifest for the JSON artifacts a run produces.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Manifest verification errors.
var (
	ErrNoArtifacts     = errors.New("manifest lists no artifacts")
	ErrHashMismatch    = errors.New("hash mismatch")
	ErrMissingArtifact = errors.New("artifact missing")
)

// Artifact describes one written file.
type Artifact struct {
	Name  string `json:"name"`
	Hash  string `json:"sha256"`
	Items int    `json:"items"`
	Bytes int    `json:"bytes"`
}

// Manifest lists every artifact of one run.
type Manifest struct {
	GeneratedAt time.Time  `json:"generated_at"`
	RunID       string     `json:"run_id"`
	Version     string     `json:"version"`
	Artifacts   []Artifact `json:"artifacts"`
}

// CalculateHash computes the SHA-256 hash of content.
func CalculateHash(content []byte) string {
	hash := sha256.Sum256(content)

	return hex.EncodeToString(hash[:])
}

// NewManifest creates an empty manifest stamped with the current UTC time.
func NewManifest(runID, version string) *Manifest {
	return &Manifest{
		RunID:       runID,
		Version:     version,
		GeneratedAt: time.Now().UTC(),
	}
}

// Sign records content under name, replacing an earlier entry with the same name.
func (m *Manifest) Sign(name string, content []byte, items int) {
	entry := Artifact{
		Name:  name,
		Hash:  CalculateHash(content),
		Items: items,
		Bytes: len(content),
	}

	for i := range m.Artifacts {
		if m.Artifacts[i].Name == name {
			m.Artifacts[i] = entry

			return
		}
	}

	m.Artifacts = append(m.Artifacts, entry)
	sort.Slice(m.Artifacts, func(i, j int) bool { return m.Artifacts[i].Name < m.Artifacts[j].Name })
}

// Lookup returns the artifact entry for name.
func (m *Manifest) Lookup(name string) (Artifact, bool) {
	for _, a := range m.Artifacts {
		if a.Name == name {
			return a, true
		}
	}

	return Artifact{}, false
}

// Verify re-hashes every artifact found in dir against the manifest.
func (m *Manifest) Verify(dir string) error {
	if len(m.Artifacts) == 0 {
		return ErrNoArtifacts
	}

	for _, a := range m.Artifacts {
		content, err := os.ReadFile(filepath.Join(dir, a.Name))
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %s", ErrMissingArtifact, a.Name)
			}

			return fmt.Errorf("failed to read artifact %s: %w", a.Name, err)
		}

		calculated := CalculateHash(content)
		if calculated != a.Hash {
			return fmt.Errorf("%w: %s expected %s, got %s", ErrHashMismatch, a.Name, a.Hash, calculated)
		}
	}

	return nil
}
