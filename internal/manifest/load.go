package manifest

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/blackwell-systems/pkgcatalog/internal/version"
	"gopkg.in/yaml.v3"
)

// Parse decodes a singleton YAML manifest and records its SHA-256 hash.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("manifest has no PackageIdentifier")
	}
	if m.Version == "" {
		return nil, fmt.Errorf("manifest %s has no PackageVersion", m.ID)
	}

	sum := sha256.Sum256(data)
	m.StreamHash = sum[:]
	return &m, nil
}

// LoadFile reads and parses the manifest at path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func higherMin(candidate, current string) bool {
	if candidate == "" {
		return false
	}
	if current == "" {
		return true
	}
	return version.Compare(candidate, current) > 0
}
