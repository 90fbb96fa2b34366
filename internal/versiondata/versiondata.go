// Package versiondata encodes the per-package version document produced by
// the export pipeline: a YAML document compressed with LZMA.
package versiondata

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ulikunitz/xz/lzma"
	"gopkg.in/yaml.v3"
)

// FileName is the name of every emitted document.
const FileName = "versionData.yml.lzma"

// FormatVersion is written into every document.
const FormatVersion = "1.0"

// Document lists every version of one package, newest first.
type Document struct {
	SchemaVersion string    `yaml:"sV"`
	Versions      []Version `yaml:"vD"`
}

// Version is one package version in a Document.
type Version struct {
	Version       string `yaml:"v"`
	RelativePath  string `yaml:"rP"`
	SHA256Hash    string `yaml:"s256H"`
	ArpMinVersion string `yaml:"aMiV,omitempty"`
	ArpMaxVersion string `yaml:"aMaV,omitempty"`
}

// Encode serializes doc. Equal documents always encode to equal bytes.
func Encode(doc *Document) ([]byte, error) {
	if doc.SchemaVersion == "" {
		doc.SchemaVersion = FormatVersion
	}
	var raw bytes.Buffer
	enc := yaml.NewEncoder(&raw)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode version data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode version data: %w", err)
	}
	return compress(raw.Bytes())
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (*Document, error) {
	raw, err := decompress(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress version data: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse version data: %w", err)
	}
	return &doc, nil
}

// ReadFile decodes the document stored at path.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
