package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"blockdoc/internal/domain"
)

// MirrorExt is the extension of on-disk document mirrors.
const MirrorExt = ".json"

// MirrorPath returns where the JSON mirror of id lives under dataDir.
func MirrorPath(dataDir, id string) string {
	return filepath.Join(dataDir, id+MirrorExt)
}

// MirrorID extracts the document id from a mirror path, or "" when path is
// not a mirror.
func MirrorID(path string) string {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, MirrorExt) || strings.HasPrefix(base, ".") {
		return ""
	}
	return strings.TrimSuffix(base, MirrorExt)
}

// WriteMirror writes doc as indented JSON. The file is replaced through a
// rename so readers never see a partial document.
func WriteMirror(dataDir, id string, doc *domain.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mirror: %w", err)
	}
	path := MirrorPath(dataDir, id)
	tmp := filepath.Join(dataDir, "."+id+MirrorExt+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write mirror: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write mirror: %w", err)
	}
	return nil
}

// ReadMirror decodes the document stored at path.
func ReadMirror(path string) (*domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mirror: %w", err)
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode mirror %s: %w", filepath.Base(path), err)
	}
	return &doc, nil
}
