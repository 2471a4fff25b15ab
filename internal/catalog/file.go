// file: internal/catalog/file.go
// version: 1.0.0
// guid: 5e6f7a8b-9c0d-1e2f-3a4b-5c6d7e8f9a0b

package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// DocumentFile is the on-disk envelope for an exported catalog document. The
// embedded key lets the drop-directory importer route a file without relying
// on its name.
type DocumentFile struct {
	Key      string    `json:"key"`
	Document *Document `json:"document"`
}

// ReadDocumentFile reads and validates an exported document envelope.
func ReadDocumentFile(path string) (Key, *Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Key{}, nil, fmt.Errorf("read document file: %w", err)
	}

	var file DocumentFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Key{}, nil, fmt.Errorf("parse document file %s: %w", path, err)
	}
	if file.Document == nil {
		return Key{}, nil, fmt.Errorf("document file %s has no document", path)
	}
	key, err := ParseKey(file.Key)
	if err != nil {
		return Key{}, nil, fmt.Errorf("document file %s: %w", path, err)
	}
	return key, file.Document, nil
}

// WriteDocumentFile writes a document envelope, replacing any existing file.
func WriteDocumentFile(path string, key Key, doc *Document) error {
	data, err := json.MarshalIndent(DocumentFile{Key: key.String(), Document: doc}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write document file: %w", err)
	}
	return nil
}
