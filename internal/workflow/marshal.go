package workflow

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Marshal serializes the document to YAML. Serialization is pure and
// deterministic: struct field order is fixed and every list in the document
// is ordered by construction, so identical graphs always produce
// byte-identical output.
func Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to serialize workflow document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize workflow document: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a serialized document, for consumers that post-process
// compiled output.
func Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse workflow document: %w", err)
	}
	if doc.Schema != SchemaVersion {
		return nil, fmt.Errorf("unsupported document schema %q, want %q", doc.Schema, SchemaVersion)
	}
	return &doc, nil
}
