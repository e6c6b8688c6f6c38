// Package courses implements the course lifecycle: creation with content
// uploads and fiat pricing, purchases, share sales and profit flows. Every
// write goes through the transaction orchestrator; every read comes from
// the ledger.
package courses

import (
	"encoding/json"
	"fmt"
)

// CourseMetadata is the JSON document pinned to the content store for each
// course. The on-chain record stores only its content id, so this document
// is the source of the human-facing catalog fields.
type CourseMetadata struct {
	Author        string   `json:"author"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	ContentPoints []string `json:"contentPoints"`
	Topics        []string `json:"topics"`
	Duration      string   `json:"duration"`
}

// Encode renders the metadata document for upload.
func (m *CourseMetadata) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode course metadata: %w", err)
	}
	return data, nil
}

// DecodeCourseMetadata parses a stored metadata document.
func DecodeCourseMetadata(data []byte) (*CourseMetadata, error) {
	var meta CourseMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode course metadata: %w", err)
	}
	return &meta, nil
}
