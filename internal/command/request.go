package command

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SaveRequest carries an edited document to be written back.
// A nil NewContents means the editor had nothing to save; "" is a valid empty document.
type SaveRequest struct {
	Path            string  `json:"path"`
	NewContents     *string `json:"newContents,omitempty"`
	OffsetWordCount int     `json:"offsetWordCount"`
}

// NewSaveRequest builds a request that carries content.
func NewSaveRequest(path, contents string, offsetWordCount int) *SaveRequest {
	return &SaveRequest{
		Path:            path,
		NewContents:     &contents,
		OffsetWordCount: offsetWordCount,
	}
}

// HasContent reports whether r is present and carries content.
func (r *SaveRequest) HasContent() bool {
	return r != nil && r.NewContents != nil
}

// DecodeSaveRequest parses an event payload. A null or empty payload yields a
// nil request; a payload without newContents yields a request without content.
func DecodeSaveRequest(payload []byte) (*SaveRequest, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil, nil
	}

	var req SaveRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decoding save request: %w", err)
	}
	return &req, nil
}
