package core

import (
	"context"
)

// ExtractResult is the raw output of text extraction for one document.
// Pages are separated by form feeds in Text when the source format carries
// page boundaries; Meta holds converter-reported metadata (page counts,
// author, etc).
type ExtractResult struct {
	Text string
	Meta map[string]string
}

// DocumentExtractor extracts raw text from an uploaded document. The
// contentType hint selects the parsing strategy.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (*ExtractResult, error)
}
