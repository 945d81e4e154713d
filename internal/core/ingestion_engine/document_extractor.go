package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"

	"code.sajari.com/docconv"

	"github.com/ragstack/corpora/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// Extract uses docconv to pull raw text and converter metadata from the given
// bytes based on content type.
func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, contentType string) (*core.ExtractResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		return nil, fmt.Errorf("docconv %q: %w", contentType, err)
	}
	if res.Body == "" {
		return nil, fmt.Errorf("docconv %q: extracted empty text", contentType)
	}

	return &core.ExtractResult{Text: res.Body, Meta: res.Meta}, nil
}
