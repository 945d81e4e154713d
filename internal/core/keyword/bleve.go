// Package keyword provides the Bleve implementation of core.KeywordIndex,
// the lexical half of hybrid search. The pipeline's indexing stage feeds it
// one entry per chunk.
package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/ragstack/corpora/internal/core"
	"github.com/ragstack/corpora/internal/models"
)

// chunkEntry is the shape stored in the index, keyed by chunk ID.
type chunkEntry struct {
	ProjectID  string `json:"project_id"`
	DocumentID string `json:"document_id"`
	Type       string `json:"type"`
	Content    string `json:"content"`
}

type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// reused so already-ingested documents stay searchable across restarts.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so exact words
	// from the document match exact query terms.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("project_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("document_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("type", keywordFieldMapping)

	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexChunks adds one entry per chunk in a single batch.
func (b *BleveIndex) IndexChunks(ctx context.Context, projectID string, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, ch := range chunks {
		entry := chunkEntry{
			ProjectID:  projectID,
			DocumentID: ch.DocumentID,
			Type:       ch.Type,
			Content:    ch.Content,
		}
		if err := batch.Index(ch.ID, entry); err != nil {
			return fmt.Errorf("batch chunk %s: %w", ch.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("bleve batch: %w", err)
	}
	return nil
}

// DeleteDocument removes every indexed chunk belonging to a document.
func (b *BleveIndex) DeleteDocument(ctx context.Context, projectID, documentID string) error {
	q := bleve.NewTermQuery(documentID)
	q.SetField("document_id")

	req := bleve.NewSearchRequest(q)
	req.Size = 10000

	res, err := b.index.Search(req)
	if err != nil {
		return fmt.Errorf("bleve lookup for delete: %w", err)
	}

	batch := b.index.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("bleve delete batch: %w", err)
	}
	return nil
}

// Search runs a match query over chunk content, scoped to one project.
func (b *BleveIndex) Search(ctx context.Context, projectID, query string, limit int) ([]core.KeywordHit, error) {
	match := bleve.NewMatchQuery(query)
	match.SetField("content")

	scope := bleve.NewTermQuery(projectID)
	scope.SetField("project_id")

	q := bleve.NewConjunctionQuery(match, scope)

	req := bleve.NewSearchRequest(q)
	req.Size = limit

	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	out := make([]core.KeywordHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, core.KeywordHit{ChunkID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

func (b *BleveIndex) Close() error {
	return b.index.Close()
}

var _ core.KeywordIndex = (*BleveIndex)(nil)
