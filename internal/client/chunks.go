package client

import (
	"strings"

	"github.com/ragstack/corpora/internal/models"
)

// ChunkSet is a read-only view over one document's chunks with local
// filtering, so a results UI never re-fetches while the user narrows down.
type ChunkSet struct {
	chunks []models.DocumentChunk
}

func NewChunkSet(chunks []models.DocumentChunk) *ChunkSet {
	return &ChunkSet{chunks: chunks}
}

func (cs *ChunkSet) Len() int { return len(cs.chunks) }

// All returns the chunks in stored (position) order.
func (cs *ChunkSet) All() []models.DocumentChunk {
	out := make([]models.DocumentChunk, len(cs.chunks))
	copy(out, cs.chunks)
	return out
}

// Get returns the chunk with the given ID, or false.
func (cs *ChunkSet) Get(id string) (models.DocumentChunk, bool) {
	for _, c := range cs.chunks {
		if c.ID == id {
			return c, true
		}
	}
	return models.DocumentChunk{}, false
}

// Filter narrows the set. Zero-valued criteria are ignored; the rest are
// AND-composed. Query matches chunk content case-insensitively.
type Filter struct {
	Types []string // keep only these chunk types (text, image, table)
	Page  int      // keep only chunks from this page (1-based)
	Query string   // keep only chunks whose content contains this substring
}

func (cs *ChunkSet) Filter(f Filter) *ChunkSet {
	query := strings.ToLower(f.Query)

	var out []models.DocumentChunk
	for _, c := range cs.chunks {
		if len(f.Types) > 0 && !containsType(f.Types, c.Type) {
			continue
		}
		if f.Page > 0 && c.Page != f.Page {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(c.Content), query) {
			continue
		}
		out = append(out, c)
	}
	return &ChunkSet{chunks: out}
}

func containsType(types []string, t string) bool {
	for _, want := range types {
		if strings.EqualFold(want, t) {
			return true
		}
	}
	return false
}
