package ingestion_engine

import (
	"strings"

	"github.com/ragstack/corpora/internal/models"
)

// partitionText splits extracted text into page-attributed partitions and
// classifies each block as text, table, or image. Page boundaries come from
// form feeds when the converter emits them (PDF), otherwise pages are
// approximated by character volume.
func partitionText(text string, pageCharEstimate int) []partition {
	var out []partition
	for pageNo, page := range splitPages(text, pageCharEstimate) {
		for _, block := range splitBlocks(page) {
			out = append(out, partition{
				Kind: classifyBlock(block),
				Page: pageNo + 1,
				Text: strings.TrimSpace(block),
			})
		}
	}
	return out
}

// splitPages prefers explicit form-feed boundaries; without them it windows
// the text into runs of roughly pageCharEstimate characters, always breaking
// on line boundaries.
func splitPages(text string, pageCharEstimate int) []string {
	if strings.Contains(text, "\f") {
		raw := strings.Split(text, "\f")
		pages := make([]string, 0, len(raw))
		for _, p := range raw {
			if strings.TrimSpace(p) != "" {
				pages = append(pages, p)
			}
		}
		return pages
	}

	if pageCharEstimate <= 0 {
		pageCharEstimate = 2000
	}

	var (
		pages []string
		cur   strings.Builder
	)
	for _, line := range strings.Split(text, "\n") {
		cur.WriteString(line)
		cur.WriteByte('\n')
		if cur.Len() >= pageCharEstimate {
			pages = append(pages, cur.String())
			cur.Reset()
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		pages = append(pages, cur.String())
	}
	return pages
}

// splitBlocks groups a page's lines into blocks separated by blank lines.
func splitBlocks(page string) []string {
	var (
		blocks []string
		cur    []string
	)
	flush := func() {
		if len(cur) > 0 {
			blocks = append(blocks, strings.Join(cur, "\n"))
			cur = nil
		}
	}
	for _, line := range strings.Split(page, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return blocks
}

// classifyBlock tags a block as table when most of its lines look like
// delimited rows, image when it is a markdown image or an extractor image
// marker, and text otherwise.
func classifyBlock(block string) string {
	lines := strings.Split(block, "\n")

	if isImageBlock(lines) {
		return models.ChunkTypeImage
	}
	if isTableBlock(lines) {
		return models.ChunkTypeTable
	}
	return models.ChunkTypeText
}

func isImageBlock(lines []string) bool {
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "![") || strings.HasPrefix(strings.ToLower(t), "[image") {
			return true
		}
	}
	return false
}

func isTableBlock(lines []string) bool {
	if len(lines) < 2 {
		return false
	}
	delimited := 0
	for _, line := range lines {
		if strings.Count(line, "|") >= 2 || strings.Count(line, "\t") >= 2 {
			delimited++
		}
	}
	return delimited*2 >= len(lines)+1 // majority of lines look like rows
}
