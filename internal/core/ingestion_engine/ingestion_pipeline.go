package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ragstack/corpora/internal/core"
	"github.com/ragstack/corpora/internal/models"
	"github.com/ragstack/corpora/internal/pipeline"
)

// NewDocumentIngestor constructs the ingestor with a bounded job queue (64).
func NewDocumentIngestor(
	db core.DbClient,
	obj core.ObjectClient,
	emb core.EmbeddingProvider,
	llm core.LLMProvider,
	extractor core.DocumentExtractor,
	kw core.KeywordIndex,
	cfg *IngestConfig,
	log *zap.Logger,
) *DocumentIngestor {
	return &DocumentIngestor{
		db: db, obj: obj, embedder: emb, llm: llm, extractor: extractor, kw: kw,
		cfg: cfg, log: log,
		jobs: make(chan string, 64),
	}
}

// Start runs numWorkers goroutines reading from the jobs channel. Each worker
// drives one document at a time through the full stage sequence.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					i.log.Info("ingest worker shutting down", zap.Int("worker", w))
					return
				case docID := <-i.jobs:
					i.log.Info("processing document", zap.String("document_id", docID), zap.Int("worker", w))
					if err := i.ProcessOne(ctx, docID); err != nil {
						i.log.Error("document processing failed",
							zap.String("document_id", docID), zap.Error(err))
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a document ID for ingestion.
// If the queue is full, this call will block until space frees up.
func (i *DocumentIngestor) Enqueue(docID string) {
	i.jobs <- docID
}

// ProcessOne drives a queued document through analysis, partitioning,
// enrichment, chunking, embedding, storage and indexing, recording every
// stage transition as it goes. Any stage error terminates the run as failed;
// later stages are never visited.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, docID string) error {
	// Fresh context with a long timeout so an API-level cancellation does not
	// strand a half-processed document.
	proctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	doc, err := i.db.GetDocumentByID(proctx, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", docID)
	}

	run := pipeline.NewRun()
	// Uploading and queued happened before the job reached this worker;
	// fast-forward the in-memory run to match the persisted reality.
	_ = run.Begin(pipeline.StageUploading)
	_ = run.Complete(pipeline.StageUploading)
	_ = run.Begin(pipeline.StageQueued)

	rec := &stageRecorder{db: i.db, run: run, docID: docID, log: i.log}
	if err := rec.complete(proctx, pipeline.StageQueued); err != nil {
		return err
	}

	start := time.Now()
	var (
		extracted *core.ExtractResult
		parts     []partition
		allChunks []models.DocumentChunk
		metrics   models.RunMetrics
	)

	step := func(stage pipeline.Stage, fn func() error) error {
		if err := rec.begin(proctx, stage); err != nil {
			return err
		}
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", stage, err)
		}
		return rec.complete(proctx, stage)
	}

	runErr := func() error {
		// analysis: fetch the stored object and inspect it.
		if err := step(pipeline.StageAnalysis, func() error {
			data, err := i.obj.GetFile(proctx, i.cfg.Bucket, doc.StorageKey)
			if err != nil {
				return fmt.Errorf("get object: %w", err)
			}
			extracted, err = i.extractor.Extract(proctx, data, doc.ContentType)
			return err
		}); err != nil {
			return err
		}

		// partitioning: split into typed, page-attributed regions.
		if err := step(pipeline.StagePartitioning, func() error {
			parts = partitionText(extracted.Text, i.cfg.PageCharEstimate)
			if len(parts) == 0 {
				return fmt.Errorf("no content partitions extracted")
			}
			for _, p := range parts {
				if p.Page > metrics.PagesProcessed {
					metrics.PagesProcessed = p.Page
				}
				switch p.Kind {
				case models.ChunkTypeImage:
					metrics.ImagesFound++
				case models.ChunkTypeTable:
					metrics.TablesExtracted++
				}
			}
			metrics.ProcessingMs = time.Since(start).Milliseconds()
			return i.db.UpdateDocumentMetrics(proctx, docID, metrics)
		}); err != nil {
			return err
		}

		// enrichment: AI descriptions for image/table regions.
		if err := step(pipeline.StageEnrichment, func() error {
			return i.enrichPartitions(proctx, rec, parts)
		}); err != nil {
			return err
		}

		// chunking: token-bounded chunks from text regions, one chunk per
		// enriched image/table region.
		if err := step(pipeline.StageChunking, func() error {
			allChunks, err = i.buildChunks(proctx, docID, parts)
			if err != nil {
				return err
			}
			metrics.ChunksCreated = len(allChunks)
			metrics.ProcessingMs = time.Since(start).Milliseconds()
			return i.db.UpdateDocumentMetrics(proctx, docID, metrics)
		}); err != nil {
			return err
		}

		// embedding: batched vector generation.
		if err := step(pipeline.StageEmbedding, func() error {
			return i.embedChunks(proctx, rec, allChunks)
		}); err != nil {
			return err
		}

		// storage: persist chunk rows with their vectors.
		if err := step(pipeline.StageStorage, func() error {
			return i.db.InsertDocumentChunks(proctx, allChunks)
		}); err != nil {
			return err
		}

		// indexing: feed the keyword index.
		return step(pipeline.StageIndexing, func() error {
			return i.kw.IndexChunks(proctx, doc.ProjectID, allChunks)
		})
	}()

	metrics.ProcessingMs = time.Since(start).Milliseconds()
	_ = i.db.UpdateDocumentMetrics(proctx, docID, metrics)

	if runErr != nil {
		rec.fail(proctx, runErr)
		return runErr
	}
	return nil
}

// enrichPartitions replaces image/table partition content with an LLM
// description. Without an LLM (or with enrichment disabled) the raw extracted
// content is kept as the description.
func (i *DocumentIngestor) enrichPartitions(ctx context.Context, rec *stageRecorder, parts []partition) error {
	var targets []int
	for idx, p := range parts {
		if p.Kind != models.ChunkTypeText {
			targets = append(targets, idx)
		}
	}
	if len(targets) == 0 || !i.cfg.EnableEnrichment || i.llm == nil {
		return nil
	}

	const system = "You describe figures and tables from documents in one concise paragraph, " +
		"so the description can stand in for the original during retrieval."

	for n, idx := range targets {
		p := &parts[idx]
		prompt := fmt.Sprintf("Describe this %s extracted from page %d:\n\n%s", p.Kind, p.Page, p.Text)
		desc, err := i.llm.Generate(ctx, system, prompt)
		if err != nil {
			return fmt.Errorf("describe %s on page %d: %w", p.Kind, p.Page, err)
		}
		if desc != "" {
			p.Text = desc
		}
		rec.progress(ctx, (n+1)*100/len(targets))
	}
	return nil
}

// buildChunks runs text partitions through the streaming chunker and appends
// one chunk per image/table partition. Positions are assigned sequentially.
func (i *DocumentIngestor) buildChunks(ctx context.Context, docID string, parts []partition) ([]models.DocumentChunk, error) {
	g, gctx := errgroup.WithContext(ctx)

	frags := make(chan fragment, 32)
	g.Go(func() error {
		defer close(frags)
		for _, p := range parts {
			if p.Kind != models.ChunkTypeText {
				continue
			}
			select {
			case frags <- fragment{Page: p.Page, Text: p.Text}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	chunkCh := i.streamChunk(gctx, g, frags, i.cfg.TargetTokens, i.cfg.OverlapTokens)

	var out []models.DocumentChunk
	g.Go(func() error {
		for c := range chunkCh {
			out = append(out, models.DocumentChunk{
				ID:         uuid.NewString(),
				DocumentID: docID,
				Type:       models.ChunkTypeText,
				Content:    c.Text,
				Page:       c.Page,
				CharCount:  len([]rune(c.Text)),
				TokenCount: c.TokenCnt,
			})
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range parts {
		if p.Kind == models.ChunkTypeText {
			continue
		}
		out = append(out, models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			Type:       p.Kind,
			Content:    p.Text,
			Page:       p.Page,
		})
	}

	for pos := range out {
		out[pos].Position = pos
	}
	return out, nil
}

// embedChunks generates vectors in batches, reporting in-stage progress.
func (i *DocumentIngestor) embedChunks(ctx context.Context, rec *stageRecorder, chunks []models.DocumentChunk) error {
	batchSize := i.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}

	for lo := 0; lo < len(chunks); lo += batchSize {
		hi := min(lo+batchSize, len(chunks))

		texts := make([]string, hi-lo)
		for j := lo; j < hi; j++ {
			texts[j-lo] = chunks[j].Content
		}

		vecs, err := i.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(texts))
		}
		for j := lo; j < hi; j++ {
			chunks[j].Embedding = vecs[j-lo]
		}

		rec.progress(ctx, hi*100/len(chunks))
	}
	return nil
}
