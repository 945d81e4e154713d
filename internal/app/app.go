package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ragstack/corpora/internal/config"
	"github.com/ragstack/corpora/internal/core"
	db "github.com/ragstack/corpora/internal/core/database"
	"github.com/ragstack/corpora/internal/core/ingestion_engine"
	"github.com/ragstack/corpora/internal/core/keyword"
	"github.com/ragstack/corpora/internal/core/llm"
	objectclient "github.com/ragstack/corpora/internal/core/object-client"
	"github.com/ragstack/corpora/internal/services"
)

// App owns every long-lived component: clients, the ingestion worker pool and
// the HTTP server.
type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	KeywordIndex core.KeywordIndex
	Ingestor     ingestion_engine.Ingestor
	Server       *Server

	log *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.Info("database initialized and ready")

	objClient, err := objectclient.NewS3Client(appCtx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}
	log.Info("object client initialized and ready")

	kwIndex, err := keyword.NewBleveIndex(cfg.IndexDir)
	if err != nil {
		return nil, fmt.Errorf("keyword index: %w", err)
	}
	log.Info("keyword index opened", zap.String("path", cfg.IndexDir))

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	extractor := ingestion_engine.NewDocconvExtractor(false)

	ingCfg := &ingestion_engine.IngestConfig{
		TargetTokens:     500,
		OverlapTokens:    50,
		BatchSize:        16,
		PageCharEstimate: 2000,
		EnableEnrichment: true,
		Bucket:           cfg.BucketName,
	}
	ingestor := ingestion_engine.NewDocumentIngestor(
		dbClient, objClient, embedder, llmProvider, extractor, kwIndex, ingCfg, log)
	ingestor.Start(ctx, cfg.IngestWorkers)

	userSvc := services.NewUserService(dbClient)
	docSvc := services.NewDocumentService(dbClient, objClient, kwIndex, ingestor, cfg.BucketName)
	projectSvc := services.NewProjectService(dbClient, docSvc)
	settingsSvc := services.NewSettingsService(dbClient)
	searchSvc := services.NewSearchService(dbClient, kwIndex, embedder, llmProvider, settingsSvc)

	server := NewServer(cfg, log, userSvc, projectSvc, docSvc, settingsSvc, searchSvc)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		KeywordIndex: kwIndex,
		Ingestor:     ingestor,
		Server:       server,
		log:          log,
	}, nil
}

func (a *App) Close() {
	if a.KeywordIndex != nil {
		if err := a.KeywordIndex.Close(); err != nil {
			a.log.Warn("closing keyword index", zap.Error(err))
		}
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
