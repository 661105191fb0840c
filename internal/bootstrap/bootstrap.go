package bootstrap

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/avolkov/climate-rag/internal/config"
	"github.com/avolkov/climate-rag/internal/core/domain"
	"github.com/avolkov/climate-rag/internal/core/ports"
	"github.com/avolkov/climate-rag/internal/core/usecase"
	"github.com/avolkov/climate-rag/internal/infrastructure/chunking"
	"github.com/avolkov/climate-rag/internal/infrastructure/llm/redpill"
	natsqueue "github.com/avolkov/climate-rag/internal/infrastructure/queue/nats"
	"github.com/avolkov/climate-rag/internal/infrastructure/repository/postgres"
	"github.com/avolkov/climate-rag/internal/infrastructure/resilience"
	"github.com/avolkov/climate-rag/internal/infrastructure/storage/localfs"
	"github.com/avolkov/climate-rag/internal/infrastructure/vector/chroma"
	"github.com/avolkov/climate-rag/internal/infrastructure/websearch/google"
)

// App holds the fully wired application graph.
type App struct {
	Config config.Config

	Queue    ports.IngestQueue
	ChatUC   ports.ChatService
	ChatsUC  ports.ChatDirectory
	IngestUC ports.CorpusIngestor

	closeFn func()
}

// New wires the whole graph once. Observer may be nil; the worker passes nil
// because it records its own ingestion metrics.
func New(ctx context.Context, cfg config.Config, observer usecase.TurnObserver) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewConversationRepository(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultPolicy())

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	llmClient := redpill.New(redpill.Options{
		BaseURL:            cfg.RedPillURL,
		APIKey:             cfg.RedPillAPIKey,
		ChatModel:          cfg.RedPillChatModel,
		EmbedModel:         cfg.RedPillEmbedModel,
		ResilienceExecutor: executor,
	})
	generator := redpill.NewGenerator(llmClient)
	embedder := redpill.NewEmbedder(llmClient)

	abstractStore := chroma.New(cfg.ChromaURL, cfg.ChromaAbstractCollection)
	contentStore := chroma.New(cfg.ChromaURL, cfg.ChromaContentCollection)

	var webSearcher ports.WebSearcher
	if cfg.WebSearchEnabled {
		webSearcher = google.New(google.Options{
			APIKey:        cfg.GoogleAPIKey,
			EngineID:      cfg.GoogleCSEID,
			DeniedDomains: cfg.DeniedDomains(),
		})
	}

	router := usecase.NewRouter(generator)
	expander := usecase.NewMultiQueryGenerator(generator)
	dispatcher := usecase.NewDispatcher(
		usecase.NewVectorRetriever(embedder, abstractStore),
		usecase.NewVectorRetriever(embedder, contentStore),
		expander,
		generator,
		webSearcher,
		observer,
		usecase.DispatcherConfig{
			TopK:             cfg.RetrievalTopK,
			FusionK:          cfg.FusionRRFK,
			WebSearchEnabled: cfg.WebSearchEnabled,
		},
	)

	chatUC := usecase.NewChatUseCase(store, router, dispatcher, cfg.MemoryLimit)
	chatsUC := usecase.NewDirectoryUseCase(store)
	ingestUC := usecase.NewCorpusIngestUseCase(
		storage,
		queue,
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		abstractStore,
		contentStore,
	)

	return &App{
		Config: cfg,

		Queue:    queue,
		ChatUC:   chatUC,
		ChatsUC:  chatsUC,
		IngestUC: ingestUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Holder publishes the app to HTTP handlers once initialization finishes.
// Until then every reader gets an ErrNotReady-kind error, and if
// initialization fails every reader gets the same failure.
type Holder struct {
	app     atomic.Pointer[App]
	initErr atomic.Pointer[initFailure]
}

type initFailure struct {
	err error
}

func NewHolder() *Holder {
	return &Holder{}
}

// Initialize builds the app and publishes it. Safe to run in a goroutine
// while the HTTP server is already accepting requests.
func (h *Holder) Initialize(ctx context.Context, cfg config.Config, observer usecase.TurnObserver) error {
	app, err := New(ctx, cfg, observer)
	if err != nil {
		h.initErr.Store(&initFailure{err: err})
		return err
	}
	h.app.Store(app)
	return nil
}

// Ready returns the app once initialization has completed.
func (h *Holder) Ready() (*App, error) {
	if app := h.app.Load(); app != nil {
		return app, nil
	}
	if failure := h.initErr.Load(); failure != nil {
		return nil, domain.WrapError(domain.ErrNotReady, "bootstrap", failure.err)
	}
	return nil, domain.WrapError(domain.ErrNotReady, "bootstrap", errInitializing)
}

var errInitializing = fmt.Errorf("initialization in progress")

// Close tears down the app if it was ever published.
func (h *Holder) Close() {
	if app := h.app.Load(); app != nil {
		app.Close()
	}
}
