package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"medscribe/internal/ai"
	"medscribe/internal/api"
	"medscribe/internal/auth"
	"medscribe/internal/config"
	"medscribe/internal/db"
	"medscribe/internal/dictation"
	"medscribe/internal/logger"
	"medscribe/internal/model"
	"medscribe/internal/queue"
	"medscribe/internal/repository"
	"medscribe/internal/storage"
	"medscribe/internal/stt"
	"medscribe/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()
	if envErr != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	// Set Gin mode (default to release mode)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with error")
	}
	log.Info().Msg("Server stopped")
}

func run(cfg *config.Config) error {
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, conn, err := newRepository(ctx, cfg)
	if err != nil {
		return err
	}
	if conn != nil {
		defer conn.Close()
	}

	publicURL := cfg.Server.PublicURL
	if publicURL == "" {
		publicURL = "http://localhost:" + cfg.Server.Port
	}

	var (
		blobs      storage.BlobStore
		localBlobs *storage.LocalStore
	)
	switch cfg.Storage.Driver {
	case "s3":
		s3Store, err := storage.NewS3Store(cfg.Storage.S3, cfg.Ingest.MaxAudioBytes)
		if err != nil {
			return err
		}
		blobs = s3Store
		log.Info().Str("bucket", cfg.Storage.S3.Bucket).Msg("Using S3 blob storage")
	default:
		localBlobs, err = storage.NewLocalStore(cfg.Storage.LocalDir, publicURL, cfg.Storage.SigningKey, cfg.Ingest.MaxAudioBytes)
		if err != nil {
			return err
		}
		blobs = localBlobs
		log.Info().Str("dir", cfg.Storage.LocalDir).Msg("Using local blob storage")
	}

	provider, err := stt.NewProvider(cfg.STT, cfg.OpenAI)
	if err != nil {
		return err
	}
	log.Info().Str("provider", provider.Name()).Msg("STT provider ready")

	engine := ai.NewOpenAIEngine(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)

	pool := worker.NewWorkerPool(cfg.Workers.Count, cfg.Workers.QueueSize)
	pool.Start(context.Background())

	// The dispatcher calls back into the service it is injected into.
	var svc *dictation.Service
	transcribe := func(ctx context.Context, job model.TranscriptionJob) error {
		return svc.Transcribe(ctx, job)
	}

	var (
		dispatcher worker.Dispatcher
		consumer   *queue.Consumer
	)
	if cfg.Redis.URL != "" {
		redisClient, err := queue.NewRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		dispatcher = queue.NewRedisDispatcher(redisClient, cfg.Redis)
		consumer = queue.NewConsumer(redisClient, cfg.Redis, pool, transcribe)
		log.Info().Str("queue", cfg.Redis.TranscriptionQueue).Msg("Using Redis transcription queue")
	} else {
		dispatcher = worker.NewLocalDispatcher(pool, transcribe)
		log.Info().Msg("REDIS_URL not set, transcribing in process")
	}

	svc = dictation.NewService(dictation.Deps{
		Repo:       repo,
		Blobs:      blobs,
		STT:        provider,
		Engine:     engine,
		Authorizer: auth.NewOwnerAuthorizer(),
		Dispatcher: dispatcher,
	}, dictation.Config{
		MaxAudioBytes:        cfg.Ingest.MaxAudioBytes,
		SignedURLTTL:         cfg.Storage.SignedURLTTL,
		DownloadTimeout:      cfg.Transcription.DownloadTimeout,
		TranscriptionTimeout: cfg.Transcription.Timeout,
		PersistTimeout:       cfg.Transcription.PersistTimeout,
		ExtractionTimeout:    cfg.Extraction.Timeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(api.NewHandler(svc, localBlobs, cfg.Ingest.MaxAudioBytes)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("MedScribe backend running")
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if consumer != nil {
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil && !stderrors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)

		// In-flight transcriptions finish and persist their terminal state.
		done := make(chan struct{})
		go func() {
			pool.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			log.Warn().Int("pending", pool.Pending()).Msg("Shutdown timed out with transcriptions still running")
		}
		return err
	})

	return g.Wait()
}

// newRepository returns the PostgreSQL repository when DATABASE_URL is set,
// otherwise the in-memory one. The returned *sql.DB is nil for memory.
func newRepository(ctx context.Context, cfg *config.Config) (repository.DictationRepository, *sql.DB, error) {
	log := logger.Get()

	if cfg.Database.URL == "" {
		log.Info().Msg("DATABASE_URL not set, running with in-memory storage")
		return repository.NewMemoryRepository(), nil, nil
	}

	conn, err := db.NewConnection(cfg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, err
		}
	}

	log.Info().Msg("Database and repository initialized successfully")
	return repository.NewPostgresRepository(conn, cfg.Extraction.Timeout*2), conn, nil
}
