package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-order-agent/internal/config"
	"github.com/tbourn/go-order-agent/internal/domain"
	httpapi "github.com/tbourn/go-order-agent/internal/http"
	"github.com/tbourn/go-order-agent/internal/http/handlers"
	"github.com/tbourn/go-order-agent/internal/llm"
	"github.com/tbourn/go-order-agent/internal/observability"
	"github.com/tbourn/go-order-agent/internal/outbound"
	"github.com/tbourn/go-order-agent/internal/queue"
	"github.com/tbourn/go-order-agent/internal/repo"
	"github.com/tbourn/go-order-agent/internal/search"
	"github.com/tbourn/go-order-agent/internal/services"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	var seed string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook, admin API and workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, seed)
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "YAML tenants file; loaded into the in-memory directory in demo mode, upserted otherwise")
	return cmd
}

// stores groups the persistence selected by configuration.
type stores struct {
	db      *gorm.DB // nil in demo mode
	tenants services.TenantDirectory
	convs   services.ConversationStore
	ledger  services.OrderLedger
	dedup   services.Deduper
	closers []func() error
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(repo.Options{
		Driver:  cfg.DB.Driver,
		Path:    cfg.DB.Path,
		DSN:     cfg.DB.URL,
		Tracing: cfg.OTEL.Enabled,
		Silent:  cfg.LogLevel != "debug" && cfg.LogLevel != "trace",
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DB.Driver, err)
	}
	return db, nil
}

func buildStores(ctx context.Context, cfg config.Config, seed []domain.Tenant) (*stores, error) {
	s := &stores{}
	if cfg.DemoMode {
		s.tenants = repo.NewMemoryTenantDirectory(seed...)
		s.convs = repo.NewMemoryConversationStore(cfg.HistoryLimit, cfg.HistoryMaxAge)
		s.ledger = repo.NewMemoryOrderLedger()
		log.Warn().Int("tenants", len(seed)).Msg("demo mode: conversations and orders are kept in memory")
	} else {
		db, err := openDB(cfg)
		if err != nil {
			return nil, err
		}
		if err := repo.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if err := seedTenants(ctx, db, seed); err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			s.closers = append(s.closers, sqlDB.Close)
		}
		s.db = db
		s.tenants = repo.NewTenantDirectory(db)
		s.convs = repo.NewConversationStore(db, cfg.HistoryLimit, cfg.HistoryMaxAge)
		s.ledger = repo.NewOrderLedger(db)
	}

	if !cfg.Dedup.Enabled {
		return s, nil
	}
	switch {
	case cfg.Dedup.Backend == "redis":
		rd, err := repo.NewRedisDeduper(ctx, cfg.Dedup.RedisAddr, cfg.Dedup.RedisPassword, cfg.Dedup.RedisDB, cfg.Dedup.TTL)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("redis dedup: %w", err)
		}
		s.dedup = rd
		s.closers = append(s.closers, rd.Close)
	case s.db != nil:
		s.dedup = &repo.SQLDeduper{DB: s.db, TTL: cfg.Dedup.TTL}
	default:
		s.dedup = repo.NewMemoryDeduper(cfg.Dedup.TTL)
	}
	return s, nil
}

func newGenerator(cfg config.Config, catalog llm.Retriever) services.Generator {
	client, err := llm.NewClient(llm.Provider(cfg.LLM.Provider), cfg.LLMAPIKey())
	if err != nil {
		log.Warn().Err(err).Str("provider", cfg.LLM.Provider).Msg("llm disabled; every reply will be the fallback")
		return nil
	}
	return llm.NewResponder(client, cfg.LLM.Model, cfg.LLM.FastModel, catalog)
}

func newDispatcher(cfg config.Config) *outbound.Dispatcher {
	policy := outbound.RetryPolicy{
		MaxRetries: cfg.Send.MaxRetries,
		BaseDelay:  cfg.Send.BaseDelay,
		MaxDelay:   cfg.Send.MaxDelay,
	}
	return outbound.NewDispatcher(
		outbound.NewGraphSender(cfg.WhatsApp.APIBaseURL, cfg.WhatsApp.APIVersion, cfg.Send.Timeout, policy),
		outbound.NewGatewaySender(cfg.Gateway.BaseURL, cfg.Send.Timeout, policy),
		outbound.Defaults{
			Provider:        domain.Provider(cfg.Provider),
			PhoneNumberID:   cfg.WhatsApp.PhoneNumberID,
			AccessToken:     cfg.WhatsApp.AccessToken,
			GatewayAPIKey:   cfg.Gateway.APIKey,
			GatewaySenderID: cfg.Gateway.SenderID,
		},
	)
}

func newQueue(ctx context.Context, cfg config.Config, h queue.Handler) (queue.Queue, error) {
	if cfg.Queue.Backend == "nats" {
		return queue.NewJetStream(ctx, cfg.Queue.NATSURL, cfg.Queue.NATSStream, h)
	}
	return queue.NewPool(cfg.Queue.Workers, cfg.Queue.Size, h), nil
}

func serve(ctx context.Context, cfg config.Config, seedPath string) error {
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	var seed []domain.Tenant
	if seedPath != "" {
		if seed, err = readSeedFile(seedPath); err != nil {
			return err
		}
	}
	st, err := buildStores(ctx, cfg, seed)
	if err != nil {
		return err
	}
	defer st.close()

	catalog := search.NewCatalogSearcher(st.tenants)
	orch := services.NewOrchestrator(st.convs, newGenerator(cfg, catalog), catalog)
	orch.Timeout = cfg.LLM.GenerationTimeout
	orch.SearchTimeout = cfg.LLM.SearchTimeout

	locks := services.NewKeyedMutex()
	proc := &services.Processor{
		Tenants:      st.tenants,
		Store:        st.convs,
		Orders:       services.NewOrderFlow(st.convs, st.ledger),
		Orchestrator: orch,
		Dispatcher:   newDispatcher(cfg),
		Dedup:        st.dedup,
		Locks:        locks,
		Now:          time.Now,
	}

	q, err := newQueue(ctx, cfg, proc.Process)
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}

	h := handlers.New(
		&services.Ingestor{Tenants: st.tenants, Queue: q, AppSecret: cfg.WhatsApp.AppSecret, Now: time.Now},
		&services.AdminService{Tenants: st.tenants, Store: st.convs, Ledger: st.ledger, Orchestrator: orch, Locks: locks},
		handlers.WebhookConfig{VerifyToken: cfg.WhatsApp.VerifyToken, Tokens: st.tenants},
	)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, h)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	if st.db != nil && st.dedup != nil && cfg.Dedup.Backend == "sql" && cfg.ReceiptPurgeEvery > 0 {
		go purgeReceipts(ctx, st.db, cfg.ReceiptPurgeEvery)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("queue", cfg.Queue.Backend).
			Bool("demo", cfg.DemoMode).
			Bool("admin_api", cfg.AdminJWTSecret != "").
			Msg("orderbot listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			_ = q.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	// The server no longer accepts callbacks; let queued messages finish.
	if err := q.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("queue shutdown")
	}
	log.Info().Msg("stopped")
	return nil
}

// purgeReceipts deletes expired dedup receipts every interval until ctx ends.
func purgeReceipts(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredReceipts(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge dedup receipts")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("dedup receipts purged")
			}
		}
	}
}
