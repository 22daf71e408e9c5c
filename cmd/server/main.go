package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mosaicfund/mosaic-engine/internal/config"
	"github.com/mosaicfund/mosaic-engine/internal/events"
	"github.com/mosaicfund/mosaic-engine/internal/group"
	"github.com/mosaicfund/mosaic-engine/internal/market"
	"github.com/mosaicfund/mosaic-engine/internal/metrics"
	"github.com/mosaicfund/mosaic-engine/internal/mosaic"
	"github.com/mosaicfund/mosaic-engine/internal/reserve"
	"github.com/mosaicfund/mosaic-engine/internal/store"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "path", *configPath, "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Database.DSN != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
		if err != nil {
			slog.Error("invalid database dsn", "err", err)
			os.Exit(1)
		}
		poolCfg.MaxConns = int32(cfg.Database.PoolMaxConns)
		pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if cfg.Database.RunMigrations {
			if err := pg.Migrate(context.Background()); err != nil {
				slog.Error("migration failed", "err", err)
				os.Exit(1)
			}
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		if cfg.Redis.Enabled {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled", "addr", cfg.Redis.Addr)
		}
	} else {
		slog.Warn("database dsn not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- External asset market ---
	// In-process market for development and demos; a production deployment
	// swaps in an adapter for the real marketplace.
	mkt := market.NewMemoryMarket()

	// --- WebSocket hub and event recorder ---
	hub := events.NewHub()
	recorder := events.NewRecorder(st, hub, nil)

	// --- Domain services ---
	policy := reserve.MultiplierPolicy(cfg.Reserve.MaxMultiplier)
	registry := mosaic.NewRegistry(st, mkt, recorder, policy, nil)
	groupSvc := group.NewService(st, mkt, registry, recorder, nil)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"mosaic-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time engine events.
		r.Get("/ws", hub.HandleWS)

		// Group fundraising.
		r.Get("/groups", groupSvc.HandleList)
		r.Post("/groups", groupSvc.HandleCreate)
		r.Get("/groups/{groupID}", groupSvc.HandleGet)
		r.Get("/groups/{groupID}/lifecycle", groupSvc.HandleLifecycle)
		r.Get("/groups/{groupID}/tickets/{holder}", groupSvc.HandleTicketBalance)
		r.Post("/groups/{groupID}/contribute", groupSvc.HandleContribute)
		r.Post("/groups/{groupID}/buy", groupSvc.HandleBuy)
		r.Post("/groups/{groupID}/claim", groupSvc.HandleClaim)
		r.Post("/groups/{groupID}/refund", groupSvc.HandleRefundExpired)

		// Originals and monos.
		r.Get("/originals/latest", registry.HandleLatestOriginal)
		r.Get("/originals/{originalID}", registry.HandleGetOriginal)
		r.Get("/originals/{originalID}/reserve-proposals", registry.HandleProposalStats)
		r.Post("/originals/{originalID}/reserve-proposals", registry.HandleProposeReserve)
		r.Post("/originals/{originalID}/bids", registry.HandlePlaceBid)
		r.Post("/originals/{originalID}/responses", registry.HandleRespond)
		r.Get("/originals/{originalID}/acceptable", registry.HandleAcceptable)
		r.Post("/originals/{originalID}/redeem", registry.HandleRedeem)
		r.Get("/originals/{originalID}/distribution", registry.HandleDistribution)
		r.Get("/monos/{mosaicID}", registry.HandleGetMono)
		r.Post("/monos/{mosaicID}/preset", registry.HandleSetPreset)

		// Bids.
		r.Get("/bids/{bidID}", registry.HandleGetBid)
		r.Post("/bids/{bidID}/finalize", registry.HandleFinalizeBid)
		r.Post("/bids/{bidID}/settle", registry.HandleSettleBid)
		r.Post("/bids/{bidID}/refund", registry.HandleRefundBid)

		// Ledger and event log.
		r.Get("/ledger/{account}", handleLedger(st))
		r.Get("/events", handleEvents(st))

		// Development market administration: seed assets and offers for the
		// in-process market.
		r.Post("/market/assets", handleAssignAsset(mkt))
		r.Post("/market/offers", handleOfferAsset(mkt))
		r.Get("/market/assets/{assetID}/owner", handleAssetOwner(mkt))
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run()
		return nil
	})

	g.Go(func() error {
		slog.Info("mosaic-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down mosaic-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	fmt.Println("mosaic-engine stopped")
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// corsMiddleware allows cross-origin requests from the configured frontends.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowed[origin] || allowed["*"] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleLedger(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := chi.URLParam(r, "account")
		entries, err := st.LedgerEntriesByAccount(r.Context(), account)
		if err != nil {
			httpError(w, "failed to read ledger", http.StatusInternalServerError)
			return
		}
		httpJSON(w, http.StatusOK, entries)
	}
}

func handleEvents(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		evs, err := st.ListEvents(r.Context(), limit)
		if err != nil {
			httpError(w, "failed to read events", http.StatusInternalServerError)
			return
		}
		httpJSON(w, http.StatusOK, evs)
	}
}

func handleAssignAsset(mkt *market.MemoryMarket) http.HandlerFunc {
	type request struct {
		AssetID int64  `json:"asset_id"`
		Owner   string `json:"owner"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AssetID <= 0 || req.Owner == "" {
			httpError(w, "asset_id and owner are required", http.StatusBadRequest)
			return
		}
		mkt.Assign(req.AssetID, req.Owner)
		httpJSON(w, http.StatusCreated, req)
	}
}

func handleOfferAsset(mkt *market.MemoryMarket) http.HandlerFunc {
	type request struct {
		AssetID int64           `json:"asset_id"`
		Seller  string          `json:"seller"`
		Price   decimal.Decimal `json:"price"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AssetID <= 0 || req.Seller == "" {
			httpError(w, "asset_id and seller are required", http.StatusBadRequest)
			return
		}
		if err := mkt.OfferForSale(req.AssetID, req.Seller, req.Price); err != nil {
			httpError(w, err.Error(), http.StatusConflict)
			return
		}
		httpJSON(w, http.StatusCreated, req)
	}
}

func handleAssetOwner(mkt *market.MemoryMarket) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assetID, err := strconv.ParseInt(chi.URLParam(r, "assetID"), 10, 64)
		if err != nil || assetID <= 0 {
			httpError(w, "invalid assetID", http.StatusBadRequest)
			return
		}
		owner, err := mkt.OwnerOf(r.Context(), assetID)
		if err != nil {
			httpError(w, err.Error(), http.StatusNotFound)
			return
		}
		httpJSON(w, http.StatusOK, map[string]string{"owner": owner})
	}
}

func httpJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, message string, status int) {
	httpJSON(w, status, map[string]string{"error": message})
}
