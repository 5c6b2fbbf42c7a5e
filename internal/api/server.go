package api

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/kazazor/DefiLlama-Adapters/internal/chains"
	"github.com/kazazor/DefiLlama-Adapters/internal/tvl"
)

const defaultMaxConcurrent = 4

// Service computes TVL on demand.
type Service interface {
	TVL(ctx context.Context, chain string, block *big.Int) (tvl.Balances, error)
	CombinedTVL() tvl.TVLFunc
	Chains() []string
}

type APIServer struct {
	mux     *http.ServeMux
	service Service
	store   *tvl.SnapshotStore
	heads   map[string]HeadSource
	sem     *semaphore.Weighted
	logger  zerolog.Logger
}

type Options struct {
	// Store serves /tvl/latest; nil disables the route.
	Store *tvl.SnapshotStore
	// Heads are probed by /health.
	Heads map[string]HeadSource
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	// MaxConcurrent caps concurrent on-demand computations.
	MaxConcurrent int
}

func NewAPIServer(service Service, opts Options, logger zerolog.Logger) *APIServer {
	limit := opts.MaxConcurrent
	if limit <= 0 {
		limit = defaultMaxConcurrent
	}

	s := &APIServer{
		mux:     http.NewServeMux(),
		service: service,
		store:   opts.Store,
		heads:   opts.Heads,
		sem:     semaphore.NewWeighted(int64(limit)),
		logger:  logger.With().Str("component", "api").Logger(),
	}
	s.registerRoutes(opts.Metrics)
	return s
}

func (s *APIServer) Handler() http.Handler {
	return s.logMiddleware(s.mux)
}

func (s *APIServer) Start(ctx context.Context, addr string) error {
	s.logger.Info().Str("addr", addr).Msg("Starting API server")
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info().Msg("Shutting down API server...")
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) registerRoutes(metrics http.Handler) {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/live", handleLive)
	s.mux.HandleFunc("/methodology", s.handleMethodology)

	s.mux.HandleFunc("/tvl", s.handleTVL)
	s.mux.HandleFunc("/tvl/all", s.handleCombinedTVL)
	if s.store != nil {
		s.mux.HandleFunc("/tvl/latest", s.handleLatest)
	}

	if metrics != nil {
		s.mux.Handle("/metrics", metrics)
	}
}

func (s *APIServer) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("latency", time.Since(start)).
			Msg("http")
	})
}

type tvlResponse struct {
	Chain    string       `json:"chain,omitempty"`
	Block    *uint64      `json:"block"`
	Balances tvl.Balances `json:"balances"`
}

func (s *APIServer) handleMethodology(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"methodology":          tvl.Methodology,
		"misrepresentedTokens": tvl.MisrepresentedTokens,
		"chains":               s.service.Chains(),
	})
}

// handleTVL serves /tvl?chain=<name>[&block=<height>].
func (s *APIServer) handleTVL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chain := q.Get("chain")
	if chain == "" {
		Error(w, http.StatusBadRequest, "chain is required")
		return
	}

	var block *big.Int
	var height *uint64
	if v := q.Get("block"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid block number")
			return
		}
		block = new(big.Int).SetUint64(n)
		height = &n
	}

	if !s.acquire(w, r) {
		return
	}
	defer s.sem.Release(1)

	balances, err := s.service.TVL(r.Context(), chain, block)
	if err != nil {
		s.fail(w, err)
		return
	}
	JSON(w, http.StatusOK, tvlResponse{Chain: strings.ToLower(chain), Block: height, Balances: balances})
}

// handleCombinedTVL serves /tvl/all with optional block.<chain>=<height>
// parameters and an optional unix timestamp.
func (s *APIServer) handleCombinedTVL(w http.ResponseWriter, r *http.Request) {
	known := make(map[string]bool)
	for _, name := range s.service.Chains() {
		known[name] = true
	}

	chainBlocks := make(map[string]uint64)
	timestamp := time.Now().UTC()
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		switch {
		case key == "timestamp":
			sec, err := strconv.ParseInt(values[0], 10, 64)
			if err != nil {
				Error(w, http.StatusBadRequest, "invalid timestamp")
				return
			}
			timestamp = time.Unix(sec, 0).UTC()
		case strings.HasPrefix(key, "block."):
			chain := strings.ToLower(strings.TrimPrefix(key, "block."))
			if !known[chain] {
				Error(w, http.StatusBadRequest, "unknown chain "+chain)
				return
			}
			n, err := strconv.ParseUint(values[0], 10, 64)
			if err != nil {
				Error(w, http.StatusBadRequest, "invalid block number for "+chain)
				return
			}
			chainBlocks[chain] = n
		}
	}

	if !s.acquire(w, r) {
		return
	}
	defer s.sem.Release(1)

	balances, err := s.service.CombinedTVL()(r.Context(), timestamp, 0, chainBlocks)
	if err != nil {
		s.fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"timestamp": timestamp.Unix(),
		"blocks":    chainBlocks,
		"balances":  balances,
	})
}

// handleLatest serves the scheduler's most recent snapshots.
func (s *APIServer) handleLatest(w http.ResponseWriter, r *http.Request) {
	chain := strings.ToLower(r.URL.Query().Get("chain"))
	if chain == "" {
		JSON(w, http.StatusOK, s.store.All())
		return
	}

	snap, ok := s.store.Latest(chain)
	if !ok {
		Error(w, http.StatusNotFound, "no snapshot for chain "+chain)
		return
	}
	JSON(w, http.StatusOK, snap)
}

func (s *APIServer) acquire(w http.ResponseWriter, r *http.Request) bool {
	if err := s.sem.Acquire(r.Context(), 1); err != nil {
		Error(w, http.StatusServiceUnavailable, "request cancelled while waiting")
		return false
	}
	return true
}

func (s *APIServer) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chains.ErrUnknownChain), errors.Is(err, tvl.ErrNoBackend):
		Error(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error().Err(err).Msg("TVL computation failed")
		Error(w, http.StatusBadGateway, err.Error())
	}
}
