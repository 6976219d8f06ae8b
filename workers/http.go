package workers

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trtlbridge/config"
	"trtlbridge/workers/handlers"
)

func NewRouter(h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Options("/*", CORSHeaders)

	r.Get("/state", h.State)
	r.Get("/health", h.HealthCheck)
	r.Get("/timestamp", h.Timestamp)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/bridge/tx", h.BridgeTx)
	r.Get("/bridge/cron", h.BridgeCron)
	r.Get("/bridge/records/{id}", h.GetRecord)
	r.Post("/bridge/records/{id}/retry", h.RetryRecord)
	r.Get("/bridge/failed", h.GetFailedRecords)

	r.Get("/wallets", h.ListWallets)
	r.Post("/wallets", h.SaveWallet)
	r.Delete("/wallets", h.DeleteWallet)

	r.Get("/transaction/{id}", h.GetTransaction)
	r.Get("/app-balance/solana", h.BalanceSOL)

	r.Get("/prices/{asset}", h.GetPrice)
	r.Get("/lp/tvl", h.GetPoolTVL)
	r.Get("/lp/required", h.GetRequiredLP)

	return r
}

// Worker_HTTP serves handler until ctx is done, then shuts the server down gracefully.
func Worker_HTTP(ctx context.Context, cfg config.Configuration, handler http.Handler, logger *zap.Logger) error {
	logger = logger.With(zap.String("component", "http"))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Server.UseSSL {
		cert, err := tls.LoadX509KeyPair(cfg.Server.CertFile, cfg.Server.KeyFile)
		if err != nil {
			return fmt.Errorf("cannot load TLS key pair: %w", err)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.Server.UseSSL {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("HTTP service started", zap.String("addr", cfg.Server.Addr), zap.Bool("ssl", cfg.Server.UseSSL))

	select {
	case err := <-errCh:
		return fmt.Errorf("error listening to %s: %w", cfg.Server.Addr, err)
	case <-ctx.Done():
	}
	logger.Info("HTTP service stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP service shutdown error: %w", err)
	}
	logger.Info("HTTP service shutdown normal")
	return nil
}

func CORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, Origin, X-Requested-With")
}
