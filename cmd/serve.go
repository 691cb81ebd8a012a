package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/groundgame-labs/outreach-engine/internal/events"
	"github.com/groundgame-labs/outreach-engine/internal/model"
	"github.com/groundgame-labs/outreach-engine/internal/monitoring"
)

var servePort int

// ingestStore is the slice of the store the HTTP surface needs.
type ingestStore interface {
	IngestContacts(ctx context.Context, records []model.ContactRecord) (int, error)
	Ping(ctx context.Context) error
}

// outcomeRecorder settles dispatched decisions at their actual cost.
type outcomeRecorder interface {
	RecordOutcome(ctx context.Context, decisionID string, actual float64, succeeded bool) error
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingest and admin HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Expired reservations are swept in the background for the life of
		// the server.
		go env.Ledger.Run(ctx, time.Duration(cfg.Ledger.SweepIntervalSecs)*time.Second)

		mux := buildMux(env.Store, env.Engine, env.Ledger.Healthy, env.Metrics, env.Events)
		return startServer(ctx, mux, resolvePort(servePort, cfg.Server.Port))
	},
}

// buildMux wires the ingest, dispatch-ack, health, and metrics routes.
func buildMux(st ingestStore, rec outcomeRecorder, ledgerHealthy func() bool, metrics *monitoring.Metrics, pub *events.Publisher) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := st.Ping(r.Context()); err != nil {
			status = "store unavailable"
			code = http.StatusServiceUnavailable
		} else if ledgerHealthy != nil && !ledgerHealthy() {
			status = "ledger unavailable"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /ingest", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Source   string                `json:"source"`
			BatchID  string                `json:"batch_id"`
			Contacts []model.ContactRecord `json:"contacts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Source == "" {
			http.Error(w, `{"error":"source is required"}`, http.StatusBadRequest)
			return
		}
		if len(req.Contacts) == 0 {
			http.Error(w, `{"error":"contacts must not be empty"}`, http.StatusBadRequest)
			return
		}

		for i := range req.Contacts {
			req.Contacts[i].Source = model.Source{Name: req.Source, BatchID: req.BatchID}
			req.Contacts[i].Enrichment = model.EnrichmentQueued
		}

		accepted, err := st.IngestContacts(r.Context(), req.Contacts)
		if err != nil {
			zap.L().Error("ingest failed",
				zap.String("source", req.Source),
				zap.String("batch_id", req.BatchID),
				zap.Error(err))
			http.Error(w, `{"error":"ingest failed"}`, http.StatusInternalServerError)
			return
		}

		duplicates := len(req.Contacts) - accepted
		metrics.ObserveIngest(accepted, duplicates)
		_ = pub.ContactsIngested(r.Context(), req.Source, req.BatchID, accepted, duplicates)

		zap.L().Info("batch ingested",
			zap.String("source", req.Source),
			zap.String("batch_id", req.BatchID),
			zap.Int("accepted", accepted),
			zap.Int("duplicates", duplicates))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]int{
			"accepted":   accepted,
			"duplicates": duplicates,
		})
	})

	mux.HandleFunc("POST /dispatch/ack", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DecisionID string  `json:"decision_id"`
			ActualCost float64 `json:"actual_cost"`
			Succeeded  bool    `json:"succeeded"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.DecisionID == "" {
			http.Error(w, `{"error":"decision_id is required"}`, http.StatusBadRequest)
			return
		}

		if err := rec.RecordOutcome(r.Context(), req.DecisionID, req.ActualCost, req.Succeeded); err != nil {
			zap.L().Warn("outcome recording failed",
				zap.String("decision_id", req.DecisionID),
				zap.Error(err))
			http.Error(w, `{"error":"outcome recording failed"}`, http.StatusUnprocessableEntity)
			return
		}
		_ = pub.DispatchAcked(r.Context(), req.DecisionID, req.ActualCost, req.Succeeded)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "recorded"})
	})

	return mux
}

// resolvePort prefers the flag over the configured port.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer serves mux until ctx is cancelled, then shuts down gracefully.
func startServer(ctx context.Context, mux *http.ServeMux, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}

	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
