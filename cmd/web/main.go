// Command web runs a minimal HTTP front door over the scheduling API, so
// other services can enqueue a job with a plain POST instead of linking
// against this module directly. It runs no worker and no cron planners.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/eykd/companion-memory/internal/app"
	"github.com/eykd/companion-memory/scheduling"
)

var (
	storeBackend string
	addr         string
)

func main() {
	root := &cobra.Command{
		Use:   "web",
		Short: "Run the companion-memory scheduling HTTP front door",
		RunE:  run,
	}
	root.Flags().StringVar(&storeBackend, "store", "dynamo", "backing store: dynamo or memory")
	root.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(*cobra.Command, []string) error {
	a, err := app.New(app.StoreBackend(storeBackend))
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/schedule", &scheduleHandler{scheduler: a.Scheduler})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := cors.AllowAll().Handler(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		a.Logger.Info("web starting", "addr", addr, "store", storeBackend)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// scheduleRequest is the wire shape POST /schedule accepts. Payload is
// passed through to scheduling.Scheduler.Schedule verbatim; the job
// type's registered handler defines and validates its real shape.
type scheduleRequest struct {
	JobType      string          `json:"job_type"`
	Payload      json.RawMessage `json:"payload"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	LogicalID    string          `json:"logical_id,omitempty"`
	Bucket       string          `json:"bucket,omitempty"`
}

type scheduleResponse struct {
	Outcome string `json:"outcome"`
}

type scheduleHandler struct {
	scheduler *scheduling.Scheduler
}

func (h *scheduleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.JobType == "" {
		http.Error(w, "job_type is required", http.StatusBadRequest)
		return
	}
	if req.ScheduledFor.IsZero() {
		http.Error(w, "scheduled_for is required", http.StatusBadRequest)
		return
	}

	var opts []scheduling.ScheduleOption
	if req.LogicalID != "" {
		opts = append(opts, scheduling.WithLogicalID(req.LogicalID))
	}
	if req.Bucket != "" {
		opts = append(opts, scheduling.WithBucket(req.Bucket))
	}

	outcome, err := h.scheduler.Schedule(r.Context(), req.JobType, req.Payload, req.ScheduledFor, opts...)
	if err != nil {
		var cfgErr *scheduling.ConfigError
		if errors.As(err, &cfgErr) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if outcome == scheduling.Scheduled {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(scheduleResponse{Outcome: outcome.String()})
}
