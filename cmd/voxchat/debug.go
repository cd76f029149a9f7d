package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"voxchat/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// debugServer exposes health and the in-memory metrics registry on a
// loopback address for troubleshooting a running client.
type debugServer struct {
	server *http.Server
	logger *logrus.Logger
}

func newDebugServer(addr string, logger *logrus.Logger) *debugServer {
	router := mux.NewRouter()
	router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/metrics", handleMetrics).Methods(http.MethodGet)

	return &debugServer{
		server: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (d *debugServer) Start() {
	go func() {
		d.logger.WithField("addr", d.server.Addr).Info("Debug server listening")
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.WithError(err).Warn("Debug server stopped")
		}
	}()
}

func (d *debugServer) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.WithError(err).Warn("Debug server shutdown failed")
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(metrics.GetAllMetrics())
}
