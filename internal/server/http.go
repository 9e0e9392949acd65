package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgehub-io/forgehub/internal/aggregator/model"
	"github.com/forgehub-io/forgehub/internal/pkg/metrics"
	"github.com/forgehub-io/forgehub/pkg/log"
	"github.com/forgehub-io/forgehub/pkg/options"
)

// SnapshotSource provides the last published snapshot. The aggregation node
// implements it.
type SnapshotSource interface {
	Latest() *model.Snapshot
}

// HttpServer serves health probes, metrics and the read-only admin API. All
// admin reads come from the node's last published snapshot, so handlers never
// touch the control loop.
type HttpServer struct {
	server  *http.Server
	network string
	node    SnapshotSource
}

func NewHttpServer(opts *options.HttpOptions, node SnapshotSource) *HttpServer {
	router := mux.NewRouter()

	s := &HttpServer{
		server: &http.Server{
			Addr:         opts.Addr,
			Handler:      router,
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		},
		network: opts.Network,
		node:    node,
	}

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Ready once the first snapshot has been published.
	router.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if node.Latest() == nil {
			http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods("GET")

	router.HandleFunc("/v1/modules", s.listModules).Methods("GET")
	router.HandleFunc("/v1/modules/{id}", s.getModule).Methods("GET")
	router.HandleFunc("/v1/stats", s.getStats).Methods("GET")
	router.HandleFunc("/v1/snapshot", s.getSnapshot).Methods("GET")

	return s
}

func (s *HttpServer) Start(ctx context.Context) error {
	log.Info("Starting HTTP server", "network", s.network, "addr", s.server.Addr)

	lis, err := net.Listen(s.network, s.server.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *HttpServer) snapshot(w http.ResponseWriter) *model.Snapshot {
	snap := s.node.Latest()
	if snap == nil {
		http.Error(w, "no snapshot available yet", http.StatusServiceUnavailable)
		return nil
	}
	return snap
}

func (s *HttpServer) listModules(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	writeJSON(w, snap.Modules)
}

func (s *HttpServer) getModule(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}

	id := model.ModuleID(mux.Vars(r)["id"])
	for i := range snap.Modules {
		if snap.Modules[i].ID == id {
			writeJSON(w, snap.Modules[i])
			return
		}
	}
	http.Error(w, "module not found", http.StatusNotFound)
}

func (s *HttpServer) getStats(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	writeJSON(w, snap.Stats)
}

func (s *HttpServer) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	writeJSON(w, snap)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to encode response")
	}
}
