// Package server runs the aggregator's long-lived components as a group.
package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/forgehub-io/forgehub/pkg/log"
)

// Server is the common interface for all long-running components (transport,
// node loop, http).
type Server interface {
	Start(ctx context.Context) error
}

// Manager owns the lifecycle of all servers: they start together, and the
// first one to fail cancels the rest.
type Manager struct {
	servers []Server
}

func NewManager(servers ...Server) *Manager {
	return &Manager{servers: servers}
}

// Start launches all servers in parallel and waits for termination.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, s := range m.servers {
		srv := s // capture loop variable
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...")
	return g.Wait()
}
