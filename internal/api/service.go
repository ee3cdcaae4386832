package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/ddnsd/internal/ddnsmgr"
)

const shutdownTimeout = 5 * time.Second

// Manager is the part of ddnsmgr.Manager the API serves.
type Manager interface {
	Status() ddnsmgr.Status
	Ready() bool
	Refresh() error
	SubscribeActivity() (<-chan ddnsmgr.Activity, func())
}

// Service represents the HTTP server for the status API
type Service struct {
	address string
	dm      Manager
}

func NewService(address string, dm Manager) *Service {
	return &Service{
		address: address,
		dm:      dm,
	}
}

// Start serves the API until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Infof("Starting status API at %s", listener.Addr())
	defer log.Info("Stopping status API")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving API: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to shut down the status API cleanly")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving API: %w", err)
	}
	return nil
}

func (s *Service) Close() error {
	return nil
}

// Handler returns the API routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if !s.dm.Ready() {
				http.Error(w, "Interface state not known yet", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Add("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		if err := enc.Encode(s.dm.Status()); err != nil {
			http.Error(w, fmt.Sprintf("Failed to encode status: %v", err), http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		err := s.dm.Refresh()
		switch {
		case err == nil:
			log.Info("DNS registration refresh requested through the API")
			w.WriteHeader(http.StatusAccepted)
		case errors.Is(err, ddnsmgr.ErrMonitorOnly):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, ddnsmgr.ErrNotReady):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/ws/events", func(w http.ResponseWriter, r *http.Request) {
		StreamActivity(s, w, r)
	})
	return mux
}
