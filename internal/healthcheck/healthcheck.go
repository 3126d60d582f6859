package healthcheck

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

// Server exposes /health-check, answering 200 only while the database
// behind the delivery queue is reachable.
type Server struct {
	port int
	db   pinger
}

func NewServer(port int, db pinger) *Server {
	return &Server{port: port, db: db}
}

func (hs *Server) handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := hs.db.PingContext(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (hs *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health-check", hs.handle)

	baseContextFunc := func(_ net.Listener) context.Context {
		return ctx
	}

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", hs.port),
		BaseContext: baseContextFunc,
		Handler:     mux,
	}

	go func() {
		_ = srv.ListenAndServe()
	}()

	<-ctx.Done()

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutDown); err != nil {
		return fmt.Errorf("server shutdown failed: %v", err)
	}

	return nil
}
