// Package healthcheck serves /health and /metrics on a side listener.
package healthcheck

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quailyquaily/jab/internal/logutil"
	"github.com/quailyquaily/jab/internal/observability"
)

// Status is reported by /health.
type Status struct {
	Transport    string   `json:"transport"`
	LastUpdateID int64    `json:"last_update_id"`
	Modules      []string `json:"modules"`
}

type StatusFunc func() Status

type Server struct {
	srv     *http.Server
	ln      net.Listener
	started time.Time
	logger  *slog.Logger
	done    chan struct{}
}

func Router(status StatusFunc, started time.Time, logger *slog.Logger) *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery(), observability.RequestLogger(logger))
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":         "ok",
			"uptime_seconds": int64(time.Since(started).Seconds()),
		}
		if status != nil {
			body["bot"] = status()
		}
		c.JSON(http.StatusOK, body)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Start listens on addr and serves in the background until Close.
func Start(addr string, status StatusFunc, logger *slog.Logger) (*Server, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("healthcheck: listen address is required")
	}
	logger = logutil.OrDiscard(logger)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	s := &Server{
		srv: &http.Server{
			Handler:           Router(status, started, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:      ln,
		started: started,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health_server_error", "addr", ln.Addr().String(), "error", err.Error())
		}
	}()
	logger.Info("health_server_started", "addr", ln.Addr().String())
	return s, nil
}

func (s *Server) Addr() string { return s.ln.Addr().String() }

func (s *Server) Close(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
