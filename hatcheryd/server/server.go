package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/hatchery-io/hatchery/hatcheryd/core"
	"github.com/hatchery-io/hatchery/internals/logbuf"
	"github.com/hatchery-io/hatchery/internals/timeouts"
)

type Server struct {
	Base       *core.BaseServer
	Logbuf     *logbuf.Logger
	httpServer *http.Server
	cancelRun  context.CancelFunc
}

func New(base *core.BaseServer) *Server {
	buffer := logbuf.New(
		slog.String("version", base.Config.Version),
		slog.Int("port", base.Env.PORT),
	)

	return &Server{
		Base:   base,
		Logbuf: buffer,
	}
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.Base.Env.LISTEN_ADDR)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancelRun = cancel
	go func() {
		if err := s.Base.Consumer.Run(runCtx); err != nil {
			s.Base.Logger.Error("consumer stopped", slog.String("error", err.Error()))
		}
	}()

	server := &http.Server{
		Handler: s.Router(),
	}
	s.httpServer = server
	err = server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeouts.ShutdownGrace)
		defer cancel()
		if s.cancelRun != nil {
			s.cancelRun()
		}
		if s.httpServer == nil {
			s.Base.Logger.Error("shutdown failed", "error", errors.New("server not initialized"))
			return
		}
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.Base.Logger.Error("shutdown failed", "error", err)
		}
	}()
}
