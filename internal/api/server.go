package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"brickcat/internal/config"
	"brickcat/internal/logger"
)

const readHeaderTimeout = 10 * time.Second

type Server struct {
	cfg    config.Config
	router *gin.Engine
	log    logger.Logger
}

func NewServer(cfg config.Config, store Store, enricher Enricher, log logger.Logger) *Server {
	if !cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}
	return &Server{
		cfg:    cfg,
		router: NewRouter(cfg, NewHandler(store, enricher, log), log),
		log:    log,
	}
}

func NewRouter(cfg config.Config, h *Handler, log logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggerMiddleware(log), CORSMiddleware(cfg.CORSAllowedOrigins))

	r.GET("/health", h.Health)
	r.GET("/nombres-columnas", h.Columns)
	r.GET("/opciones/:columna/:valor", h.Options)
	r.GET("/resultados/:columna/:valor", h.Results)
	r.PUT("/editar", h.Edit)
	r.POST("/agregar", h.Add)
	r.DELETE("/eliminar/:id", h.Delete)
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.log.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
