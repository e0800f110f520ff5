package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bellafleur/benly/api"
	"github.com/bellafleur/benly/config"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func Run(ctx context.Context, cfg *config.Config, handler *api.SessionHandler, log *logrus.Logger) error {
	if cfg.App.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(api.Recovery(log))
	router.Use(api.CORS(cfg.App.AllowedOrigins))
	router.Use(api.RequireJSON())
	router.Use(api.RateLimit(120))

	handler.Register(router)
	if !cfg.App.Production() {
		handler.RegisterDev(router)
	}

	if cfg.HTTP.SwaggerDir != "" {
		router.StaticFS("/swagger", http.Dir(cfg.HTTP.SwaggerDir))
		router.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(
			httpSwagger.URL("/swagger/swagger.json"),
		)))
	}

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	log.WithField("address", cfg.HTTP.Address).WithField("env", cfg.App.Env).Info("http server started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
