// Package main serves one profile store over a REST API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerfiles "github.com/swaggo/files"     // swagger embed files
	ginSwagger "github.com/swaggo/gin-swagger" // gin-swagger middleware

	"github.com/sharedcode/profiles"
	"github.com/sharedcode/profiles/cel"
	"github.com/sharedcode/profiles/database"
	"github.com/sharedcode/profiles/restapi"
	"github.com/sharedcode/profiles/restapi/docs"
)

// @BasePath /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	profiles.ConfigureLogging()
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("profiled failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) error {
	dbOptions, err := cfg.databaseOptions()
	if err != nil {
		return err
	}
	template, err := cfg.template()
	if err != nil {
		return err
	}
	var validator profiles.Validator
	if cfg.ValidationRule != "" {
		v, err := cel.NewValidator(cfg.StoreName, cfg.ValidationRule)
		if err != nil {
			return err
		}
		validator = v
	}
	metrics, err := profiles.NewMetrics(prometheus.DefaultRegisterer, cfg.StoreName)
	if err != nil {
		return err
	}

	db, err := database.NewDatabase(ctx, dbOptions)
	if err != nil {
		return err
	}
	defer db.Close()

	mgr, err := database.OpenManager(db, profiles.ManagerOptions[map[string]any]{
		StoreName: cfg.StoreName,
		Template:  template,
		Validator: validator,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}

	router := gin.Default()
	docs.SwaggerInfo.BasePath = "/api/v1"
	if err := restapi.Register(router.Group("/api/v1"), mgr, restapi.VerifyBearer(cfg.Auth)); err != nil {
		return err
	}
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: cfg.Listen, Handler: router}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("profiled listening", "address", cfg.Listen, "store", cfg.StoreName)
		serveErr <- srv.ListenAndServe()
	}()
	go mgr.Run(ctx, profiles.AutosaveOptions{Interval: cfg.Autosave})

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
	}

	// Fresh context, ctx is already done on a signal.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if sErr := srv.Shutdown(shutdownCtx); sErr != nil {
		log.Warn("http server shutdown failed", "error", sErr)
	}
	if cErr := mgr.Close(shutdownCtx); cErr != nil {
		err = errors.Join(err, fmt.Errorf("unload of profiles failed: %w", cErr))
	}
	log.Info("profiled stopped")
	return err
}
