package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tilewms/internal/render"
	"github.com/kiesman99/tilewms/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server answering WMS GetMap tile requests",
	Long: `Start an HTTP server that renders tiles from the configured GeoTIFF.

Endpoints:
  GET /wms     render a tile (bbox, width, height, transparent, format)
  GET /info    raster metadata
  GET /health  health check

Examples:
  # Start server on default port 8080
  tilewms serve --raster ortho.tif

  # Start server on custom port
  tilewms serve --raster ortho.tif --port 3000

  # Start server with custom bind address
  tilewms serve --raster ortho.tif --bind 0.0.0.0 --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")
	serveCmd.Flags().Int64("max-renders", 8, "maximum concurrent renders")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.max_renders", serveCmd.Flags().Lookup("max-renders"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireRaster(); err != nil {
		return err
	}

	renderer := render.New(cfg.Raster.Path, cfg.RenderOptions(), logger)

	// Fail fast on an unreadable raster instead of on the first request.
	info, err := renderer.Info(cmd.Context())
	if err != nil {
		return err
	}

	apiServer := server.NewServer(renderer, server.Options{
		Version:    Version,
		MaxRenders: cfg.Server.MaxRenders,
		Timeout:    cfg.Server.Timeout,
		Logger:     logger,
	})

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.NewRouter(apiServer, cfg.Server.Timeout),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("server shutdown error")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"addr":   addr,
		"raster": cfg.Raster.Path,
		"width":  info.Width,
		"height": info.Height,
		"bands":  info.Bands,
	}).Info("starting tilewms server")
	fmt.Fprintf(cmd.ErrOrStderr(), "Health check: http://%s/health\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "GetMap endpoint: http://%s/wms?bbox=minX,minY,maxX,maxY\n", addr)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %v", err)
	}

	return nil
}
