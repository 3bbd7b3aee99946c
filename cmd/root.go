package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tilewms/internal/config"
	"github.com/kiesman99/tilewms/internal/export"
	"github.com/kiesman99/tilewms/internal/render"
	"github.com/kiesman99/tilewms/pkg/tile"
)

// Version is reported by the health endpoint and --version.
var Version = "1.0.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "tilewms",
	Short:   "Render map tiles for a bounding box from a GeoTIFF",
	Version: Version,
	Long: `tilewms crops and resamples a georeferenced raster (GeoTIFF) into image tiles.

Run without a subcommand it renders a single tile to a file or stdout, in the
same way the HTTP server answers a WMS GetMap request. Pure black pixels can be
made partially transparent, and a world file can be written next to the tile.

Examples:
  # Render a 512x512 PNG tile of a bounding box
  tilewms --raster ortho.tif --bbox 2600000,1200000,2601000,1201000 -o tile.png

  # JPEG tile with a world file
  tilewms --raster ortho.tif --bbox 2600000,1200000,2601000,1201000 --format jpeg -w -o tile.jpg

  # Make black background 90% transparent, write to stdout
  tilewms --raster ortho.tif --bbox 2600000,1200000,2601000,1201000 --transparent 90 > tile.png

  # Start HTTP server
  tilewms serve --raster ortho.tif --port 8080

  # Inspect the raster
  tilewms info --raster ortho.tif`,
	SilenceUsage: true,
	RunE:         runRender,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tilewms.yaml)")
	rootCmd.PersistentFlags().StringP("raster", "r", "", "GeoTIFF to render from")
	rootCmd.PersistentFlags().Bool("use-overviews", true, "read from overviews when downsampling")
	rootCmd.PersistentFlags().Int("decode-workers", 4, "concurrent block decoders per read")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text|json)")

	viper.BindPFlag("raster.path", rootCmd.PersistentFlags().Lookup("raster"))
	viper.BindPFlag("raster.use_overviews", rootCmd.PersistentFlags().Lookup("use-overviews"))
	viper.BindPFlag("raster.decode_workers", rootCmd.PersistentFlags().Lookup("decode-workers"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	// Output options
	rootCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	rootCmd.Flags().StringP("format", "f", "png", "output format (png|jpeg)")
	rootCmd.Flags().BoolP("worldfile", "w", false, "write world file")
	rootCmd.Flags().Int("quality", 90, "JPEG quality (1-100)")

	// Tile options
	rootCmd.Flags().String("bbox", "", "bounding box as 'minX,minY,maxX,maxY' in the raster CRS (default: full extent)")
	rootCmd.Flags().Int("width", tile.DefaultWidth, "tile width in pixels")
	rootCmd.Flags().Int("height", tile.DefaultHeight, "tile height in pixels")
	rootCmd.Flags().IntP("transparent", "t", 0, "transparency of pure black pixels in percent (0-100)")

	// Bind flags to viper for root command
	viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	viper.BindPFlag("format", rootCmd.Flags().Lookup("format"))
	viper.BindPFlag("worldfile", rootCmd.Flags().Lookup("worldfile"))
	viper.BindPFlag("render.jpeg_quality", rootCmd.Flags().Lookup("quality"))
	viper.BindPFlag("bbox", rootCmd.Flags().Lookup("bbox"))
	viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	viper.BindPFlag("height", rootCmd.Flags().Lookup("height"))
	viper.BindPFlag("transparent", rootCmd.Flags().Lookup("transparent"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".tilewms" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tilewms")
	}

	config.BindEnv(viper.GetViper())

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the merged flag/file/env configuration and builds the
// logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireRaster(); err != nil {
		return err
	}

	format, err := tile.ParseFormat(viper.GetString("format"))
	if err != nil {
		return err
	}

	renderer := render.New(cfg.Raster.Path, cfg.RenderOptions(), logger)

	req := tile.Request{
		Width:        viper.GetInt("width"),
		Height:       viper.GetInt("height"),
		Transparency: viper.GetInt("transparent"),
		Format:       format,
	}
	if s := viper.GetString("bbox"); s != "" {
		if req.BBox, err = tile.ParseBoundingBox(s); err != nil {
			return err
		}
	} else {
		if req.BBox, err = renderer.Bounds(); err != nil {
			return err
		}
	}

	exporter := export.New(renderer, export.Options{
		Output:         viper.GetString("output"),
		WriteWorldFile: viper.GetBool("worldfile"),
		Stdout:         cmd.OutOrStdout(),
	})

	result, err := exporter.Export(cmd.Context(), req)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"bbox":   tile.FormatBoundingBox(req.BBox),
		"layout": result.Layout.String(),
		"bytes":  len(result.Data),
		"output": viper.GetString("output"),
	}).Info("tile written")
	return nil
}
