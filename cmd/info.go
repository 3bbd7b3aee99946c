package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kiesman99/tilewms/internal/raster"
	"github.com/kiesman99/tilewms/internal/render"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print metadata of the configured GeoTIFF",
	Long: `Print size, bands, sample type, extent, nodata and overviews of a GeoTIFF.

Examples:
  tilewms info --raster ortho.tif
  tilewms info --raster ortho.tif --json`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().Bool("json", false, "print JSON")
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireRaster(); err != nil {
		return err
	}

	info, err := render.New(cfg.Raster.Path, cfg.RenderOptions(), logger).Info(cmd.Context())
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	printInfo(cmd.OutOrStdout(), info)
	return nil
}

func printInfo(w io.Writer, info raster.Info) {
	fmt.Fprintf(w, "File:         %s\n", info.Path)
	fmt.Fprintf(w, "Size:         %d x %d, %d band(s)\n", info.Width, info.Height, info.Bands)
	fmt.Fprintf(w, "Data type:    %s\n", info.DataType)
	fmt.Fprintf(w, "Bounds:       %g, %g, %g, %g\n", info.Bounds[0], info.Bounds[1], info.Bounds[2], info.Bounds[3])
	fmt.Fprintf(w, "Pixel size:   %g, %g\n", info.PixelSize[0], info.PixelSize[1])
	if info.EPSG != 0 {
		fmt.Fprintf(w, "EPSG:         %d\n", info.EPSG)
	}
	if !info.Georeferenced {
		fmt.Fprintln(w, "Georeference: none (pixel coordinates)")
	}
	if info.NoData != "" {
		fmt.Fprintf(w, "NoData:       %s\n", info.NoData)
	}
	layout := "strips"
	if info.Tiled {
		layout = "tiles"
	}
	fmt.Fprintf(w, "Blocks:       %s of %d x %d, compression %d\n", layout, info.BlockWidth, info.BlockHeight, info.Compression)
	for i, ov := range info.Overviews {
		fmt.Fprintf(w, "Overview %d:   %d x %d\n", i+1, ov.Width, ov.Height)
	}
}
