package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osm2scs-go/internal/config"
	"github.com/wegman-software/osm2scs-go/internal/elevation"
	"github.com/wegman-software/osm2scs-go/internal/geom"
	"github.com/wegman-software/osm2scs-go/internal/logger"
	"github.com/wegman-software/osm2scs-go/internal/source"
)

var demCmd = &cobra.Command{
	Use:   "dem",
	Short: "Manage the local SRTM tile cache",
}

var demDownloadCmd = &cobra.Command{
	Use:   "download [input.osm|input.osm.pbf]",
	Short: "Download the SRTM tiles covering a bbox or an input file",
	Long: `Fetch every 1x1 degree SRTM tile intersecting the area into --dem-dir.

The area is --bbox when given, otherwise the bounds of the input file.
Tiles already present are kept; tiles the server does not have (open
sea) are reported as missing and read as height 0 later on.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runDEMDownload,
}

func init() {
	rootCmd.AddCommand(demCmd)
	demCmd.AddCommand(demDownloadCmd)
	d := config.DefaultConfig()
	flags := demDownloadCmd.Flags()

	flags.StringP("bbox", "b", "", "Area to download: minlon,minlat,maxlon,maxlat")
	flags.String("dem-dir", d.DEMDir, "Directory holding SRTM .hgt tiles")
	flags.String("dem-url", d.DEMURL, "Base URL to download SRTM tiles from")
}

func runDEMDownload(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	var bounds geom.Bounds
	switch {
	case cfg.BBox != nil && cfg.BBox.IsSet:
		bounds = cfg.BBox.Bounds()
	case len(args) == 1:
		ds, err := source.ReadFile(ctx, args[0], cfg.Workers)
		if err != nil {
			exitWithError("failed to read input", err)
		}
		bounds = ds.Bounds
	default:
		exitWithError("either --bbox or an input file is required", nil)
	}

	if bounds.IsEmpty() {
		exitWithError("input has no bounds", nil)
	}

	if _, err := downloadDEM(ctx, cfg, bounds); err != nil {
		exitWithError("DEM download failed", err)
	}
}

func downloadDEM(ctx context.Context, cfg *config.Config, bounds geom.Bounds) (*elevation.DownloadResult, error) {
	log := logger.Get()
	start := time.Now()

	log.Info("Downloading DEM tiles",
		zap.Stringer("min", bounds.Min),
		zap.Stringer("max", bounds.Max),
		zap.String("dir", cfg.DEMDir))

	res, err := elevation.NewDownloader(cfg.DEMURL, cfg.DEMDir).DownloadBounds(ctx, bounds)
	if err != nil {
		return res, fmt.Errorf("failed to download DEM tiles: %w", err)
	}

	log.Info("DEM tiles ready",
		zap.Duration("duration", time.Since(start).Round(time.Second)),
		zap.Int("requested", res.Requested),
		zap.Int("downloaded", res.Downloaded),
		zap.Int("cached", res.Cached),
		zap.Int("missing", res.Missing))
	return res, nil
}
