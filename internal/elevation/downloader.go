package elevation

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osm2scs-go/internal/geom"
	"github.com/wegman-software/osm2scs-go/internal/logger"
)

// DefaultTileURL serves gzipped SRTM1 tiles laid out as {N45}/{N45E006}.hgt.gz
const DefaultTileURL = "https://s3.amazonaws.com/elevation-tiles-prod/skadi"

// Downloader fetches missing DEM tiles into a local directory
type Downloader struct {
	baseURL    string
	dir        string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// NewDownloader creates a downloader writing tiles into dir
func NewDownloader(baseURL, dir string) *Downloader {
	if baseURL == "" {
		baseURL = DefaultTileURL
	}
	return &Downloader{
		baseURL: strings.TrimRight(baseURL, "/"),
		dir:     dir,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		maxRetries: 3,
		retryDelay: 2 * time.Second,
	}
}

// WithRetry overrides the retry policy
func (d *Downloader) WithRetry(maxRetries int, delay time.Duration) *Downloader {
	d.maxRetries = maxRetries
	d.retryDelay = delay
	return d
}

// DownloadResult summarizes a download run
type DownloadResult struct {
	Requested  int
	Downloaded int
	Cached     int
	Missing    int
}

// TileURL returns the remote location of a tile
func (d *Downloader) TileURL(name string) string {
	return fmt.Sprintf("%s/%s/%s.hgt.gz", d.baseURL, name[:3], name)
}

// DownloadBounds fetches every tile that intersects the bounds.
// Tiles already present are left alone; tiles the server does not have
// (open ocean) are counted as missing.
func (d *Downloader) DownloadBounds(ctx context.Context, b geom.Bounds) (*DownloadResult, error) {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DEM directory: %w", err)
	}

	names := TilesFor(b)
	res := &DownloadResult{Requested: len(names)}

	for _, name := range names {
		ok, cached, err := d.Download(ctx, name)
		if err != nil {
			return res, err
		}
		switch {
		case cached:
			res.Cached++
		case ok:
			res.Downloaded++
		default:
			res.Missing++
		}
	}
	return res, nil
}

// Download fetches a single tile. It reports whether the tile exists
// locally afterwards and whether it was already cached.
func (d *Downloader) Download(ctx context.Context, name string) (ok, cached bool, err error) {
	log := logger.Get()
	dest := filepath.Join(d.dir, name+".hgt")

	if _, err := os.Stat(dest); err == nil {
		log.Debug("Using cached DEM tile", zap.String("path", dest))
		return true, true, nil
	}

	url := d.TileURL(name)
	log.Debug("Fetching DEM tile", zap.String("tile", name), zap.String("url", url))

	resp, err := d.fetchWithRetry(ctx, url)
	if err != nil {
		return false, false, fmt.Errorf("failed to fetch tile %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		log.Debug("DEM tile not available", zap.String("tile", name))
		return false, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, false, fmt.Errorf("unexpected status code for tile %s: %d", name, resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return false, false, fmt.Errorf("failed to open gzip stream for %s: %w", name, err)
	}
	defer gz.Close()

	tmpFile := dest + ".tmp"
	out, err := os.Create(tmpFile)
	if err != nil {
		return false, false, fmt.Errorf("failed to create tile file: %w", err)
	}

	_, err = io.Copy(out, gz)
	out.Close()
	if err != nil {
		os.Remove(tmpFile)
		return false, false, fmt.Errorf("failed to write tile %s: %w", name, err)
	}

	if err := os.Rename(tmpFile, dest); err != nil {
		os.Remove(tmpFile)
		return false, false, fmt.Errorf("failed to rename tile file: %w", err)
	}

	log.Info("Downloaded DEM tile", zap.String("tile", name))
	return true, false, nil
}

// fetchWithRetry performs an HTTP GET, retrying transport and 5xx errors
func (d *Downloader) fetchWithRetry(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "osm2scs-go/1.0")

		resp, err := d.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
