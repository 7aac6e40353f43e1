package elevation

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wegman-software/osm2scs-go/internal/geom"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDownloaderTileURL(t *testing.T) {
	d := NewDownloader("http://example.com/skadi/", t.TempDir())
	got := d.TileURL("N45E006")
	want := "http://example.com/skadi/N45/N45E006.hgt.gz"
	if got != want {
		t.Errorf("TileURL = %s, want %s", got, want)
	}
}

func TestDownloaderRetriesThenSucceeds(t *testing.T) {
	payload := []byte("tile-bytes")
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path != "/N45/N45E006.hgt.gz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(gzipBytes(t, payload))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloader(srv.URL, dir).WithRetry(3, time.Millisecond)

	ok, cached, err := d.Download(context.Background(), "N45E006")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !ok || cached {
		t.Errorf("ok=%v cached=%v, want ok=true cached=false", ok, cached)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("server hit %d times, want 3", calls)
	}

	got, err := os.ReadFile(filepath.Join(dir, "N45E006.hgt"))
	if err != nil {
		t.Fatalf("tile not written: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("tile content = %q, want %q", got, payload)
	}

	// Second call is served from disk
	ok, cached, err = d.Download(context.Background(), "N45E006")
	if err != nil || !ok || !cached {
		t.Errorf("second download: ok=%v cached=%v err=%v", ok, cached, err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("cached tile should not hit the server, calls = %d", calls)
	}
}

func TestDownloaderGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDownloader(srv.URL, t.TempDir()).WithRetry(2, time.Millisecond)
	if _, _, err := d.Download(context.Background(), "N45E006"); err == nil {
		t.Error("expected error after exhausting retries")
	}
}

func TestDownloadBoundsCountsMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/N45/N45E006.hgt.gz" {
			w.Write(gzipBytes(t, []byte("x")))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDownloader(srv.URL, t.TempDir()).WithRetry(0, time.Millisecond)
	b := geom.NewBounds(geom.LatLon{Lat: 45.1, Lon: 6.1}, geom.LatLon{Lat: 45.9, Lon: 7.9})

	res, err := d.DownloadBounds(context.Background(), b)
	if err != nil {
		t.Fatalf("DownloadBounds failed: %v", err)
	}
	if res.Requested != 2 || res.Downloaded != 1 || res.Missing != 1 {
		t.Errorf("result = %+v, want 2 requested, 1 downloaded, 1 missing", res)
	}
}
