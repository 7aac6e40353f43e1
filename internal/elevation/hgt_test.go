package elevation

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/wegman-software/osm2scs-go/internal/geom"
)

// writeTile writes a synthetic SRTM3 tile whose height is fn(row, col)
func writeTile(t *testing.T, dir, name string, fn func(row, col int) int16) {
	t.Helper()
	buf := make([]byte, srtm3Samples*srtm3Samples*2)
	for r := 0; r < srtm3Samples; r++ {
		for c := 0; c < srtm3Samples; c++ {
			binary.BigEndian.PutUint16(buf[(r*srtm3Samples+c)*2:], uint16(fn(r, c)))
		}
	}
	if err := os.WriteFile(filepath.Join(dir, name+".hgt"), buf, 0644); err != nil {
		t.Fatalf("failed to write tile: %v", err)
	}
}

func TestTileName(t *testing.T) {
	tests := []struct {
		p    geom.LatLon
		want string
	}{
		{geom.LatLon{Lat: 45.5, Lon: 6.2}, "N45E006"},
		{geom.LatLon{Lat: 0.1, Lon: 0.1}, "N00E000"},
		{geom.LatLon{Lat: -0.5, Lon: -70.3}, "S01W071"},
		{geom.LatLon{Lat: 51.0, Lon: -0.1}, "N51W001"},
	}

	for _, tt := range tests {
		if got := TileName(tt.p); got != tt.want {
			t.Errorf("TileName(%v) = %s, want %s", tt.p, got, tt.want)
		}
	}
}

func TestTilesFor(t *testing.T) {
	b := geom.NewBounds(geom.LatLon{Lat: 45.2, Lon: 6.8}, geom.LatLon{Lat: 46.1, Lon: 7.3})
	got := TilesFor(b)
	want := []string{"N45E006", "N45E007", "N46E006", "N46E007"}
	if len(got) != len(want) {
		t.Fatalf("TilesFor returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tile %d = %s, want %s", i, got[i], want[i])
		}
	}

	if TilesFor(geom.Bounds{}) != nil {
		t.Error("empty bounds should yield no tiles")
	}
}

func TestDEMBilinear(t *testing.T) {
	dir := t.TempDir()
	// Height grows by 1 per column eastwards and 2 per row southwards
	writeTile(t, dir, "N45E006", func(r, c int) int16 { return int16(c + 2*r) })

	dem := NewDEM(dir, 0)
	defer dem.Close()
	ctx := context.Background()

	cell := 1.0 / float64(srtm3Samples-1)

	tests := []struct {
		name string
		p    geom.LatLon
		want float64
	}{
		{"north-west corner", geom.LatLon{Lat: 46 - 1e-12, Lon: 6}, 0},
		{"one column east", geom.LatLon{Lat: 46 - 1e-12, Lon: 6 + cell}, 1},
		{"half column east", geom.LatLon{Lat: 46 - 1e-12, Lon: 6 + cell/2}, 0.5},
		{"one row south", geom.LatLon{Lat: 46 - cell, Lon: 6}, 2},
		{"cell centre", geom.LatLon{Lat: 46 - cell/2, Lon: 6 + cell/2}, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dem.PointElevation(ctx, tt.p)
			if err != nil {
				t.Fatalf("PointElevation failed: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("elevation = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestDEMVoidAndMissing(t *testing.T) {
	dir := t.TempDir()
	writeTile(t, dir, "N10E010", func(r, c int) int16 { return voidValue })

	dem := NewDEM(dir, 0)
	defer dem.Close()
	ctx := context.Background()

	h, err := dem.PointElevation(ctx, geom.LatLon{Lat: 10.5, Lon: 10.5})
	if err != nil {
		t.Fatalf("PointElevation failed: %v", err)
	}
	if h != 0 {
		t.Errorf("void sample = %f, want 0", h)
	}

	h, err = dem.PointElevation(ctx, geom.LatLon{Lat: -30.5, Lon: 120.5})
	if err != nil {
		t.Fatalf("missing tile should not fail: %v", err)
	}
	if h != 0 {
		t.Errorf("missing tile elevation = %f, want 0", h)
	}
}

func TestDEMRejectsBadTile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "N01E001.hgt"), []byte{1, 2, 3}, 0644); err != nil {
		t.Fatal(err)
	}

	dem := NewDEM(dir, 0)
	defer dem.Close()

	if _, err := dem.PointElevation(context.Background(), geom.LatLon{Lat: 1.5, Lon: 1.5}); err == nil {
		t.Error("expected error for truncated tile")
	}
}

func TestDEMLineElevation(t *testing.T) {
	dir := t.TempDir()
	writeTile(t, dir, "N45E006", func(r, c int) int16 { return 100 })

	cell := 1.0 / float64(srtm3Samples-1)
	dem := NewDEM(dir, cell*1.0001)
	defer dem.Close()

	path := []geom.LatLon{
		{Lat: 45.5, Lon: 6.5},
		{Lat: 45.5, Lon: 6.5 + 4*cell},
	}
	pts, err := dem.LineElevation(context.Background(), path)
	if err != nil {
		t.Fatalf("LineElevation failed: %v", err)
	}

	// Both ends plus three interior samples
	if len(pts) != 5 {
		t.Fatalf("got %d samples, want 5", len(pts))
	}
	if pts[0].LatLon != path[0] || pts[len(pts)-1].LatLon != path[1] {
		t.Error("line samples must start and end at the path vertices")
	}
	for i, p := range pts {
		if math.Abs(p.Elevation-100) > 1e-9 {
			t.Errorf("sample %d elevation = %f, want 100", i, p.Elevation)
		}
	}
}

func TestDEMBatchOrder(t *testing.T) {
	dir := t.TempDir()
	writeTile(t, dir, "N45E006", func(r, c int) int16 { return int16(c) })

	dem := NewDEM(dir, 0)
	defer dem.Close()

	cell := 1.0 / float64(srtm3Samples-1)
	points := []geom.LatLon{
		{Lat: 45.5, Lon: 6 + 30*cell},
		{Lat: 45.5, Lon: 6 + 10*cell},
		{Lat: 45.5, Lon: 6 + 20*cell},
	}
	got, err := dem.BatchElevation(context.Background(), points)
	if err != nil {
		t.Fatalf("BatchElevation failed: %v", err)
	}
	want := []float64{30, 10, 20}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Errorf("result %d = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestConstantOracle(t *testing.T) {
	c := Constant(42)
	ctx := context.Background()

	hs, err := c.BatchElevation(ctx, make([]geom.LatLon, 3))
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hs {
		if h != 42 {
			t.Errorf("height = %f, want 42", h)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := c.PointElevation(cancelled, geom.LatLon{}); err == nil {
		t.Error("expected context error")
	}
}
