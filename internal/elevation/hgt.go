package elevation

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/edsrzf/mmap-go"
	"go.uber.org/zap"

	"github.com/wegman-software/osm2scs-go/internal/geom"
	"github.com/wegman-software/osm2scs-go/internal/logger"
)

const (
	// SRTM marks missing samples with this value
	voidValue = -32768

	srtm1Samples = 3601
	srtm3Samples = 1201

	// DefaultResolution is the SRTM1 cell size in degrees
	DefaultResolution = 1.0 / 3600.0
)

// hgtTile is a memory-mapped SRTM tile.
// Samples are big-endian int16, row 0 is the northern edge.
type hgtTile struct {
	file    *os.File
	data    mmap.MMap
	samples int
}

func openTile(path string) (*hgtTile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat tile: %w", err)
	}

	var samples int
	switch info.Size() {
	case srtm1Samples * srtm1Samples * 2:
		samples = srtm1Samples
	case srtm3Samples * srtm3Samples * 2:
		samples = srtm3Samples
	default:
		f.Close()
		return nil, fmt.Errorf("tile %s has unexpected size %d", filepath.Base(path), info.Size())
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap tile: %w", err)
	}

	return &hgtTile{file: f, data: data, samples: samples}, nil
}

func (t *hgtTile) at(row, col int) float64 {
	off := (row*t.samples + col) * 2
	v := int16(binary.BigEndian.Uint16(t.data[off:]))
	if v == voidValue {
		return 0
	}
	return float64(v)
}

// sample interpolates bilinearly inside the tile whose south-west corner is (lat0, lon0)
func (t *hgtTile) sample(p geom.LatLon, lat0, lon0 float64) float64 {
	last := float64(t.samples - 1)
	fy := (lat0 + 1 - p.Lat) * last
	fx := (p.Lon - lon0) * last
	fy = math.Max(0, math.Min(fy, last))
	fx = math.Max(0, math.Min(fx, last))

	r0, c0 := int(fy), int(fx)
	r1, c1 := r0+1, c0+1
	if r1 > t.samples-1 {
		r1 = t.samples - 1
	}
	if c1 > t.samples-1 {
		c1 = t.samples - 1
	}
	dy, dx := fy-float64(r0), fx-float64(c0)

	top := t.at(r0, c0)*(1-dx) + t.at(r0, c1)*dx
	bottom := t.at(r1, c0)*(1-dx) + t.at(r1, c1)*dx
	return top*(1-dy) + bottom*dy
}

func (t *hgtTile) close() error {
	if err := t.data.Unmap(); err != nil {
		t.file.Close()
		return err
	}
	return t.file.Close()
}

// TileName returns the SRTM tile name covering a coordinate, e.g. N43E007
func TileName(p geom.LatLon) string {
	lat := int(math.Floor(p.Lat))
	lon := int(math.Floor(p.Lon))

	ns, ew := "N", "E"
	if lat < 0 {
		ns = "S"
		lat = -lat
	}
	if lon < 0 {
		ew = "W"
		lon = -lon
	}
	return fmt.Sprintf("%s%02d%s%03d", ns, lat, ew, lon)
}

// TilesFor returns the names of all tiles intersecting the bounds
func TilesFor(b geom.Bounds) []string {
	if b.IsEmpty() {
		return nil
	}
	var names []string
	for lat := math.Floor(b.Min.Lat); lat <= math.Floor(b.Max.Lat); lat++ {
		for lon := math.Floor(b.Min.Lon); lon <= math.Floor(b.Max.Lon); lon++ {
			names = append(names, TileName(geom.LatLon{Lat: lat, Lon: lon}))
		}
	}
	return names
}

// DEM is an elevation oracle backed by a directory of SRTM .hgt tiles
type DEM struct {
	dir        string
	resolution float64

	mu    sync.Mutex
	tiles map[string]*hgtTile // nil entry = tile not available
}

// NewDEM creates a DEM oracle reading tiles from dir.
// resolution is the line sampling interval in degrees (<= 0 uses SRTM1).
func NewDEM(dir string, resolution float64) *DEM {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &DEM{
		dir:        dir,
		resolution: resolution,
		tiles:      make(map[string]*hgtTile),
	}
}

// Close unmaps all opened tiles
func (d *DEM) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for name, t := range d.tiles {
		if t != nil {
			if err := t.close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		delete(d.tiles, name)
	}
	return firstErr
}

func (d *DEM) tile(name string) (*hgtTile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.tiles[name]; ok {
		return t, nil
	}

	t, err := openTile(filepath.Join(d.dir, name+".hgt"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Oceans have no SRTM coverage
			logger.Get().Debug("DEM tile missing, using sea level", zap.String("tile", name))
			d.tiles[name] = nil
			return nil, nil
		}
		return nil, err
	}
	d.tiles[name] = t
	return t, nil
}

func (d *DEM) elevation(p geom.LatLon) (float64, error) {
	t, err := d.tile(TileName(p))
	if err != nil {
		return 0, err
	}
	if t == nil {
		return 0, nil
	}
	return t.sample(p, math.Floor(p.Lat), math.Floor(p.Lon)), nil
}

// PointElevation returns the interpolated elevation at p
func (d *DEM) PointElevation(ctx context.Context, p geom.LatLon) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return d.elevation(p)
}

// LineElevation samples the path once per DEM cell along every segment
func (d *DEM) LineElevation(ctx context.Context, path []geom.LatLon) ([]GeoPoint, error) {
	if len(path) == 0 {
		return nil, nil
	}

	samples := make([]geom.LatLon, 0, len(path))
	for i := 0; i < len(path)-1; i++ {
		a, b := path[i], path[i+1]
		samples = append(samples, a)

		span := math.Max(math.Abs(b.Lat-a.Lat), math.Abs(b.Lon-a.Lon))
		steps := int(math.Ceil(span / d.resolution))
		for k := 1; k < steps; k++ {
			f := float64(k) / float64(steps)
			samples = append(samples, geom.LatLon{
				Lat: a.Lat + (b.Lat-a.Lat)*f,
				Lon: a.Lon + (b.Lon-a.Lon)*f,
			})
		}
	}
	samples = append(samples, path[len(path)-1])

	out := make([]GeoPoint, len(samples))
	for i, p := range samples {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		h, err := d.elevation(p)
		if err != nil {
			return nil, err
		}
		out[i] = GeoPoint{LatLon: p, Elevation: h}
	}
	return out, nil
}

// BatchElevation returns the elevation of every point in request order
func (d *DEM) BatchElevation(ctx context.Context, points []geom.LatLon) ([]float64, error) {
	out := make([]float64, len(points))
	for i, p := range points {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		h, err := d.elevation(p)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}
