// Package source reads OSM extracts and resolves the ways the generator
// cares about into geometry features.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"go.uber.org/zap"

	"github.com/wegman-software/osm2scs-go/internal/geom"
	"github.com/wegman-software/osm2scs-go/internal/logger"
)

// Stats holds read statistics
type Stats struct {
	Nodes          int64
	Ways           int64
	Buildings      int64
	Highways       int64
	Railways       int64
	MissingNodes   int64 // ways skipped because a referenced node was absent
	OpenBuildings  int64 // building ways that do not form a closed ring
	DeclaredBounds bool  // bounds came from a <bounds> element
	BytesRead      int64
	DurationMillis int64
}

// Dataset is everything the generator needs from the source file
type Dataset struct {
	Bounds   geom.Bounds
	Features []*geom.Feature
	Stats    Stats
}

// ByClass returns the features of one class in file order
func (d *Dataset) ByClass(c geom.Class) []*geom.Feature {
	var out []*geom.Feature
	for _, f := range d.Features {
		if f.Class == c {
			out = append(out, f)
		}
	}
	return out
}

// classes in the order a single way is checked
var classes = []geom.Class{geom.ClassBuilding, geom.ClassHighway, geom.ClassRailway}

// IsPBF reports whether a path names a PBF file
func IsPBF(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".pbf")
}

// NewScanner returns an XML or PBF scanner depending on the file name
func NewScanner(ctx context.Context, r io.Reader, name string, workers int) osm.Scanner {
	if IsPBF(name) {
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		return osmpbf.New(ctx, r, workers)
	}
	return osmxml.New(ctx, r)
}

// ReadFile opens path and reads it into a dataset
func ReadFile(ctx context.Context, path string, workers int) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	scanner := NewScanner(ctx, f, path, workers)
	defer scanner.Close()

	ds, err := Read(ctx, scanner)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	ds.Stats.BytesRead = info.Size()
	return ds, nil
}

// Read consumes a scanner. Node coordinates are kept in memory, so nodes
// must precede the ways that reference them, as in any sorted extract.
func Read(ctx context.Context, scanner osm.Scanner) (*Dataset, error) {
	log := logger.Stage("source")
	start := time.Now()

	var (
		ds       = &Dataset{}
		nodes    = make(map[osm.NodeID]geom.LatLon)
		declared geom.Bounds
		nodeBox  geom.Bounds
		nodeCnt  atomic.Int64
		wayCnt   atomic.Int64
	)

	tickCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go newProgressTicker(tickCtx, 2*time.Second, func() {
		log.Debug("Reading", zap.Int64("nodes", nodeCnt.Load()), zap.Int64("ways", wayCnt.Load()))
	}).Run()

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Bounds:
			declared.Extend(geom.LatLon{Lat: o.MinLat, Lon: o.MinLon})
			declared.Extend(geom.LatLon{Lat: o.MaxLat, Lon: o.MaxLon})
		case *osm.Node:
			p := geom.LatLon{Lat: o.Lat, Lon: o.Lon}
			nodes[o.ID] = p
			nodeBox.Extend(p)
			nodeCnt.Add(1)
		case *osm.Way:
			wayCnt.Add(1)
			ds.addWay(o, nodes)
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, err
	}

	ds.Stats.Nodes = nodeCnt.Load()
	ds.Stats.Ways = wayCnt.Load()
	if !declared.IsEmpty() {
		ds.Bounds = declared
		ds.Stats.DeclaredBounds = true
	} else {
		ds.Bounds = nodeBox
	}
	ds.Stats.DurationMillis = time.Since(start).Milliseconds()

	log.Info("Source read",
		zap.Int64("nodes", ds.Stats.Nodes),
		zap.Int64("ways", ds.Stats.Ways),
		zap.Int64("buildings", ds.Stats.Buildings),
		zap.Int64("highways", ds.Stats.Highways),
		zap.Int64("railways", ds.Stats.Railways),
		zap.Int64("missing_nodes", ds.Stats.MissingNodes),
		zap.Int64("open_buildings", ds.Stats.OpenBuildings),
	)
	return ds, nil
}

// addWay turns a way into one feature per class it is tagged with
func (ds *Dataset) addWay(w *osm.Way, nodes map[osm.NodeID]geom.LatLon) {
	var (
		tags map[string]string
		pts  []geom.LatLon
	)
	for _, c := range classes {
		if w.Tags.Find(c.String()) == "" {
			continue
		}
		if tags == nil {
			tags = w.Tags.Map()
		}

		kind := geom.KindPolyline
		if c == geom.ClassBuilding {
			if !closedRing(w) {
				ds.Stats.OpenBuildings++
				continue
			}
			kind = geom.KindPolygon
		}

		if pts == nil {
			var ok bool
			if pts, ok = resolve(w, nodes); !ok {
				ds.Stats.MissingNodes++
				return
			}
		}

		ds.Features = append(ds.Features, &geom.Feature{
			ID:    int64(w.ID),
			Kind:  kind,
			Class: c,
			Nodes: pts,
			Tags:  tags,
		})
		switch c {
		case geom.ClassBuilding:
			ds.Stats.Buildings++
		case geom.ClassHighway:
			ds.Stats.Highways++
		case geom.ClassRailway:
			ds.Stats.Railways++
		}
	}
}

func closedRing(w *osm.Way) bool {
	n := len(w.Nodes)
	return n >= 4 && w.Nodes[0].ID == w.Nodes[n-1].ID
}

func resolve(w *osm.Way, nodes map[osm.NodeID]geom.LatLon) ([]geom.LatLon, bool) {
	pts := make([]geom.LatLon, 0, len(w.Nodes))
	for _, wn := range w.Nodes {
		p, ok := nodes[wn.ID]
		if !ok {
			return nil, false
		}
		pts = append(pts, p)
	}
	return pts, true
}
