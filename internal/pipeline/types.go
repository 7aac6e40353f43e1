package pipeline

import (
	"time"

	"github.com/wegman-software/osm2scs-go/internal/geom"
)

// Event reports stage progress. Done and Total count batches for the
// terrain stage and features for the others.
type Event struct {
	Stage   string
	Done    int
	Total   int
	Message string
}

// Stats summarises a run
type Stats struct {
	Offset    geom.Offset
	Tiles     int
	Segments  int
	Triangles int
	Generated map[geom.Class]int
	Rejected  map[geom.Class]int // ErrInsufficientGeometry / ErrDegeneratePolygon
	Filtered  map[geom.Class]int // dropped by the style filters
	Durations map[string]time.Duration
}

func newStats() *Stats {
	return &Stats{
		Generated: make(map[geom.Class]int),
		Rejected:  make(map[geom.Class]int),
		Filtered:  make(map[geom.Class]int),
		Durations: make(map[string]time.Duration),
	}
}

func (s *Stats) rejected(c geom.Class) { s.Rejected[c]++ }

func (s *Stats) filtered(c geom.Class) { s.Filtered[c]++ }
