package flex

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wegman-software/osm2scs-go/internal/curve"
	"github.com/wegman-software/osm2scs-go/internal/geom"
	"github.com/wegman-software/osm2scs-go/internal/logger"
)

// Styler consults the script hooks first and falls back to another styler.
// A failing hook is logged and treated like a nil result.
type Styler struct {
	rt       *Runtime
	fallback curve.Styler
	errors   atomic.Int64
}

// NewStyler wraps fallback with the script's hooks
func NewStyler(rt *Runtime, fallback curve.Styler) *Styler {
	return &Styler{rt: rt, fallback: fallback}
}

// Style implements curve.Styler
func (s *Styler) Style(f *geom.Feature) geom.Style {
	base := s.fallback.Style(f)

	switch f.Class {
	case geom.ClassHighway:
		unit, look, ok, err := s.rt.RoadAppearance(f.Tags)
		if err != nil {
			s.hookFailed("road_appearance", f, err)
			return base
		}
		if ok {
			return geom.Style{Unit: unit, Look: look}
		}
	case geom.ClassRailway:
		look, ok, err := s.rt.RailwayLook(f.Tags)
		if err != nil {
			s.hookFailed("railway_look", f, err)
			return base
		}
		if ok {
			base.Look = look
		}
	}
	return base
}

// BuildingHeight matches extrude.ModelConfig.HeightOverride
func (s *Styler) BuildingHeight(tags map[string]string) (float64, bool) {
	h, ok, err := s.rt.BuildingHeight(tags)
	if err != nil {
		s.errors.Add(1)
		logger.Get().Warn("Lua hook failed", zap.String("hook", "building_height"), zap.Error(err))
		return 0, false
	}
	return h, ok
}

// Errors returns how many hook calls failed
func (s *Styler) Errors() int64 {
	return s.errors.Load()
}

func (s *Styler) hookFailed(hook string, f *geom.Feature, err error) {
	s.errors.Add(1)
	logger.Get().Warn("Lua hook failed",
		zap.String("hook", hook),
		zap.Int64("way_id", f.ID),
		zap.Error(err))
}
