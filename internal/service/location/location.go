package location

import "sharkcam/internal/model"

// Provider reports the current position. ok is false when no fix is
// available; implementations must not block.
type Provider interface {
	Locate() (loc model.Location, ok bool)
}

// Unavailable never has a fix.
type Unavailable struct{}

func (Unavailable) Locate() (model.Location, bool) {
	return model.Location{}, false
}

// Static always reports the same configured position, e.g. a shore camera
// or a drone holding station.
type Static struct {
	loc model.Location
}

// NewStatic returns a provider for a fixed position. alt may be nil.
func NewStatic(lat, lon float64, alt *float64) *Static {
	var a *float64
	if alt != nil {
		v := *alt
		a = &v
	}
	return &Static{loc: model.Location{Lat: lat, Lon: lon, Alt: a}}
}

func (s *Static) Locate() (model.Location, bool) {
	loc := s.loc
	if loc.Alt != nil {
		alt := *loc.Alt
		loc.Alt = &alt
	}
	return loc, true
}

// FromConfig picks Static when both coordinates are set, otherwise Unavailable.
func FromConfig(lat, lon, alt *float64) Provider {
	if lat == nil || lon == nil {
		return Unavailable{}
	}
	return NewStatic(*lat, *lon, alt)
}
