package weather

import (
	"fmt"
	"sort"
)

// Registry maps provider types to their adapters. It is built once at startup.
type Registry struct {
	readings map[ProviderType]ReadingAdapter
	images   map[ProviderType]ImageAdapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		readings: make(map[ProviderType]ReadingAdapter),
		images:   make(map[ProviderType]ImageAdapter),
	}
}

// RegisterReading adds a reading adapter.
func (r *Registry) RegisterReading(a ReadingAdapter) {
	r.readings[a.Type()] = a
}

// RegisterImage adds an image adapter.
func (r *Registry) RegisterImage(a ImageAdapter) {
	r.images[a.Type()] = a
}

// Reading looks up the reading adapter for t.
func (r *Registry) Reading(t ProviderType) (ReadingAdapter, bool) {
	a, ok := r.readings[t]
	return a, ok
}

// Image looks up the image adapter for t.
func (r *Registry) Image(t ProviderType) (ImageAdapter, bool) {
	a, ok := r.images[t]
	return a, ok
}

// ReadingTypes returns the registered reading provider types, sorted.
func (r *Registry) ReadingTypes() []ProviderType {
	types := make([]ProviderType, 0, len(r.readings))
	for t := range r.readings {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Source groups accepted by the batch trigger.
const (
	GroupHarvest    = "harvest"
	GroupMetservice = "metservice"
	GroupRest       = "rest"
	GroupAll        = "all"
)

// GroupTypes resolves a source-group selector into the provider types it covers.
// GroupAll resolves to nil, meaning every station.
func (r *Registry) GroupTypes(group string) ([]ProviderType, error) {
	switch group {
	case GroupHarvest:
		return []ProviderType{TypeHarvest}, nil
	case GroupMetservice:
		return []ProviderType{TypeMetservice}, nil
	case GroupRest:
		var rest []ProviderType
		for _, t := range r.ReadingTypes() {
			if t != TypeHarvest && t != TypeMetservice {
				rest = append(rest, t)
			}
		}
		return rest, nil
	case GroupAll:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown source group %q", group)
	}
}
