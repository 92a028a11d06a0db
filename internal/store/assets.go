package store

import (
	"context"
	"errors"

	"github.com/nerrad567/gray-sync-core/internal/catalog"
	"github.com/nerrad567/gray-sync-core/internal/record"
)

// Description is an asset-aware read: the slot's current value enriched
// with catalog descriptors. Label and Unit are empty when the catalog has
// nothing to say — a missing catalog never fails a read.
type Description struct {
	Key   record.Key   `json:"key"`
	Value record.Value `json:"value"`
	Known bool         `json:"known"`
	Label string       `json:"label,omitempty"`
	Unit  string       `json:"unit,omitempty"`
}

// Describe returns the value of a slot together with its label and unit.
// Catalog failures degrade to a value-only description.
func (s *Store) Describe(ctx context.Context, device string, k record.Key, lang string) Description {
	value, known := s.GetKey(device, k)
	d := Description{Key: k, Value: value, Known: known}

	d.Label = s.Label(ctx, k, lang)
	d.Unit = s.Unit(ctx, k)
	return d
}

// Label resolves the slot's display name, or "" when the store is
// lightweight, the slot is not catalogued, or the catalog is unavailable.
func (s *Store) Label(ctx context.Context, k record.Key, lang string) string {
	if s.catalog == nil {
		return ""
	}
	label, err := s.catalog.Label(ctx, k.Pool, k.Channel, k.Index, lang)
	if err != nil {
		s.logCatalogMiss("label", k, err)
		return ""
	}
	return label
}

// Unit resolves the slot's display unit, or "" on any catalog miss.
func (s *Store) Unit(ctx context.Context, k record.Key) string {
	if s.catalog == nil {
		return ""
	}
	unit, err := s.catalog.Unit(ctx, k.Pool, k.Channel, k.Index)
	if err != nil {
		s.logCatalogMiss("unit", k, err)
		return ""
	}
	return unit
}

// Menu returns the catalog menu visible under the permission mask, with
// each entry's current value merged in. A lightweight store (or a failing
// catalog) yields nil rather than an error.
func (s *Store) Menu(ctx context.Context, device string, permissions uint32) []Description {
	if s.catalog == nil {
		return nil
	}
	entries, err := s.catalog.Menu(ctx, permissions)
	if err != nil {
		s.logger.Warn("catalog menu unavailable", "error", err)
		return nil
	}

	out := make([]Description, 0, len(entries))
	for _, e := range entries {
		value, known := s.GetKey(device, e.Key)
		out = append(out, Description{
			Key:   e.Key,
			Value: value,
			Known: known,
			Label: e.Label,
			Unit:  e.Unit,
		})
	}
	return out
}

// logCatalogMiss records a catalog lookup failure at the right level:
// ErrNotFound is expected and only worth a debug line.
func (s *Store) logCatalogMiss(what string, k record.Key, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, catalog.ErrNotFound) {
		s.logger.Debug("catalog "+what+" not found", "key", k.String())
		return
	}
	s.logger.Warn("catalog "+what+" lookup failed", "key", k.String(), "error", err)
}
