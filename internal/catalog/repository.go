package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// defaultLang is the fallback language for labels without a translation.
const defaultLang = "en"

// SQLiteRepository implements Catalog backed by the slot_labels, slot_units
// and menu_entries tables (see migrations/).
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed catalog.
// The db parameter should be an open SQLite connection with migrations applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Label returns the slot label in the requested language, falling back to
// the default language.
func (r *SQLiteRepository) Label(ctx context.Context, pool, channel string, index int, lang string) (string, error) {
	if lang == "" {
		lang = defaultLang
	}

	query := `
		SELECT label FROM slot_labels
		WHERE pool = ? AND channel = ? AND idx = ? AND lang IN (?, ?)
		ORDER BY CASE lang WHEN ? THEN 0 ELSE 1 END
		LIMIT 1`

	var label string
	err := r.db.QueryRowContext(ctx, query, pool, channel, index, lang, defaultLang, lang).Scan(&label)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: querying label: %w", ErrUnavailable, err)
	}
	return label, nil
}

// Unit returns the display unit of a slot.
func (r *SQLiteRepository) Unit(ctx context.Context, pool, channel string, index int) (string, error) {
	query := `
		SELECT unit FROM slot_units
		WHERE pool = ? AND channel = ? AND idx = ?`

	var unit string
	err := r.db.QueryRowContext(ctx, query, pool, channel, index).Scan(&unit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: querying unit: %w", ErrUnavailable, err)
	}
	return unit, nil
}

// Menu returns the menu entries visible under the given permission mask.
func (r *SQLiteRepository) Menu(ctx context.Context, permissions uint32) ([]MenuEntry, error) {
	query := `
		SELECT m.pool, m.channel, m.idx, m.permissions, m.position,
			COALESCE(l.label, ''), COALESCE(u.unit, '')
		FROM menu_entries m
		LEFT JOIN slot_labels l
			ON l.pool = m.pool AND l.channel = m.channel AND l.idx = m.idx AND l.lang = ?
		LEFT JOIN slot_units u
			ON u.pool = m.pool AND u.channel = m.channel AND u.idx = m.idx
		ORDER BY m.position`

	rows, err := r.db.QueryContext(ctx, query, defaultLang)
	if err != nil {
		return nil, fmt.Errorf("%w: querying menu: %w", ErrUnavailable, err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var entries []MenuEntry
	for rows.Next() {
		var e MenuEntry
		var required uint32
		if err := rows.Scan(&e.Key.Pool, &e.Key.Channel, &e.Key.Index,
			&required, &e.Position, &e.Label, &e.Unit); err != nil {
			return nil, fmt.Errorf("%w: scanning menu entry: %w", ErrUnavailable, err)
		}
		e.Permissions = required

		// Visible only when the caller holds every required bit.
		if permissions&required != required {
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating menu entries: %w", ErrUnavailable, err)
	}
	return entries, nil
}
