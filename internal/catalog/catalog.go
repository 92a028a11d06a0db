package catalog

import (
	"context"

	"github.com/nerrad567/gray-sync-core/internal/record"
)

// Catalog resolves descriptors for parameter slots. Implementations are
// read-only and best-effort: a failing catalog must never take the value
// path down with it.
type Catalog interface {
	// Label returns the human-readable name of a slot in the given
	// language, falling back to the default language when no translation
	// exists. Returns ErrNotFound if the slot is not catalogued.
	Label(ctx context.Context, pool, channel string, index int, lang string) (string, error)

	// Unit returns the display unit of a slot (e.g. "°C").
	// Returns ErrNotFound if the slot has no unit.
	Unit(ctx context.Context, pool, channel string, index int) (string, error)

	// Menu returns the catalogued slots visible under the given permission
	// mask, ordered by menu position. An entry is visible when all bits of
	// its required mask are present in permissions.
	Menu(ctx context.Context, permissions uint32) ([]MenuEntry, error)
}

// MenuEntry is one slot in the permission-filtered menu structure.
type MenuEntry struct {
	// Key addresses the slot within its pool.
	Key record.Key

	// Label is the display name in the catalog's default language.
	Label string

	// Unit is the display unit, empty if none.
	Unit string

	// Permissions is the bit mask required to see this entry.
	Permissions uint32

	// Position orders entries within the menu.
	Position int
}
