package normalize

import (
	"fmt"
	"sort"

	"github.com/nerrad567/gray-sync-core/internal/record"
)

// Payload is a raw snapshot or delta as delivered by a collaborator:
// composite slot keys mapped to raw entries. An entry is either a bare
// scalar (the slot's value, no metadata) or an object; in an object a
// "value" field carries the value and every other field is metadata.
type Payload map[string]any

// valueField is the object field recognized as value-bearing.
const valueField = "value"

// Warning reports one payload entry that could not be normalized.
// Warnings are diagnostic only; the rest of the batch is unaffected.
type Warning struct {
	// Key is the composite key of the offending entry.
	Key string

	// Reason describes why the entry was skipped.
	Reason string
}

// String implements fmt.Stringer for logging.
func (w Warning) String() string {
	return fmt.Sprintf("entry %q skipped: %s", w.Key, w.Reason)
}

// Flatten turns a raw payload into canonical update records for one device.
//
// Entries are processed in sorted key order so the same payload always
// yields the same record sequence. Records come back with Seq zero; the
// bus assigns sequence numbers at publish time.
func Flatten(device string, p Payload) ([]record.Record, []Warning) {
	if len(p) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]record.Record, 0, len(p))
	var warnings []Warning

	for _, composite := range keys {
		key, err := record.ParseKey(composite)
		if err != nil {
			warnings = append(warnings, Warning{Key: composite, Reason: err.Error()})
			continue
		}

		value, meta, ok := splitEntry(p[composite])
		if !ok {
			warnings = append(warnings, Warning{
				Key:    composite,
				Reason: fmt.Sprintf("unrecognized entry shape %T", p[composite]),
			})
			continue
		}

		records = append(records, record.Record{
			Device:  device,
			Pool:    key.Pool,
			Channel: key.Channel,
			Index:   key.Index,
			Value:   value,
			Meta:    meta,
		})
	}

	return records, warnings
}

// splitEntry separates one raw entry into value and metadata.
//
// Scalars become the value with empty metadata. Objects contribute their
// "value" field (if any) as the value and everything else as metadata; an
// object without a value field is a metadata-only record. Nil entries are
// metadata-only with nothing to say. Any other shape is unrecognized.
func splitEntry(raw any) (record.Value, map[string]any, bool) {
	switch entry := raw.(type) {
	case nil:
		return record.None(), map[string]any{}, true

	case map[string]any:
		meta := make(map[string]any, len(entry))
		value := record.None()
		for k, v := range entry {
			if k == valueField {
				parsed, ok := record.FromAny(v)
				if !ok {
					// A value field we cannot represent poisons the
					// whole entry; metadata alone would misstate it.
					return record.None(), nil, false
				}
				value = parsed
				continue
			}
			meta[k] = v
		}
		return value, meta, true

	default:
		value, ok := record.FromAny(raw)
		if !ok {
			return record.None(), nil, false
		}
		return value, map[string]any{}, true
	}
}
