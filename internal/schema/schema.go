// Package schema builds the per-record-type IndexHelper set a Grove is
// generated from (spec.md §3, §4.2). A schema is built once, at Grove
// construction time, by walking an application record type's fields with
// reflect; every non-ignored field becomes a direct index, and callers
// additionally register derived fields computed by a pure function of the
// record.
//
// Grounded on storage_engine/catalog's declarative schema registry
// (TableSchema/ColumnDef), generalized from an explicit SQL column list to
// a reflect-driven struct walk. Builder.Build walks and validates the
// record type once and precomputes one closure per index; a direct index's
// closure still reads its field through reflect for every record it
// projects, so the write path (Grove.put) does use reflect per record.
package schema

import (
	"fmt"
	"reflect"
)

// IndexHelper is the per-index projection described in spec.md §4.2: it
// extracts a field's value from a record (directly, or via a derived
// function) and normalizes it into a composite-key payload. Width is
// either 64 or 128, per spec.md §3's normalization rule.
type IndexHelper[R any] struct {
	Name    string
	Width   int
	derived bool
	derive  func(R) (hi, lo uint64, present bool)
}

// Derive extracts this index's value from record r. present is false only
// for derived fields the projection function declines to produce; direct
// fields are always present.
func (h IndexHelper[R]) Derive(r R) (hi, lo uint64, present bool) {
	return h.derive(r)
}

// IsDerived reports whether this index comes from a registered derived
// function rather than a direct struct field.
func (h IndexHelper[R]) IsDerived() bool { return h.derived }

// Schema is the build-time-fixed set of indexes generated for record type
// R, plus the name of its timestamp field.
type Schema[R any] struct {
	TimestampField string
	Indexes        []IndexHelper[R]
}

// Builder composes a Schema[R] field by field.
type Builder[R any] struct {
	ignore      map[string]bool
	derived     []derivedSpec[R]
	timestampOK bool
}

type derivedSpec[R any] struct {
	name  string
	width int
	fn    func(R) (hi, lo uint64, present bool)
}

// NewBuilder starts composing a schema for record type R.
func NewBuilder[R any]() *Builder[R] {
	return &Builder[R]{ignore: make(map[string]bool)}
}

// Ignore excludes the named fields from index generation entirely. This
// implements the documented intent behind the source's "ignored" vs.
// "ignore" naming (spec.md §9 Open Questions): skip these fields when
// generating indexes, full stop — no vestigial always-false flag.
func (b *Builder[R]) Ignore(fieldNames ...string) *Builder[R] {
	for _, n := range fieldNames {
		b.ignore[n] = true
	}
	return b
}

// Derived registers a derived index: name, its normalized width (64 or
// 128), and a pure projection function that may decline to produce a
// value (present=false) for a given record. For a field is absent, derive
// must return present=false — absence is distinct from a zero value
// (spec.md §9 "Absence vs. zero for derived indexes").
func (b *Builder[R]) Derived(name string, width int, fn func(R) (hi, lo uint64, present bool)) *Builder[R] {
	b.derived = append(b.derived, derivedSpec[R]{name: name, width: width, fn: fn})
	return b
}

// Build walks R's struct fields and produces the final Schema, validating
// every direct index field's type at composition time (spec.md §4.2
// "Errors at composition time").
func (b *Builder[R]) Build() (*Schema[R], error) {
	var zero R
	t := reflect.TypeOf(zero)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: record type must be a struct")
	}

	tsField, ok := t.FieldByName("Timestamp")
	if !ok {
		return nil, fmt.Errorf("schema: record type %s has no Timestamp field", t.Name())
	}
	if tsField.Type.Kind() != reflect.Uint64 {
		return nil, fmt.Errorf("schema: Timestamp field must be uint64, got %s", tsField.Type)
	}

	var indexes []IndexHelper[R]
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Name == "Timestamp" || b.ignore[f.Name] {
			continue
		}
		width, widen, err := widthAndWidener(f.Type)
		if err != nil {
			return nil, fmt.Errorf("schema: field %s: %w", f.Name, err)
		}
		fieldIndex := i
		indexes = append(indexes, IndexHelper[R]{
			Name:  f.Name,
			Width: width,
			derive: func(r R) (uint64, uint64, bool) {
				fv := reflect.ValueOf(r).Field(fieldIndex)
				hi, lo := widen(fv)
				return hi, lo, true
			},
		})
	}

	for _, d := range b.derived {
		if d.width != 64 && d.width != 128 {
			return nil, fmt.Errorf("schema: derived field %s: unsupported width %d", d.name, d.width)
		}
		indexes = append(indexes, IndexHelper[R]{
			Name:    d.name,
			Width:   d.width,
			derived: true,
			derive:  d.fn,
		})
	}

	return &Schema[R]{TimestampField: "Timestamp", Indexes: indexes}, nil
}

// widthAndWidener validates a direct index field's Go type against
// spec.md §3 ("unsigned integer or an enum with an unsigned tag, of
// bit-width <= 128") and returns its normalized width plus a function
// that widens a reflect.Value of that type into a (hi, lo) pair.
func widthAndWidener(t reflect.Type) (int, func(reflect.Value) (uint64, uint64), error) {
	switch t.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint, reflect.Uintptr:
		return 64, func(v reflect.Value) (uint64, uint64) {
			return 0, v.Uint()
		}, nil
	case reflect.Array:
		// A [2]uint64-shaped array models a 128-bit unsigned field
		// (e.g. a u128 account ID) the way the teacher's RowPointer
		// packs multi-word identifiers.
		if t.Elem().Kind() == reflect.Uint64 && t.Len() == 2 {
			return 128, func(v reflect.Value) (uint64, uint64) {
				return v.Index(0).Uint(), v.Index(1).Uint()
			}, nil
		}
		return 0, nil, fmt.Errorf("unsupported array field type %s", t)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return 0, nil, fmt.Errorf("signed integer fields cannot be indexed")
	default:
		return 0, nil, fmt.Errorf("unsupported field type %s (must be unsigned integer, enum tag, or [2]uint64)", t)
	}
}
