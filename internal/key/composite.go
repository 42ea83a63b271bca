// Package key implements the fixed-width composite keys that back every
// index tree: a (payload, timestamp) pair, ordered lexicographically on
// payload then timestamp. Two specializations exist, Value64
// (CompositeKey64) and Value128 (CompositeKey128), so the tree machinery monomorphizes exactly twice
// regardless of how many distinct field types a schema indexes.
package key

import "math/bits"

// Value64 is the 64-bit-payload composite key. Its Deleted field marks a
// logically-deleted index entry; it is distinct from the object tree's
// timestamp tombstone bit (objecttree's high bit of the timestamp) — the
// two encodings are never merged.
//
// Index payloads are application field values; the widest field this
// subsystem supports is 128 bits, so rather than stealing a bit from the
// payload itself (which would silently truncate a legitimate field value)
// the tombstone is carried alongside the payload/timestamp pair as an
// explicit third field. This keeps a key whose payload is all ones
// distinguishable from a tombstoned entry with the same payload.
type Value64 struct {
	Payload   uint64
	Timestamp uint64
	Deleted   bool
}

// Compare64 orders two CompositeKey64 values lexicographically on
// (Payload, Timestamp), ignoring the tombstone bit (tombstones and live
// entries with the same payload/timestamp are the same key for ordering
// purposes; the bit only affects read-time visibility).
func Compare64(a, b Value64) int {
	if a.Payload != b.Payload {
		if a.Payload < b.Payload {
			return -1
		}
		return 1
	}
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	return 0
}

// Sentinel64 is the maximum CompositeKey64: strictly greater than every
// other key under Compare64.
func Sentinel64() Value64 {
	return Value64{Payload: ^uint64(0), Timestamp: ^uint64(0)}
}

// Tombstone64 returns v with the tombstone bit set.
func Tombstone64(v Value64) Value64 {
	v.Deleted = true
	return v
}

// IsTombstone64 reports whether v is a tombstone entry.
func IsTombstone64(v Value64) bool { return v.Deleted }

// Value128 is the 128-bit-payload specialization, used for fields whose
// normalized width exceeds 64 bits (spec: widths in (64, 128] normalize to
// 128 bits). The payload is split into high/low 64-bit halves rather than
// a single math/big.Int to keep the type fixed-size and comparable with
// ==.
type Value128 struct {
	PayloadHi uint64
	PayloadLo uint64
	Timestamp uint64
	Deleted   bool
}

// Compare128 orders two CompositeKey128 values lexicographically on
// (Payload, Timestamp), payload compared as a 128-bit unsigned integer via
// its high/low halves.
func Compare128(a, b Value128) int {
	if a.PayloadHi != b.PayloadHi {
		if a.PayloadHi < b.PayloadHi {
			return -1
		}
		return 1
	}
	if a.PayloadLo != b.PayloadLo {
		if a.PayloadLo < b.PayloadLo {
			return -1
		}
		return 1
	}
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	return 0
}

// Sentinel128 is the maximum CompositeKey128.
func Sentinel128() Value128 {
	return Value128{PayloadHi: ^uint64(0), PayloadLo: ^uint64(0), Timestamp: ^uint64(0)}
}

// Tombstone128 returns v with the tombstone bit set.
func Tombstone128(v Value128) Value128 {
	v.Deleted = true
	return v
}

// IsTombstone128 reports whether v is a tombstone entry.
func IsTombstone128(v Value128) bool { return v.Deleted }

// PackU128 returns the high and low 64-bit halves of a 128-bit unsigned
// payload as given; it performs no conversion.
func PackU128(hi, lo uint64) (uint64, uint64) { return hi, lo }

// widthOf returns the number of significant bits in the 128-bit value
// hi:lo.
func widthOf(hi, lo uint64) int {
	if hi != 0 {
		return 64 + bits.Len64(hi)
	}
	return bits.Len64(lo)
}

// WidthOf128 reports the significant bit width of a 128-bit payload.
func WidthOf128(hi, lo uint64) int { return widthOf(hi, lo) }
