// Package registry assigns each tree a stable 128-bit identity digest and
// asserts those digests are pairwise unique within a Forest (spec.md §6
// "Schema identity (planned)"). Grounded on storage_engine/catalog's
// map-based table registry, narrowed from a SQL table/file-id mapping
// down to just the digest-uniqueness concern this subsystem needs.
package registry

import (
	"bytes"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Digest is a 128-bit tree-identity digest. The spec leaves the exact
// hash choice negotiable ("documented in source as Blake3-truncated");
// here it is two xxhash.Sum64 passes over the same input with distinct
// seed suffixes, folded into 16 bytes. It is not a cryptographic digest —
// nothing in this subsystem requires one — only stability across builds
// and, within one Forest, pairwise disjointness.
type Digest [16]byte

// Compute derives the digest for grove_name || tree_name, as spec.md §6
// specifies.
func Compute(groveName, treeName string) Digest {
	input := groveName + "\x00" + treeName

	h1 := xxhash.Sum64String(input + "\x00seed-a")
	h2 := xxhash.Sum64String(input + "\x00seed-b")

	var d Digest
	for i := 0; i < 8; i++ {
		d[i] = byte(h1 >> (8 * i))
		d[8+i] = byte(h2 >> (8 * i))
	}
	return d
}

// Registry tracks the digests assigned so far within one Forest and
// rejects a collision at assignment time rather than silently
// overwriting it.
type Registry struct {
	byDigest map[Digest]string // digest -> "groveName/treeName"
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byDigest: make(map[Digest]string)}
}

// Assign computes and records the digest for groveName/treeName, failing
// with an error (a build-time configuration error per spec.md §7) if it
// collides with a digest already recorded in this Registry.
func (r *Registry) Assign(groveName, treeName string) (Digest, error) {
	d := Compute(groveName, treeName)
	label := groveName + "/" + treeName
	if existing, collides := r.byDigest[d]; collides {
		return Digest{}, &CollisionError{New: label, Existing: existing}
	}
	r.byDigest[d] = label
	return d, nil
}

// Digests returns every digest assigned so far, sorted for a stable
// checkpoint metadata encoding.
func (r *Registry) Digests() []Digest {
	out := make([]Digest, 0, len(r.byDigest))
	for d := range r.byDigest {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// CollisionError reports two tree names that hashed to the same digest.
type CollisionError struct {
	New      string
	Existing string
}

func (e *CollisionError) Error() string {
	return "registry: digest collision between \"" + e.Existing + "\" and \"" + e.New + "\""
}
