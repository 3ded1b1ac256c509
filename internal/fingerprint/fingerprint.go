// Package fingerprint summarises file content so that two observations of
// "the file changed" can be compared for a real content change.
//
// Content fingerprints hash the bytes with xxhash64. Stat fingerprints use
// size and modification time and are the cheap fallback for large files.
// Timestamps alone are never trusted when a hash is available: mtime
// granularity on some filesystems is coarser than the debounce window.
package fingerprint

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Mode selects how fingerprints are taken from disk.
type Mode string

const (
	// ModeContent hashes the full file content.
	ModeContent Mode = "content"
	// ModeStat uses size and modification time only.
	ModeStat Mode = "stat"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeContent || m == ModeStat
}

// Fingerprint is a comparable summary of a file's content.
// The zero value is the fingerprint of a file that does not exist.
type Fingerprint struct {
	ModTime time.Time
	Size    int64
	Hash    uint64
	Exists  bool
	Hashed  bool
}

// Missing is the fingerprint of an absent file.
var Missing = Fingerprint{}

// Of returns the content fingerprint of b.
func Of(b []byte) Fingerprint {
	return Fingerprint{
		Exists: true,
		Size:   int64(len(b)),
		Hash:   xxhash.Sum64(b),
		Hashed: true,
	}
}

// Equal reports whether f and o describe the same content.
//
// Two hashed fingerprints compare by hash and size. Otherwise the comparison
// falls back to size and modification time, and a hashed fingerprint without
// a modification time never matches an unhashed one.
func (f Fingerprint) Equal(o Fingerprint) bool {
	if f.Exists != o.Exists {
		return false
	}
	if !f.Exists {
		return true
	}
	if f.Hashed && o.Hashed {
		return f.Hash == o.Hash && f.Size == o.Size
	}
	if f.ModTime.IsZero() || o.ModTime.IsZero() {
		return false
	}
	return f.Size == o.Size && f.ModTime.Equal(o.ModTime)
}

// Comparable reports whether f and o can be compared by content hash.
func (f Fingerprint) Comparable(o Fingerprint) bool {
	return f.Exists && o.Exists && f.Hashed && o.Hashed
}

// String returns a short human-readable form.
func (f Fingerprint) String() string {
	switch {
	case !f.Exists:
		return "missing"
	case f.Hashed:
		return fmt.Sprintf("xxh:%016x/%d", f.Hash, f.Size)
	default:
		return fmt.Sprintf("stat:%d@%d", f.Size, f.ModTime.UnixNano())
	}
}
