package index

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
	"github.com/Aman-CERP/semindex/internal/store"
)

// ChangeKind classifies a file against its index record.
type ChangeKind int

const (
	// ChangeNew means the file has no committed record.
	ChangeNew ChangeKind = iota
	// ChangeModified means the content differs from the committed fingerprint.
	ChangeModified
	// ChangeUnchanged means the content matches the committed fingerprint.
	ChangeUnchanged
	// ChangeDeleted means the file no longer exists.
	ChangeDeleted
)

// String returns the change name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeNew:
		return "new"
	case ChangeModified:
		return "modified"
	case ChangeUnchanged:
		return "unchanged"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is the outcome of classifying one file. Content holds the bytes
// that were fingerprinted so callers do not read the file twice.
type Change struct {
	Kind        ChangeKind
	Path        string
	Fingerprint string
	Content     []byte
	Previous    *store.IndexRecord
}

// ChangeDetector compares files on disk with their index records.
// It never writes.
type ChangeDetector struct {
	paths   pathResolver
	records store.RecordStore
}

// NewChangeDetector creates a detector for files under root.
func NewChangeDetector(root string, records store.RecordStore) *ChangeDetector {
	return &ChangeDetector{paths: pathResolver{root: root}, records: records}
}

// Fingerprint returns the SHA-1 hex digest of the file's raw bytes.
func (d *ChangeDetector) Fingerprint(path string) (string, error) {
	abs, _ := d.paths.resolve(path)
	content, err := os.ReadFile(abs)
	if err != nil {
		return "", semerrors.ReadError(path, err)
	}
	return fingerprint(content), nil
}

// Classify reads path once and classifies it against its record.
// A record carrying a write intent never classifies as Unchanged: the
// store may hold a partial update that has to be replaced.
func (d *ChangeDetector) Classify(ctx context.Context, path string) (Change, error) {
	abs, key := d.paths.resolve(path)
	change := Change{Path: key}

	prev, err := d.records.Get(ctx, key)
	if err != nil {
		return change, err
	}
	change.Previous = prev

	content, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			change.Kind = ChangeDeleted
			return change, nil
		}
		return change, semerrors.ReadError(key, err)
	}
	change.Content = content
	change.Fingerprint = fingerprint(content)

	switch {
	case !prev.Committed():
		change.Kind = ChangeNew
	case len(prev.PendingIDs) > 0 || prev.Fingerprint != change.Fingerprint:
		change.Kind = ChangeModified
	default:
		change.Kind = ChangeUnchanged
	}
	return change, nil
}

func fingerprint(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}
