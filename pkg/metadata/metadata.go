// Package metadata fingerprints feature schemas so that model artifacts and extracted datasets
// can prove they were built against the same feature order.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Metadata verification errors.
var (
	ErrNoHashFound  = errors.New("no schema hash found in metadata")
	ErrHashMismatch = errors.New("schema hash mismatch")
)

// Metadata describes the schema a model artifact or dataset was produced with.
type Metadata struct {
	CreatedAt    time.Time `json:"created_at,omitempty"`
	Version      string    `json:"version,omitempty"`
	SchemaHash   string    `json:"schema_hash"`
	FeatureCount int       `json:"feature_count"`
}

// CalculateHash computes the SHA-256 of the ordered feature names.
// Reordering, renaming, adding or dropping a name changes the hash.
func CalculateHash(names []string) string {
	hash := sha256.Sum256([]byte(strings.Join(names, "\n")))

	return hex.EncodeToString(hash[:])
}

// Sign builds fresh metadata for names.
func Sign(names []string, version string) *Metadata {
	return &Metadata{
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
		Version:      version,
		SchemaHash:   CalculateHash(names),
		FeatureCount: len(names),
	}
}

// Verify checks that names hash to the value recorded in meta.
func Verify(meta *Metadata, names []string) error {
	if meta == nil || meta.SchemaHash == "" {
		return ErrNoHashFound
	}

	calculated := CalculateHash(names)
	if calculated != meta.SchemaHash {
		return fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, meta.SchemaHash, calculated)
	}

	return nil
}
