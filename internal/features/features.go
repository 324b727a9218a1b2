// Package features turns a URL and its fetched markup into the numeric feature maps and
// schema-ordered vectors consumed by the classifier.
package features

import (
	"errors"
	"fmt"
	"strings"
)

// Extraction errors.
var (
	ErrURLParse       = errors.New("url parse error")
	ErrMarkupParse    = errors.New("markup parse error")
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrInvalidSchema  = errors.New("invalid feature schema")
)

// FeatureMap maps a feature name to its numeric value.
type FeatureMap map[string]float64

// Merge returns a new map holding the union of maps. Later maps win on key collisions.
func Merge(maps ...FeatureMap) FeatureMap {
	size := 0
	for _, m := range maps {
		size += len(m)
	}

	merged := make(FeatureMap, size)
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}

	return merged
}

// SchemaMismatchError reports schema names absent from the merged feature map.
type SchemaMismatchError struct {
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: missing features [%s]", ErrSchemaMismatch, strings.Join(e.Missing, ", "))
}

// Is lets errors.Is match ErrSchemaMismatch.
func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}
