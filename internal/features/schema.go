package features

import (
	"fmt"

	"urlsentry/pkg/metadata"
)

// Schema is the ordered list of feature names fixing the meaning of each vector position.
type Schema []string

// DefaultSchema returns the lexical features followed by the structural features.
func DefaultSchema() Schema {
	return Schema(append(URLFeatureNames(), HTMLFeatureNames()...))
}

// Validate rejects empty schemas and duplicate names.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: no feature names", ErrInvalidSchema)
	}

	seen := make(map[string]struct{}, len(s))
	for i, name := range s {
		if name == "" {
			return fmt.Errorf("%w: empty name at index %d", ErrInvalidSchema, i)
		}

		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidSchema, name)
		}

		seen[name] = struct{}{}
	}

	return nil
}

// Fingerprint returns the schema hash recorded alongside models and datasets.
func (s Schema) Fingerprint() string {
	return metadata.CalculateHash(s)
}

// Index returns the position of name, or -1.
func (s Schema) Index(name string) int {
	for i, n := range s {
		if n == name {
			return i
		}
	}

	return -1
}

// Assemble merges the feature maps and projects them onto the schema order.
// Every schema name must be present; missing names are reported, never defaulted.
func Assemble(schema Schema, maps ...FeatureMap) ([]float64, error) {
	merged := Merge(maps...)

	vector := make([]float64, len(schema))

	var missing []string

	for i, name := range schema {
		v, ok := merged[name]
		if !ok {
			missing = append(missing, name)
			continue
		}

		vector[i] = v
	}

	if len(missing) > 0 {
		return nil, &SchemaMismatchError{Missing: missing}
	}

	return vector, nil
}
