// Package dataset loads labeled URL lists and writes extracted feature tables.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
)

// Dataset errors.
var (
	ErrMissingColumn = errors.New("missing required column")
	ErrEmptyDataset  = errors.New("dataset has no usable rows")
)

// Class labels.
const (
	LabelBenign    = 0
	LabelMalicious = 1
)

// typeLabels maps the dataset's URL type column to a binary label.
var typeLabels = map[string]int{
	"benign":     LabelBenign,
	"defacement": LabelMalicious,
	"phishing":   LabelMalicious,
	"malware":    LabelMalicious,
}

// Sample is one labeled URL.
type Sample struct {
	URL   string
	Label int
}

// LabelFor maps a URL type to its label. Unknown types are reported as not ok.
func LabelFor(urlType string) (int, bool) {
	label, ok := typeLabels[strings.ToLower(strings.TrimSpace(urlType))]
	return label, ok
}

// Load reads a CSV file with "url" and "type" columns.
func Load(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read parses CSV with a header row naming "url" and "type" columns in any position.
// Rows with an unknown type or an empty URL are skipped.
func Read(r io.Reader) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	urlCol, typeCol := -1, -1

	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "url":
			urlCol = i
		case "type":
			typeCol = i
		}
	}

	if urlCol < 0 {
		return nil, fmt.Errorf("%w: url", ErrMissingColumn)
	}

	if typeCol < 0 {
		return nil, fmt.Errorf("%w: type", ErrMissingColumn)
	}

	var samples []Sample

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		if urlCol >= len(record) || typeCol >= len(record) {
			continue
		}

		label, ok := LabelFor(record[typeCol])
		url := strings.TrimSpace(record[urlCol])

		if !ok || url == "" {
			continue
		}

		samples = append(samples, Sample{URL: url, Label: label})
	}

	if len(samples) == 0 {
		return nil, ErrEmptyDataset
	}

	return samples, nil
}

// Balance draws up to perClass samples of each label at random, benign first.
// A perClass of zero keeps every sample. The same seed yields the same selection.
func Balance(samples []Sample, perClass int, seed int64) []Sample {
	byLabel := map[int][]Sample{}
	for _, s := range samples {
		byLabel[s.Label] = append(byLabel[s.Label], s)
	}

	rng := rand.New(rand.NewPCG(uint64(seed), 0))

	var out []Sample

	for _, label := range []int{LabelBenign, LabelMalicious} {
		group := byLabel[label]

		rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})

		if perClass > 0 && len(group) > perClass {
			group = group[:perClass]
		}

		out = append(out, group...)
	}

	return out
}

// Counts returns the number of samples per label.
func Counts(samples []Sample) map[int]int {
	counts := make(map[int]int, 2)
	for _, s := range samples {
		counts[s.Label]++
	}

	return counts
}
