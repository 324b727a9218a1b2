package report

import (
	"fmt"
	"strconv"
	"strings"

	"urlsentry/internal/cache"
	"urlsentry/internal/detector"
	"urlsentry/internal/features"
	"urlsentry/internal/pipeline"
)

// Features renders one row per schema entry with its value.
func Features(schema features.Schema, vector []float64) string {
	t := Table{Header: []string{"#", "feature", "value"}}

	for i, name := range schema {
		value := "-"
		if i < len(vector) {
			value = strconv.FormatFloat(vector[i], 'f', -1, 64)
		}

		t.AddRow(strconv.Itoa(i+1), name, value)
	}

	return t.Render()
}

// Explanation renders a detector result: the verdict, both class probabilities and the
// feature table.
func Explanation(schema features.Schema, res *detector.Result) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "URL:     %s\n", res.URL)
	fmt.Fprintf(&sb, "Verdict: %s\n\n", res.Verdict)

	probs := Table{Header: []string{"class", "probability"}}
	probs.AddRow("safe", fmt.Sprintf("%.2f%%", res.Probabilities.Safe*100))
	probs.AddRow("malicious", fmt.Sprintf("%.2f%%", res.Probabilities.Malicious*100))

	sb.WriteString(probs.Render())
	sb.WriteString("\n")
	sb.WriteString(Features(schema, res.Vector))

	return sb.String()
}

// RunSummary renders the counters of an extraction run.
func RunSummary(stats pipeline.Stats, cacheStats cache.Stats) string {
	t := Table{Header: []string{"metric", "count"}}

	for _, row := range []struct {
		name  string
		value int64
	}{
		{"submitted", stats.Submitted},
		{"extracted", stats.Extracted},
		{"dropped (url)", stats.DroppedURL},
		{"dropped (fetch)", stats.DroppedFetch},
		{"dropped (markup)", stats.DroppedMarkup},
		{"url memo hits", stats.MemoHits},
		{"cache hits", cacheStats.Hits},
		{"cache misses", cacheStats.Misses},
		{"cache corrupt", cacheStats.Corrupt},
		{"cache write errors", cacheStats.StoreErrors},
	} {
		t.AddRow(row.name, strconv.FormatInt(row.value, 10))
	}

	return t.Render()
}
