package features

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexical feature names, in schema order.
const (
	URLLength          = "url_length"
	DomainLength       = "domain_length"
	PathLength         = "path_length"
	SubdomainCount     = "subdomain_count"
	DigitCount         = "digit_count"
	LetterCount        = "letter_count"
	SpecialCharCount   = "special_char_count"
	HasHTTPS           = "has_https"
	DotsInDomain       = "dots_in_domain"
	HasSuspiciousWords = "has_suspicious_words"
	HasIPAddress       = "has_ip_address"
)

// SuspiciousWords is the vocabulary scored by has_suspicious_words.
var SuspiciousWords = []string{"login", "signin", "verify", "secure", "account", "password", "bank", "update"}

// punctuationFeatures maps each counted character to its feature name. The underscore
// count is named "_count" in persisted schemas, not "__count".
var punctuationFeatures = []struct {
	char rune
	name string
}{
	{'@', "@_count"},
	{'-', "-_count"},
	{'_', "_count"},
	{'=', "=_count"},
	{'&', "&_count"},
	{';', ";_count"},
	{'%', "%_count"},
	{'$', "$_count"},
	{'#', "#_count"},
}

var ipPrefixPattern = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+`)

// URLFeatureNames returns the keys produced by ExtractURLFeatures, in schema order.
func URLFeatureNames() []string {
	names := []string{
		URLLength, DomainLength, PathLength, SubdomainCount,
		DigitCount, LetterCount, SpecialCharCount, HasHTTPS,
		DotsInDomain, HasSuspiciousWords, HasIPAddress,
	}

	for _, p := range punctuationFeatures {
		names = append(names, p.name)
	}

	return names
}

// ExtractURLFeatures computes the lexical features of raw without network access.
// A URL that does not parse yields ErrURLParse and no map.
func ExtractURLFeatures(raw string) (FeatureMap, error) {
	if err := CheckURL(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrURLParse, err)
	}

	parts := SplitURL(raw)

	var digits, letters, others int

	for _, r := range raw {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		default:
			others++
		}
	}

	f := FeatureMap{
		URLLength:          float64(utf8.RuneCountInString(raw)),
		DomainLength:       float64(utf8.RuneCountInString(parts.Authority)),
		PathLength:         float64(utf8.RuneCountInString(parts.Path)),
		SubdomainCount:     float64(subdomainCount(parts.Authority)),
		DigitCount:         float64(digits),
		LetterCount:        float64(letters),
		SpecialCharCount:   float64(others),
		HasHTTPS:           flag(parts.Scheme == "https"),
		DotsInDomain:       float64(strings.Count(parts.Authority, ".")),
		HasSuspiciousWords: float64(suspiciousWordCount(raw)),
		HasIPAddress:       flag(ipPrefixPattern.MatchString(parts.Authority)),
	}

	for _, p := range punctuationFeatures {
		f[p.name] = float64(strings.Count(raw, string(p.char)))
	}

	return f, nil
}

// subdomainCount is the number of dot-separated labels minus one; an empty authority has
// no labels and clamps to zero instead of going negative.
func subdomainCount(authority string) int {
	if authority == "" {
		return 0
	}

	return len(strings.Split(authority, ".")) - 1
}

func suspiciousWordCount(raw string) int {
	lower := strings.ToLower(raw)

	n := 0
	for _, w := range SuspiciousWords {
		if strings.Contains(lower, w) {
			n++
		}
	}

	return n
}

func flag(b bool) float64 {
	if b {
		return 1
	}

	return 0
}
