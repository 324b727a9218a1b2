package features

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// URLParts holds the components of a URL split the way generic URL parsers do,
// without decoding or validation.
type URLParts struct {
	Scheme    string
	Authority string
	Path      string
}

// SplitURL splits raw into scheme, authority and path. The scheme is lower-cased and only
// recognized when it is a valid scheme token; the authority is only present when "//"
// follows the scheme. The path ends at '?', '#', or a ";params" suffix on its last segment.
func SplitURL(raw string) URLParts {
	var parts URLParts

	rest := raw

	if i := strings.IndexByte(rest, ':'); i > 0 && isSchemeToken(rest[:i]) {
		parts.Scheme = strings.ToLower(rest[:i])
		rest = rest[i+1:]
	}

	if strings.HasPrefix(rest, "//") {
		rest = rest[2:]

		end := strings.IndexAny(rest, "/?#")
		if end < 0 {
			end = len(rest)
		}

		parts.Authority = rest[:end]
		rest = rest[end:]
	}

	if end := strings.IndexAny(rest, "?#"); end >= 0 {
		rest = rest[:end]
	}

	lastSlash := strings.LastIndexByte(rest, '/')
	if semi := strings.IndexByte(rest[lastSlash+1:], ';'); semi >= 0 {
		rest = rest[:lastSlash+1+semi]
	}

	parts.Path = rest

	return parts
}

func isSchemeToken(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}

	return s != ""
}

// CheckURL rejects input that cannot be split into URL components at all: invalid UTF-8,
// control characters and an authority with an unbalanced IPv6 bracket. Stray '%' signs,
// spaces and other characters a strict parser would refuse are accepted.
func CheckURL(raw string) error {
	if !utf8.ValidString(raw) {
		return errors.New("invalid UTF-8")
	}

	for _, r := range raw {
		if unicode.IsControl(r) {
			return errors.New("control character in URL")
		}
	}

	authority := SplitURL(raw).Authority
	if strings.Contains(authority, "[") != strings.Contains(authority, "]") {
		return errors.New("invalid IPv6 URL")
	}

	return nil
}

// Hostname returns the lower-cased host of the authority without userinfo, port or IPv6
// brackets.
func (p URLParts) Hostname() string {
	host := p.Authority
	if at := strings.LastIndexByte(host, '@'); at >= 0 {
		host = host[at+1:]
	}

	if strings.HasPrefix(host, "[") {
		if end := strings.IndexByte(host, ']'); end >= 0 {
			return strings.ToLower(host[1:end])
		}

		return ""
	}

	if colon := strings.LastIndexByte(host, ':'); colon >= 0 {
		host = host[:colon]
	}

	return strings.ToLower(host)
}
