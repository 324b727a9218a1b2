package features

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Structural feature names, in schema order.
const (
	ScriptCount     = "script_count"
	LinkCount       = "link_count"
	FormCount       = "form_count"
	InputCount      = "input_count"
	IframeCount     = "iframe_count"
	ImgCount        = "img_count"
	PasswordFields  = "password_fields"
	ExternalLinks   = "external_links"
	InternalLinks   = "internal_links"
	HTTPSLinks      = "https_links"
	SuspiciousLinks = "suspicious_links"
	TextLength      = "text_length"
	TitleLength     = "title_length"
	MetaTags        = "meta_tags"
	HiddenElements  = "hidden_elements"
)

var hiddenStylePattern = regexp.MustCompile(`display:\s*none`)

// HTMLFeatureNames returns the keys produced by ExtractHTMLFeatures, in schema order.
func HTMLFeatureNames() []string {
	return []string{
		ScriptCount, LinkCount, FormCount, InputCount,
		IframeCount, ImgCount, PasswordFields, ExternalLinks,
		InternalLinks, HTTPSLinks, SuspiciousLinks, TextLength,
		TitleLength, MetaTags, HiddenElements,
	}
}

// ParseHTML parses a fetched body into a document. An empty body is not content.
func ParseHTML(body string) (*goquery.Document, error) {
	if body == "" {
		return nil, fmt.Errorf("%w: empty body", ErrMarkupParse)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMarkupParse, err)
	}

	return doc, nil
}

// ExtractHTMLFeatures computes the structural features of doc. Domain is the authority of the
// requesting URL and decides whether absolute links count as internal or external.
func ExtractHTMLFeatures(doc *goquery.Document, domain string) (f FeatureMap, err error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: no document", ErrMarkupParse)
	}

	defer func() {
		if r := recover(); r != nil {
			f, err = nil, fmt.Errorf("%w: %v", ErrMarkupParse, r)
		}
	}()

	f = FeatureMap{
		ScriptCount:     count(doc, "script"),
		LinkCount:       count(doc, "a"),
		FormCount:       count(doc, "form"),
		InputCount:      count(doc, "input"),
		IframeCount:     count(doc, "iframe"),
		ImgCount:        count(doc, "img"),
		PasswordFields:  count(doc, `input[type="password"]`),
		ExternalLinks:   0,
		InternalLinks:   0,
		HTTPSLinks:      0,
		SuspiciousLinks: 0,
		TextLength:      float64(textLength(doc)),
		TitleLength:     float64(titleLength(doc)),
		MetaTags:        count(doc, "meta"),
		HiddenElements:  float64(hiddenCount(doc)),
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.HasPrefix(href, "http") {
			return
		}

		target := SplitURL(href)
		if target.Authority != domain {
			f[ExternalLinks]++
		} else {
			f[InternalLinks]++
		}

		if target.Scheme == "https" {
			f[HTTPSLinks]++
		}
	})

	return f, nil
}

func count(doc *goquery.Document, selector string) float64 {
	return float64(doc.Find(selector).Length())
}

func titleLength(doc *goquery.Document) int {
	title := doc.Find("title").First()
	if title.Length() == 0 {
		return 0
	}

	return utf8.RuneCountInString(title.Text())
}

func hiddenCount(doc *goquery.Document) int {
	return doc.Find("[style]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		style, _ := s.Attr("style")
		return hiddenStylePattern.MatchString(style)
	}).Length()
}

// textLength counts the characters of every rendered text node. Script, style and template
// bodies are not rendered text and comments are not text nodes.
func textLength(doc *goquery.Document) int {
	n := 0

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			n += utf8.RuneCountInString(node.Data)
			return
		}

		if node.Type == html.ElementNode {
			switch node.Data {
			case "script", "style", "template":
				return
			}
		}

		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	for _, root := range doc.Nodes {
		walk(root)
	}

	return n
}
