package ttl

import (
	"regexp"
	"strings"

	"github.com/paulmach/osm"
)

// ignoredKey is dropped from every element
const ignoredKey = "created_by"

var (
	reLocalName      = regexp.MustCompile(`^[0-9a-zA-Z_]([-:0-9a-zA-Z_]{0,58}[0-9a-zA-Z_])?$`)
	reWikidataValue  = regexp.MustCompile(`^Q[1-9][0-9]{0,18}$`)
	reWikidataMulti  = regexp.MustCompile(`^Q[1-9][0-9]{0,18}(;Q[1-9][0-9]{0,18})+$`)
	reWikipediaValue = regexp.MustCompile(`^([-a-z]+):(.+)$`)
)

// AddTags renders every tag of an element
func (b *Builder) AddTags(tags osm.Tags) {
	for _, t := range tags {
		b.AddTag(t.Key, t.Value)
	}
}

// AddTag renders a single tag. Keys that cannot be used as a Turtle local
// name are kept under osmm:badkey with their value.
func (b *Builder) AddTag(key, value string) {
	if key == ignoredKey {
		return
	}
	if !reLocalName.MatchString(key) {
		b.AddString("osmm:badkey", value)
		return
	}

	b.buf = append(b.buf, "osmt:"...)
	b.buf = append(b.buf, key...)
	b.buf = append(b.buf, ' ')

	switch {
	case strings.Contains(key, "wikidata"):
		if b.appendWikidata(value) {
			return
		}
	case strings.Contains(key, "wikipedia"):
		if b.appendWikipedia(value) {
			return
		}
	}

	b.appendQuoted(value)
	b.buf = append(b.buf, ";\n"...)
}

// appendWikidata writes `wd:Q1;` or `wd:Q1, wd:Q2;` and reports whether the
// value was an entity reference.
func (b *Builder) appendWikidata(value string) bool {
	if reWikidataValue.MatchString(value) {
		b.buf = append(b.buf, "wd:"...)
		b.buf = append(b.buf, value...)
		b.buf = append(b.buf, ";\n"...)
		return true
	}
	if !reWikidataMulti.MatchString(value) {
		return false
	}
	for i, id := range strings.Split(value, ";") {
		if i > 0 {
			b.buf = append(b.buf, ", "...)
		}
		b.buf = append(b.buf, "wd:"...)
		b.buf = append(b.buf, id...)
	}
	b.buf = append(b.buf, ";\n"...)
	return true
}

// appendWikipedia writes `<https://{lang}.wikipedia.org/wiki/{title}>;` for
// values of the form "lang:Title".
func (b *Builder) appendWikipedia(value string) bool {
	m := reWikipediaValue.FindStringSubmatch(value)
	if m == nil {
		return false
	}
	b.buf = append(b.buf, "<https://"...)
	b.buf = append(b.buf, m[1]...)
	b.buf = append(b.buf, ".wikipedia.org/wiki/"...)
	b.buf = appendPercentEncoded(b.buf, strings.ReplaceAll(m[2], " ", "_"))
	b.buf = append(b.buf, ">;\n"...)
	return true
}

const upperHex = "0123456789ABCDEF"

// appendPercentEncoded escapes a wiki title for use inside an IRI.
// Controls, non-ASCII bytes, the sub-delimiters used by MediaWiki anchors and
// every character Turtle forbids inside <...> are encoded.
func appendPercentEncoded(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldEscape(c) {
			dst = append(dst, '%', upperHex[c>>4], upperHex[c&0x0f])
			continue
		}
		dst = append(dst, c)
	}
	return dst
}

func shouldEscape(c byte) bool {
	if c < 0x20 || c >= 0x7f {
		return true
	}
	switch c {
	case ';', '@', '$', '!', '*', '(', ')', ',', '/', '~', ':', '#':
		return true
	case ' ', '"', '<', '>', '\\', '^', '`', '{', '|', '}':
		return true
	}
	return false
}
