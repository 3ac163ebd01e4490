package ttl

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

const timestampLayout = "2006-01-02T15:04:05.999Z07:00"

// Builder accumulates the body of one element block.
// The buffer is reused across elements; Finalize hands out a copy.
type Builder struct {
	buf []byte
}

// NewBuilder creates a builder with a pre-allocated buffer
func NewBuilder(initialSize int) *Builder {
	return &Builder{buf: make([]byte, 0, initialSize)}
}

// Reset clears the buffer for reuse
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

// Empty reports whether no clause has been added since the last reset
func (b *Builder) Empty() bool {
	return len(b.buf) == 0
}

// Len returns the number of buffered bytes
func (b *Builder) Len() int {
	return len(b.buf)
}

// AddString adds `predicate "value";`
func (b *Builder) AddString(predicate, value string) {
	b.buf = append(b.buf, predicate...)
	b.buf = append(b.buf, ' ')
	b.appendQuoted(value)
	b.buf = append(b.buf, ";\n"...)
}

// AddBool adds a typed xsd:boolean clause
func (b *Builder) AddBool(predicate string, v bool) {
	b.buf = append(b.buf, predicate...)
	b.buf = append(b.buf, " \""...)
	b.buf = strconv.AppendBool(b.buf, v)
	b.buf = append(b.buf, "\"^^xsd:boolean;\n"...)
}

// AddInt adds a typed xsd:integer clause
func (b *Builder) AddInt(predicate string, v int64) {
	b.buf = append(b.buf, predicate...)
	b.buf = append(b.buf, " \""...)
	b.buf = strconv.AppendInt(b.buf, v, 10)
	b.buf = append(b.buf, "\"^^xsd:integer;\n"...)
}

// AddDate adds a typed xsd:dateTime clause for a millisecond timestamp
func (b *Builder) AddDate(predicate string, ms int64) {
	b.buf = append(b.buf, predicate...)
	b.buf = append(b.buf, " \""...)
	b.buf = AppendTimestamp(b.buf, ms)
	b.buf = append(b.buf, "\"^^xsd:dateTime;\n"...)
}

// AddType adds the element type marker
func (b *Builder) AddType(e Element) {
	b.buf = append(b.buf, "osmm:type \""...)
	b.buf = append(b.buf, e.Code())
	b.buf = append(b.buf, "\";\n"...)
}

// AddPoint adds the element location as a WKT literal.
// Longitude comes first, as WKT is (x y).
func (b *Builder) AddPoint(lat, lon float64) {
	b.buf = append(b.buf, "osmm:loc \"Point("...)
	b.buf = appendFloat(b.buf, lon)
	b.buf = append(b.buf, ' ')
	b.buf = appendFloat(b.buf, lat)
	b.buf = append(b.buf, ")\"^^geo:wktLiteral;\n"...)
}

// AddMember adds the membership clauses for one relation member:
//
//	osmm:has osmway:77;
//	osmway:77 "outer";
//
// The role clause is only written for a non-empty role.
func (b *Builder) AddMember(e Element, ref int64, role string) {
	b.buf = append(b.buf, "osmm:has "...)
	b.appendSubject(e, ref)
	b.buf = append(b.buf, ";\n"...)

	if role == "" {
		return
	}
	b.appendSubject(e, ref)
	b.buf = append(b.buf, ' ')
	b.appendQuoted(role)
	b.buf = append(b.buf, ";\n"...)
}

// Finalize renders the metadata clauses, terminates the block and returns a
// copy of it. The builder is reset for the next element.
func (b *Builder) Finalize(info Info) []byte {
	b.AddInt("osmm:version", int64(info.Version))
	if info.User != "" {
		b.AddString("osmm:user", info.User)
	}
	b.AddDate("osmm:timestamp", info.Timestamp)
	b.AddInt("osmm:changeset", info.Changeset)

	// Swap the trailing ";\n" of the last clause for ".\n"
	b.buf[len(b.buf)-2] = '.'

	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	b.Reset()
	return out
}

func (b *Builder) appendSubject(e Element, id int64) {
	b.buf = append(b.buf, e.Namespace()...)
	b.buf = append(b.buf, ':')
	b.buf = strconv.AppendInt(b.buf, id, 10)
}

// appendQuoted writes a JSON string literal, which is also a valid Turtle
// STRING_LITERAL_QUOTE.
func (b *Builder) appendQuoted(s string) {
	quoted, err := json.MarshalWithOption(s, json.DisableHTMLEscape())
	if err != nil {
		// Strings always encode; keep the output well-formed regardless
		b.buf = append(b.buf, `""`...)
		return
	}
	b.buf = append(b.buf, quoted...)
}

// AppendTimestamp formats a millisecond epoch value as an xsd:dateTime in UTC
func AppendTimestamp(dst []byte, ms int64) []byte {
	return time.UnixMilli(ms).UTC().AppendFormat(dst, timestampLayout)
}

// appendFloat writes the shortest decimal that round-trips, never in exponent form
func appendFloat(dst []byte, f float64) []byte {
	return strconv.AppendFloat(dst, f, 'f', -1, 64)
}
