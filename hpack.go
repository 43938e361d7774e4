package h2

import (
	"fmt"
	"strings"
)

// staticTableEntry is one row of the RFC 7541 Appendix A static table.
type staticTableEntry struct {
	name  string
	value string
}

var staticTable = [61]staticTableEntry{
	{":authority", ""}, {":method", "GET"}, {":method", "POST"},
	{":path", "/"}, {":path", "/index.html"}, {":scheme", "http"},
	{":scheme", "https"}, {":status", "200"}, {":status", "204"},
	{":status", "206"}, {":status", "304"}, {":status", "400"},
	{":status", "404"}, {":status", "500"}, {"accept-charset", ""},
	{"accept-encoding", "gzip, deflate"}, {"accept-language", ""}, {"accept-ranges", ""},
	{"accept", ""}, {"access-control-allow-origin", ""}, {"age", ""},
	{"allow", ""}, {"authorization", ""}, {"cache-control", ""},
	{"content-disposition", ""}, {"content-encoding", ""}, {"content-language", ""},
	{"content-length", ""}, {"content-location", ""}, {"content-range", ""},
	{"content-type", ""}, {"cookie", ""}, {"date", ""},
	{"etag", ""}, {"expect", ""}, {"expires", ""},
	{"from", ""}, {"host", ""}, {"if-match", ""},
	{"if-modified-since", ""}, {"if-none-match", ""}, {"if-range", ""},
	{"if-unmodified-since", ""}, {"last-modified", ""}, {"link", ""},
	{"location", ""}, {"max-forwards", ""}, {"proxy-authenticate", ""},
	{"proxy-authorization", ""}, {"range", ""}, {"referer", ""},
	{"refresh", ""}, {"retry-after", ""}, {"server", ""},
	{"set-cookie", ""}, {"strict-transport-security", ""}, {"transfer-encoding", ""},
	{"user-agent", ""}, {"vary", ""}, {"via", ""},
	{"www-authenticate", ""},
}

// dynamicTableEntry is one row of an HPACK dynamic table, RFC 7541
// Section 2.3.2.
type dynamicTableEntry struct {
	name  string
	value string
}

func (e dynamicTableEntry) size() int { return len(e.name) + len(e.value) + 32 }

// dynamicTable is a FIFO-evicted, size-bounded header table shared by
// an encoder or decoder. Index 0 is the most recently inserted entry,
// matching RFC 7541 Section 2.3.2's "newest first" indexing.
type dynamicTable struct {
	entries []dynamicTableEntry
	size    int
	maxSize int

	onEvict func(dynamicTableEntry)
}

func newDynamicTable(maxSize int) *dynamicTable {
	return &dynamicTable{maxSize: maxSize}
}

func (t *dynamicTable) get(index int) (dynamicTableEntry, bool) {
	if index < 0 || index >= len(t.entries) {
		return dynamicTableEntry{}, false
	}
	return t.entries[index], true
}

func (t *dynamicTable) add(e dynamicTableEntry) {
	t.entries = append([]dynamicTableEntry{e}, t.entries...)
	t.size += e.size()
	t.evictToFit()
}

func (t *dynamicTable) evictToFit() {
	for t.size > t.maxSize && len(t.entries) > 0 {
		last := t.entries[len(t.entries)-1]
		t.entries = t.entries[:len(t.entries)-1]
		t.size -= last.size()
		if t.onEvict != nil {
			t.onEvict(last)
		}
	}
}

// setMaxSize applies an RFC 7541 Section 6.3 dynamic table size
// update, evicting entries if the new size is smaller.
func (t *dynamicTable) setMaxSize(n int) {
	t.maxSize = n
	t.evictToFit()
}

func (t *dynamicTable) len() int { return len(t.entries) }

// hpackIndexOf searches the static table then the dynamic table for an
// exact (name, value) match, then falls back to a name-only match.
// Indices follow RFC 7541 Section 2.3.3: 1..61 static, 62.. dynamic.
func hpackIndexOf(dyn *dynamicTable, name, value string) (index int, nameOnly bool, found bool) {
	nameIdx, nameOnlyFound := 0, false
	for i, e := range staticTable {
		if e.name == name {
			if e.value == value {
				return i + 1, false, true
			}
			if !nameOnlyFound {
				nameIdx, nameOnlyFound = i+1, true
			}
		}
	}
	for i, e := range dyn.entries {
		if e.name == name {
			if e.value == value {
				return 62 + i, false, true
			}
			if !nameOnlyFound {
				nameIdx, nameOnlyFound = 62+i, true
			}
		}
	}
	if nameOnlyFound {
		return nameIdx, true, true
	}
	return 0, false, false
}

func hpackLookup(dyn *dynamicTable, index int) (name, value string, err error) {
	if index < 1 {
		return "", "", fmt.Errorf("hpack: invalid index 0")
	}
	if index <= len(staticTable) {
		e := staticTable[index-1]
		return e.name, e.value, nil
	}
	e, ok := dyn.get(index - len(staticTable) - 1)
	if !ok {
		return "", "", fmt.Errorf("hpack: index %d out of range", index)
	}
	return e.name, e.value, nil
}

// --- integer and string primitives, RFC 7541 Section 5 ---

// appendHpackInt appends an N-bit-prefix integer encoding of v to dst,
// where the low bits of the first byte (prefixBits wide) are ORed with
// prefixBits' worth of already-written flag bits in dst's last byte.
func appendHpackInt(dst []byte, prefixBits int, v uint64) []byte {
	max := uint64(1<<uint(prefixBits)) - 1
	if v < max {
		dst[len(dst)-1] |= byte(v)
		return dst
	}
	dst[len(dst)-1] |= byte(max)
	v -= max
	for v >= 128 {
		dst = append(dst, byte(v%128+128))
		v /= 128
	}
	return append(dst, byte(v))
}

func readHpackInt(b []byte, prefixBits int) (v uint64, consumed int, err error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("hpack: empty integer")
	}
	max := uint64(1<<uint(prefixBits)) - 1
	v = uint64(b[0]) & max
	if v < max {
		return v, 1, nil
	}
	var m uint
	for i := 1; i < len(b); i++ {
		byt := b[i]
		v += uint64(byt&0x7f) << m
		if v > 1<<32 {
			return 0, 0, fmt.Errorf("hpack: integer overflow")
		}
		m += 7
		if byt&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("hpack: truncated integer")
}

// appendHpackString appends an RFC 7541 Section 5.2 string literal for
// s, Huffman-encoding it whenever that's shorter.
func appendHpackString(dst []byte, s string) []byte {
	if huffmanWorthIt(s) {
		encLen := huffmanEncodedLen(s)
		dst = append(dst, 0x80)
		dst = appendHpackInt(dst, 7, uint64(encLen))
		return huffmanAppend(dst, s)
	}
	dst = append(dst, 0x00)
	dst = appendHpackInt(dst, 7, uint64(len(s)))
	return append(dst, s...)
}

func readHpackString(b []byte) (s string, consumed int, err error) {
	if len(b) == 0 {
		return "", 0, fmt.Errorf("hpack: empty string literal")
	}
	huff := b[0]&0x80 != 0
	length, n, err := readHpackInt(b, 7)
	if err != nil {
		return "", 0, err
	}
	total := n + int(length)
	if total > len(b) {
		return "", 0, fmt.Errorf("hpack: string literal exceeds block")
	}
	raw := b[n:total]
	if huff {
		s, err = huffmanDecode(raw)
		if err != nil {
			return "", 0, err
		}
		return s, total, nil
	}
	return string(raw), total, nil
}

// --- Encoder ---

// HPACKEncoder maintains a sender-side dynamic table and encodes
// ordered header lists into wire-format blocks, spec.md Section 4.3.
type HPACKEncoder struct {
	dyn *dynamicTable
}

func NewHPACKEncoder(maxTableSize int) *HPACKEncoder {
	return &HPACKEncoder{dyn: newDynamicTable(maxTableSize)}
}

// SetMaxTableSize applies a locally-decided table size change and
// emits the RFC 7541 Section 6.3 dynamic table size update that must
// precede the next header field in the block.
func (e *HPACKEncoder) SetMaxTableSize(n int) []byte {
	e.dyn.setMaxSize(n)
	dst := []byte{0x20}
	return appendHpackInt(dst, 5, uint64(n))
}

// Encode appends the wire representation of fields to dst.
func (e *HPACKEncoder) Encode(dst []byte, fields []HeaderField) []byte {
	for _, f := range fields {
		dst = e.encodeField(dst, f)
	}
	return dst
}

// neverIndexValueNames is the set of header fields whose value is
// either highly variable or cache-defeating enough that indexing it
// wastes table space, spec.md Section 4.3 step 4: always emitted as a
// literal without indexing, never added to the dynamic table.
var neverIndexValueNames = map[string]bool{
	":path":             true,
	"age":               true,
	"content-length":    true,
	"etag":              true,
	"if-modified-since": true,
	"if-none-match":     true,
	"location":          true,
	"set-cookie":        true,
}

// shortCookieThreshold is the value-length boundary below which a
// cookie header is treated as sensitive, spec.md Section 4.3 step 2:
// short cookies are disproportionately likely to be a single
// identifying token rather than an aggregate value worth indexing.
const shortCookieThreshold = 20

// autoIndexingPolicy applies spec.md Section 4.3's automatic
// representation policy on top of whatever the caller requested:
// "authorization" and short "cookie" values are always forced to
// never-indexed literals regardless of the caller's HeaderField
// settings, and the never-index-value set is always forced to literal
// without indexing. A caller asking for something stricter than the
// policy (e.g. IndexNeverIndexed on an ordinary header) is honored.
func autoIndexingPolicy(f HeaderField) (sensitive bool, indexing IndexingPolicy) {
	sensitive, indexing = f.Sensitive, f.Indexing
	name := strings.ToLower(f.Name)

	switch {
	case name == "authorization":
		sensitive, indexing = true, IndexNeverIndexed
	case name == "cookie" && len(f.Value) < shortCookieThreshold:
		sensitive, indexing = true, IndexNeverIndexed
	}

	if !sensitive && indexing != IndexNeverIndexed && neverIndexValueNames[name] {
		indexing = IndexNever
	}
	return sensitive, indexing
}

func (e *HPACKEncoder) encodeField(dst []byte, f HeaderField) []byte {
	sensitive, indexing := autoIndexingPolicy(f)
	index, nameOnly, found := hpackIndexOf(e.dyn, f.Name, f.Value)

	if found && !nameOnly && !sensitive && indexing != IndexNever && indexing != IndexNeverIndexed {
		// RFC 7541 Section 6.1: indexed representation.
		dst = append(dst, 0x80)
		return appendHpackInt(dst, 7, uint64(index))
	}

	switch {
	case sensitive || indexing == IndexNeverIndexed:
		dst = append(dst, 0x10)
		return e.encodeLiteral(dst, f, index, nameOnly, 4)
	case indexing == IndexNever:
		dst = append(dst, 0x00)
		return e.encodeLiteral(dst, f, index, nameOnly, 4)
	default: // IndexIncremental
		dst = append(dst, 0x40)
		dst = e.encodeLiteral(dst, f, index, nameOnly, 6)
		e.dyn.add(dynamicTableEntry{name: f.Name, value: f.Value})
		return dst
	}
}

func (e *HPACKEncoder) encodeLiteral(dst []byte, f HeaderField, index int, nameOnly bool, prefixBits int) []byte {
	if nameOnly {
		dst = appendHpackInt(dst, prefixBits, uint64(index))
	} else {
		dst = appendHpackInt(dst, prefixBits, 0)
		dst = appendHpackString(dst, f.Name)
	}
	return appendHpackString(dst, f.Value)
}

// --- Decoder ---

// HPACKDecoder maintains a receiver-side dynamic table and decodes
// wire-format blocks into ordered header lists.
type HPACKDecoder struct {
	dyn          *dynamicTable
	maxTableSize int // upper bound the peer is allowed to request, RFC 7541 Section 4.2
}

func NewHPACKDecoder(maxTableSize int) *HPACKDecoder {
	return &HPACKDecoder{
		dyn:          newDynamicTable(maxTableSize),
		maxTableSize: maxTableSize,
	}
}

// SetMaxTableSize lowers or raises the ceiling this decoder will honor
// for a peer's dynamic table size update, following a local SETTINGS
// change to SETTINGS_HEADER_TABLE_SIZE.
func (d *HPACKDecoder) SetMaxTableSize(n int) {
	d.maxTableSize = n
	if d.dyn.maxSize > n {
		d.dyn.setMaxSize(n)
	}
}

// Decode parses a complete header block into an ordered field list.
// Errors are always HPACK state corruption per RFC 7541 Section 4.3:
// callers must treat them as connection-fatal CompressionErrors.
func (d *HPACKDecoder) Decode(block []byte) ([]HeaderField, error) {
	var fields []HeaderField
	sawEntry := false
	for len(block) > 0 {
		b := block[0]
		switch {
		case b&0x80 != 0: // indexed field
			idx, n, err := readHpackInt(block, 7)
			if err != nil {
				return nil, err
			}
			name, value, err := hpackLookup(d.dyn, int(idx))
			if err != nil {
				return nil, err
			}
			fields = append(fields, HeaderField{Name: name, Value: value, Indexing: IndexIncremental})
			block = block[n:]
			sawEntry = true

		case b&0xc0 == 0x40: // literal with incremental indexing
			f, n, err := d.decodeLiteral(block, 6)
			if err != nil {
				return nil, err
			}
			f.Indexing = IndexIncremental
			d.dyn.add(dynamicTableEntry{name: f.Name, value: f.Value})
			fields = append(fields, f)
			block = block[n:]
			sawEntry = true

		case b&0xe0 == 0x20: // dynamic table size update
			// RFC 7541 Section 4.2: this instruction is only legal
			// before any other representation in the same header block.
			if sawEntry {
				return nil, fmt.Errorf("hpack: dynamic table size update after header block start")
			}
			n64, n, err := readHpackInt(block, 5)
			if err != nil {
				return nil, err
			}
			if int(n64) > d.maxTableSize {
				return nil, fmt.Errorf("hpack: dynamic table size update %d exceeds max %d", n64, d.maxTableSize)
			}
			d.dyn.setMaxSize(int(n64))
			block = block[n:]

		case b&0xf0 == 0x10: // literal never indexed
			f, n, err := d.decodeLiteral(block, 4)
			if err != nil {
				return nil, err
			}
			f.Indexing = IndexNeverIndexed
			f.Sensitive = true
			fields = append(fields, f)
			block = block[n:]
			sawEntry = true

		default: // b&0xf0 == 0x00: literal without indexing
			f, n, err := d.decodeLiteral(block, 4)
			if err != nil {
				return nil, err
			}
			f.Indexing = IndexNever
			fields = append(fields, f)
			block = block[n:]
			sawEntry = true
		}
	}
	return fields, nil
}

func (d *HPACKDecoder) decodeLiteral(block []byte, prefixBits int) (HeaderField, int, error) {
	idx, n, err := readHpackInt(block, prefixBits)
	if err != nil {
		return HeaderField{}, 0, err
	}
	rest := block[n:]
	var name string
	if idx == 0 {
		var nlen int
		name, nlen, err = readHpackString(rest)
		if err != nil {
			return HeaderField{}, 0, err
		}
		rest = rest[nlen:]
		n += nlen
	} else {
		name, _, err = hpackLookup(d.dyn, int(idx))
		if err != nil {
			return HeaderField{}, 0, err
		}
	}
	value, vlen, err := readHpackString(rest)
	if err != nil {
		return HeaderField{}, 0, err
	}
	n += vlen
	return HeaderField{Name: name, Value: value}, n, nil
}
