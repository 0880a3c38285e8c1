package crdtstore

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"
)

// byteReader is a minimal cursor over an encoded update buffer. It panics
// on underrun rather than threading an error through every call; callers
// recover that panic at the decode entry points and turn it into
// ErrMalformedUpdate.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) byte() byte {
	if r.pos >= len(r.buf) {
		panic(ErrMalformedUpdate)
	}
	b := r.buf[r.pos]
	r.pos++
	return b
}

func (r *byteReader) bytes(n int) []byte {
	if n < 0 || r.pos+n > len(r.buf) {
		panic(ErrMalformedUpdate)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *byteReader) uvarint() uint64 {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		panic(ErrMalformedUpdate)
	}
	r.pos += n
	return v
}

func (r *byteReader) varint() int64 {
	v, n := binary.Varint(r.buf[r.pos:])
	if n <= 0 {
		panic(ErrMalformedUpdate)
	}
	r.pos += n
	return v
}

func (r *byteReader) str() string {
	n := int(r.uvarint())
	return string(r.bytes(n))
}

func (r *byteReader) blob() []byte {
	n := int(r.uvarint())
	return append([]byte(nil), r.bytes(n)...)
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendVarint(buf []byte, v int64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendBlob(buf []byte, b []byte) []byte {
	buf = appendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

func appendID(buf []byte, id ID) []byte {
	buf = appendUvarint(buf, uint64(id.Client))
	return appendUvarint(buf, uint64(id.Clock))
}

func readID(r *byteReader) ID {
	c := r.uvarint()
	k := r.uvarint()
	return ID{Client: ClientID(c), Clock: Clock(k)}
}

// --- state vectors -------------------------------------------------------

// EncodeStateVector serializes sv as a flat client->clock listing.
func EncodeStateVector(sv *StateVector) []byte {
	var buf []byte
	clients := sv.Clients()
	buf = appendUvarint(buf, uint64(len(clients)))
	for _, c := range clients {
		buf = appendUvarint(buf, uint64(c))
		buf = appendUvarint(buf, uint64(sv.Get(c)))
	}
	return buf
}

// DecodeStateVector parses the output of EncodeStateVector.
func DecodeStateVector(data []byte) (sv *StateVector, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			sv, err = nil, ErrMalformedUpdate
		}
	}()
	r := &byteReader{buf: data}
	n := int(r.uvarint())
	sv = NewStateVector()
	for i := 0; i < n; i++ {
		c := ClientID(r.uvarint())
		clk := Clock(r.uvarint())
		sv.Set(c, clk)
	}
	return sv, nil
}

// --- generic scalar values (ContentJSON elements, ContentFormat value) ---

const (
	valueNil byte = iota
	valueBool
	valueFloat64
	valueInt64
	valueString
	valueBytes
	valueOther // fallback: value's fmt.Sprint form, decoded back as a string
)

func appendValue(buf []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return append(buf, valueNil)
	case bool:
		buf = append(buf, valueBool)
		if x {
			return append(buf, 1)
		}
		return append(buf, 0)
	case float64:
		buf = append(buf, valueFloat64)
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(x))
		return append(buf, tmp[:]...)
	case int:
		buf = append(buf, valueInt64)
		return appendVarint(buf, int64(x))
	case int64:
		buf = append(buf, valueInt64)
		return appendVarint(buf, x)
	case string:
		buf = append(buf, valueString)
		return appendString(buf, x)
	case []byte:
		buf = append(buf, valueBytes)
		return appendBlob(buf, x)
	default:
		buf = append(buf, valueOther)
		return appendString(buf, fmt.Sprint(x))
	}
}

func readValue(r *byteReader) any {
	switch r.byte() {
	case valueNil:
		return nil
	case valueBool:
		return r.byte() != 0
	case valueFloat64:
		bits := binary.LittleEndian.Uint64(r.bytes(8))
		return math.Float64frombits(bits)
	case valueInt64:
		return r.varint()
	case valueString:
		return r.str()
	case valueBytes:
		return r.blob()
	case valueOther:
		return r.str()
	default:
		panic(ErrUnexpectedEnum)
	}
}

// --- item content ----------------------------------------------------

func appendContent(buf []byte, c ItemContent) []byte {
	buf = append(buf, byte(c.Kind()))
	switch v := c.(type) {
	case *ContentDeletedMarker:
		buf = appendUvarint(buf, uint64(v.length))
	case *ContentString:
		buf = appendString(buf, v.String())
	case *ContentJSON:
		buf = appendUvarint(buf, uint64(len(v.Values)))
		for _, val := range v.Values {
			buf = appendValue(buf, val)
		}
	case *ContentBinary:
		buf = appendBlob(buf, v.Data)
	case *ContentFormat:
		buf = appendString(buf, v.Key)
		buf = appendValue(buf, v.Value)
	case *ContentType:
		buf = append(buf, byte(v.Branch.TypeRef))
		buf = appendString(buf, v.Branch.Name)
	case *ContentDoc:
		buf = appendString(buf, v.Addr.Guid)
		buf = appendString(buf, v.Addr.CollectionID)
	case *ContentMove:
		buf = appendID(buf, v.Start)
		buf = appendID(buf, v.End)
		var flags byte
		if v.StartAssocRight {
			flags |= 1
		}
		if v.EndAssocRight {
			flags |= 2
		}
		buf = append(buf, flags)
		buf = appendVarint(buf, int64(v.Priority))
	default:
		panic(fmt.Errorf("crdtstore: unsupported content kind %T for encoding", c))
	}
	return buf
}

func readContent(r *byteReader) ItemContent {
	kind := ContentKind(r.byte())
	switch kind {
	case ContentKindDeleted:
		return NewContentDeleted(uint32(r.uvarint()))
	case ContentKindString:
		return NewContentString(r.str())
	case ContentKindJSON:
		n := int(r.uvarint())
		vals := make([]any, n)
		for i := range vals {
			vals[i] = readValue(r)
		}
		return &ContentJSON{Values: vals}
	case ContentKindBinary:
		return NewContentBinary(r.blob())
	case ContentKindFormat:
		key := r.str()
		val := readValue(r)
		return NewContentFormat(key, val)
	case ContentKindType:
		typeRef := TypeRef(r.byte())
		name := r.str()
		branch := NewBranch(typeRef)
		branch.Name = name
		return NewContentType(branch)
	case ContentKindDoc:
		guid := r.str()
		coll := r.str()
		return &ContentDoc{Addr: DocAddr{Guid: guid, CollectionID: coll}}
	case ContentKindMove:
		start := readID(r)
		end := readID(r)
		flags := r.byte()
		priority := int32(r.varint())
		return &ContentMove{
			Start: start, End: end,
			StartAssocRight: flags&1 != 0,
			EndAssocRight:   flags&2 != 0,
			Priority:        priority,
		}
	default:
		panic(ErrUnexpectedEnum)
	}
}

// --- blocks ------------------------------------------------------------

// infoBit flags describe which optional fields a wire block carries.
const (
	bitLeftOrigin byte = 1 << iota
	bitRightOrigin
	bitParentItem
	bitParentSub
	bitGC
)

func appendBlock(buf []byte, rb *remoteBlock) []byte {
	buf = appendID(buf, rb.id)
	var info byte
	if rb.leftOrigin != nil {
		info |= bitLeftOrigin
	}
	if rb.rightOrigin != nil {
		info |= bitRightOrigin
	}
	if rb.isGC {
		info |= bitGC
	} else {
		if rb.parentItem != nil {
			info |= bitParentItem
		}
		if rb.parentSub != nil {
			info |= bitParentSub
		}
	}
	buf = append(buf, info)
	if rb.leftOrigin != nil {
		buf = appendID(buf, *rb.leftOrigin)
	}
	if rb.rightOrigin != nil {
		buf = appendID(buf, *rb.rightOrigin)
	}
	if rb.isGC {
		buf = appendUvarint(buf, uint64(rb.gcLength))
		return buf
	}
	if rb.parentItem != nil {
		buf = appendID(buf, *rb.parentItem)
	} else {
		buf = appendString(buf, rb.parentName)
	}
	if rb.parentSub != nil {
		buf = appendString(buf, *rb.parentSub)
	}
	buf = appendContent(buf, rb.content)
	return buf
}

func readBlock(r *byteReader) *remoteBlock {
	rb := &remoteBlock{id: readID(r)}
	info := r.byte()
	if info&bitLeftOrigin != 0 {
		id := readID(r)
		rb.leftOrigin = &id
	}
	if info&bitRightOrigin != 0 {
		id := readID(r)
		rb.rightOrigin = &id
	}
	if info&bitGC != 0 {
		rb.isGC = true
		rb.gcLength = uint32(r.uvarint())
		return rb
	}
	if info&bitParentItem != 0 {
		id := readID(r)
		rb.parentItem = &id
	} else {
		rb.parentName = r.str()
	}
	if info&bitParentSub != 0 {
		sub := r.str()
		rb.parentSub = &sub
	}
	rb.content = readContent(r)
	return rb
}

// --- delete sets ---------------------------------------------------------

func appendDeleteSet(buf []byte, ds *DeleteSet) []byte {
	clients := ds.Clients()
	buf = appendUvarint(buf, uint64(len(clients)))
	for _, c := range clients {
		ranges := ds.Ranges(c)
		buf = appendUvarint(buf, uint64(c))
		buf = appendUvarint(buf, uint64(len(ranges)))
		for _, r := range ranges {
			buf = appendUvarint(buf, uint64(r.start))
			buf = appendUvarint(buf, uint64(r.len))
		}
	}
	return buf
}

func readDeleteSet(r *byteReader) *DeleteSet {
	ds := NewDeleteSet()
	n := int(r.uvarint())
	for i := 0; i < n; i++ {
		c := ClientID(r.uvarint())
		rn := int(r.uvarint())
		for j := 0; j < rn; j++ {
			start := Clock(r.uvarint())
			length := uint32(r.uvarint())
			ds.Add(ID{Client: c, Clock: start}, length)
		}
	}
	return ds
}

// --- whole updates: v1 is a flat block stream; v2 differs only by a
// version tag and a trailing murmur3 checksum over the body, giving the
// wire format an integrity check the v1 stream does not carry. A fully
// column-oriented v2 layout (separate parallel arrays per field, as the
// format this module's wire contract descends from uses) was judged not
// worth the decode complexity here; see DESIGN.md. ---

func encodeUpdateBody(blocks []*remoteBlock, ds *DeleteSet) []byte {
	var buf []byte
	buf = appendUvarint(buf, uint64(len(blocks)))
	for _, rb := range blocks {
		buf = appendBlock(buf, rb)
	}
	if ds == nil {
		ds = NewDeleteSet()
	}
	buf = appendDeleteSet(buf, ds)
	return buf
}

func decodeUpdateBody(r *byteReader) (blocks []*remoteBlock, ds *DeleteSet) {
	n := int(r.uvarint())
	blocks = make([]*remoteBlock, n)
	for i := range blocks {
		blocks[i] = readBlock(r)
	}
	ds = readDeleteSet(r)
	return blocks, ds
}

const (
	updateTagV1 byte = 1
	updateTagV2 byte = 2
)

// EncodeUpdateV1 serializes blocks and ds into the v1 wire format.
func EncodeUpdateV1(blocks []*remoteBlock, ds *DeleteSet) []byte {
	buf := []byte{updateTagV1}
	return append(buf, encodeUpdateBody(blocks, ds)...)
}

// DecodeUpdateV1 parses the output of EncodeUpdateV1. Updates are
// self-delimited, so a payload may be several encoded updates
// concatenated; every one of them is decoded, with blocks appended in
// order and delete sets merged.
func DecodeUpdateV1(data []byte) (blocks []*remoteBlock, ds *DeleteSet, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			blocks, ds, err = nil, nil, ErrMalformedUpdate
		}
	}()
	r := &byteReader{buf: data}
	ds = NewDeleteSet()
	for r.pos < len(r.buf) {
		if r.byte() != updateTagV1 {
			return nil, nil, fmt.Errorf("%w: not a v1 update", ErrMalformedUpdate)
		}
		b, d := decodeUpdateBody(r)
		blocks = append(blocks, b...)
		ds.Merge(d)
	}
	return blocks, ds, nil
}

// EncodeUpdateV2 serializes blocks and ds into the v2 wire format: the
// same body as v1, tagged and sealed with a murmur3/128 checksum trailer
// so corruption is caught before any block is integrated.
func EncodeUpdateV2(blocks []*remoteBlock, ds *DeleteSet) []byte {
	body := encodeUpdateBody(blocks, ds)
	h1, h2 := murmur3.Sum128(body)
	out := make([]byte, 0, 1+len(body)+16)
	out = append(out, updateTagV2)
	out = append(out, body...)
	var tmp [16]byte
	binary.BigEndian.PutUint64(tmp[0:8], h1)
	binary.BigEndian.PutUint64(tmp[8:16], h2)
	return append(out, tmp[:]...)
}

// DecodeUpdateV2 parses the output of EncodeUpdateV2, rejecting any
// message whose checksum trailer does not match. Like v1, a payload may
// be several encoded updates concatenated: the body format is
// self-delimiting, so each message's trailer is found right after its
// parsed body.
func DecodeUpdateV2(data []byte) (blocks []*remoteBlock, ds *DeleteSet, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			blocks, ds, err = nil, nil, ErrMalformedUpdate
		}
	}()
	ds = NewDeleteSet()
	pos := 0
	for pos < len(data) {
		if len(data)-pos < 1+16 {
			return nil, nil, fmt.Errorf("%w: v2 update too short", ErrMalformedUpdate)
		}
		if data[pos] != updateTagV2 {
			return nil, nil, fmt.Errorf("%w: not a v2 update", ErrMalformedUpdate)
		}
		r := &byteReader{buf: data, pos: pos + 1}
		b, d := decodeUpdateBody(r)
		if len(data)-r.pos < 16 {
			return nil, nil, fmt.Errorf("%w: v2 update truncated before checksum", ErrMalformedUpdate)
		}
		body := data[pos+1 : r.pos]
		trailer := data[r.pos : r.pos+16]
		wantH1 := binary.BigEndian.Uint64(trailer[0:8])
		wantH2 := binary.BigEndian.Uint64(trailer[8:16])
		gotH1, gotH2 := murmur3.Sum128(body)
		if gotH1 != wantH1 || gotH2 != wantH2 {
			return nil, nil, fmt.Errorf("%w: v2 checksum mismatch", ErrMalformedUpdate)
		}
		blocks = append(blocks, b...)
		ds.Merge(d)
		pos = r.pos + 16
	}
	return blocks, ds, nil
}
