package crdtstore

// ContentKind discriminates the payload an Item carries. Branch kinds
// share one substrate (see Branch); item content kinds share this one.
type ContentKind uint8

const (
	ContentKindDeleted ContentKind = iota
	ContentKindJSON
	ContentKindBinary
	ContentKindString
	ContentKindFormat
	ContentKindType
	ContentKindDoc
	ContentKindMove
)

// ItemContent is the payload carried by an Item. Exactly one concrete
// type below implements it per Item.
type ItemContent interface {
	Kind() ContentKind
	// Len returns the content's length: runes for text, element count
	// otherwise. The document's OffsetKind does not affect it.
	Len() uint32
	// Splittable reports whether the content can be cut by split; fixed
	// singleton payloads (format, type, doc, move) cannot.
	Splittable() bool
	// SplitAt divides the content at offset, returning content for
	// [0,offset) and [offset,Len()). Only called when Splittable is true.
	SplitAt(offset uint32) (left, right ItemContent)
}

// ContentDeletedMarker stands in for content whose bytes have been
// garbage collected or that was always just a length-carrying tombstone.
type ContentDeletedMarker struct{ length uint32 }

func NewContentDeleted(length uint32) *ContentDeletedMarker { return &ContentDeletedMarker{length} }
func (c *ContentDeletedMarker) Kind() ContentKind             { return ContentKindDeleted }
func (c *ContentDeletedMarker) Len() uint32                   { return c.length }
func (c *ContentDeletedMarker) Splittable() bool              { return true }
func (c *ContentDeletedMarker) SplitAt(o uint32) (ItemContent, ItemContent) {
	return &ContentDeletedMarker{o}, &ContentDeletedMarker{c.length - o}
}

// ContentString is a run of text, stored and measured as runes (code
// points). No conversion to bytes or UTF-16 code units is done here,
// whatever OffsetKind the document was opened with.
type ContentString struct{ Value []rune }

func NewContentString(s string) *ContentString { return &ContentString{Value: []rune(s)} }
func (c *ContentString) Kind() ContentKind      { return ContentKindString }
func (c *ContentString) Len() uint32            { return uint32(len(c.Value)) }
func (c *ContentString) Splittable() bool       { return true }
func (c *ContentString) SplitAt(o uint32) (ItemContent, ItemContent) {
	return &ContentString{Value: append([]rune(nil), c.Value[:o]...)},
		&ContentString{Value: append([]rune(nil), c.Value[o:]...)}
}
func (c *ContentString) String() string { return string(c.Value) }

// ContentJSON carries a batch of JSON-like scalar values (bool, float64,
// string, nil, map[string]any, []any). Each value occupies one countable
// slot, mirroring how a run of Array.Insert(vals...) is recorded as one
// Item holding len(vals) slots.
type ContentJSON struct{ Values []any }

func NewContentJSON(values ...any) *ContentJSON { return &ContentJSON{Values: values} }
func (c *ContentJSON) Kind() ContentKind        { return ContentKindJSON }
func (c *ContentJSON) Len() uint32              { return uint32(len(c.Values)) }
func (c *ContentJSON) Splittable() bool         { return true }
func (c *ContentJSON) SplitAt(o uint32) (ItemContent, ItemContent) {
	return &ContentJSON{Values: append([]any(nil), c.Values[:o]...)},
		&ContentJSON{Values: append([]any(nil), c.Values[o:]...)}
}

// ContentBinary carries an opaque byte blob as a single countable slot.
type ContentBinary struct{ Data []byte }

func NewContentBinary(b []byte) *ContentBinary { return &ContentBinary{Data: b} }
func (c *ContentBinary) Kind() ContentKind     { return ContentKindBinary }
func (c *ContentBinary) Len() uint32           { return 1 }
func (c *ContentBinary) Splittable() bool      { return false }
func (c *ContentBinary) SplitAt(uint32) (ItemContent, ItemContent) {
	panic("crdtstore: ContentBinary is not splittable")
}

// ContentFormat carries a single formatting-attribute key/value pair
// (e.g. rich-text bold=true). It occupies one clock slot but is skipped
// by index counting.
type ContentFormat struct {
	Key   string
	Value any
}

func NewContentFormat(key string, value any) *ContentFormat {
	return &ContentFormat{Key: key, Value: value}
}
func (c *ContentFormat) Kind() ContentKind { return ContentKindFormat }
func (c *ContentFormat) Len() uint32       { return 1 }
func (c *ContentFormat) Splittable() bool  { return false }
func (c *ContentFormat) SplitAt(uint32) (ItemContent, ItemContent) {
	panic("crdtstore: ContentFormat is not splittable")
}

// ContentType embeds a new Branch (a nested Array/Map/Text/Xml*) as the
// value of a single slot.
type ContentType struct{ Branch *Branch }

func NewContentType(b *Branch) *ContentType { return &ContentType{Branch: b} }
func (c *ContentType) Kind() ContentKind    { return ContentKindType }
func (c *ContentType) Len() uint32          { return 1 }
func (c *ContentType) Splittable() bool     { return false }
func (c *ContentType) SplitAt(uint32) (ItemContent, ItemContent) {
	panic("crdtstore: ContentType is not splittable")
}

// ContentDoc links to a sub-document, identified by address, as a single
// slot.
type ContentDoc struct {
	Addr DocAddr
	Opts Options
}

func (c *ContentDoc) Kind() ContentKind { return ContentKindDoc }
func (c *ContentDoc) Len() uint32       { return 1 }
func (c *ContentDoc) Splittable() bool  { return false }
func (c *ContentDoc) SplitAt(uint32) (ItemContent, ItemContent) {
	panic("crdtstore: ContentDoc is not splittable")
}

// ContentMove describes a move of a range of items, anchored by start/end
// origins much like an Item's own origins, into a new logical position.
// It is resolved at commit time (see resolveMoves in transaction.go).
type ContentMove struct {
	Start, End      ID
	StartAssocRight bool
	EndAssocRight   bool
	Priority        int32
}

func NewContentMove(start, end ID, startAssocRight, endAssocRight bool, priority int32) *ContentMove {
	return &ContentMove{
		Start:           start,
		End:             end,
		StartAssocRight: startAssocRight,
		EndAssocRight:   endAssocRight,
		Priority:        priority,
	}
}

func (c *ContentMove) Kind() ContentKind { return ContentKindMove }
func (c *ContentMove) Len() uint32       { return 1 }
func (c *ContentMove) Splittable() bool  { return false }
func (c *ContentMove) SplitAt(uint32) (ItemContent, ItemContent) {
	panic("crdtstore: ContentMove is not splittable")
}
