package crdtstore

import (
	"os"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gholt/crdtstore/internal/dlog"
)

// OffsetKind names a text length unit, mirroring the three encodings a
// JS/Rust peer might expect. The value is recorded in Options only: text
// lengths and indices are always counted in runes (code points),
// whichever OffsetKind is set.
type OffsetKind uint8

const (
	OffsetBytes OffsetKind = iota
	OffsetCodeUnits
	OffsetCodePoints
)

// Options are the configuration values recognised at Document creation.
// The shape follows the teacher's functional-options pattern
// (valuelocmap.resolveConfig/OptCores et al.): a struct built up
// by a slice of Option functions, with environment-variable fallbacks for
// the values that plausibly want an operational default.
type Options struct {
	ClientID     ClientID
	OffsetKind   OffsetKind
	SkipGC       bool
	Guid         string
	CollectionID string
	ShouldLoad   bool
	AutoLoad     bool
	Logger       *zap.Logger
}

// Option mutates an Options value during resolveOptions.
type Option func(*Options)

// OptClientID pins the document's local client ID instead of generating
// one randomly.
func OptClientID(id ClientID) Option {
	return func(o *Options) { o.ClientID = id }
}

// OptOffsetKind records k in the document's Options. It does not change
// how Text/XmlText lengths are measured: those are always in runes.
func OptOffsetKind(k OffsetKind) Option {
	return func(o *Options) { o.OffsetKind = k }
}

// OptSkipGC, when true, retains tombstoned content so that snapshots
// taken later remain reproducible (see EncodeStateFromSnapshot).
func OptSkipGC(skip bool) Option {
	return func(o *Options) { o.SkipGC = skip }
}

// OptGuid sets the document-unique identifier used for sub-document
// referencing. Defaults to a freshly generated UUID if unset.
func OptGuid(guid string) Option {
	return func(o *Options) { o.Guid = guid }
}

// OptCollectionID sets an optional grouping tag for related documents.
func OptCollectionID(id string) Option {
	return func(o *Options) { o.CollectionID = id }
}

// OptShouldLoad marks a sub-document as eligible for loading by the
// embedder.
func OptShouldLoad(should bool) Option {
	return func(o *Options) { o.ShouldLoad = should }
}

// OptAutoLoad marks a sub-document for automatic loading by the embedder
// once linked into a parent.
func OptAutoLoad(auto bool) Option {
	return func(o *Options) { o.AutoLoad = auto }
}

// OptLogger installs a structured logger for the document's own
// diagnostic output (a warning when the update payload for update
// observers cannot be encoded). Defaults to zap.NewNop() when unset, matching the teacher's
// pattern of a no-op LogFunc default rather than writing to stderr
// unconditionally.
func OptLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// resolveOptions applies opts over built-in defaults, with a handful of
// environment-variable fallbacks in the teacher's BRIMSTORE_* style.
func resolveOptions(opts ...Option) Options {
	o := Options{
		OffsetKind: OffsetCodeUnits,
		ShouldLoad: true,
	}
	if env := os.Getenv("CRDTSTORE_SKIP_GC"); env != "" {
		if v, err := strconv.ParseBool(env); err == nil {
			o.SkipGC = v
		}
	}
	if env := os.Getenv("CRDTSTORE_LOG"); env != "" {
		if v, err := strconv.ParseBool(env); err == nil && v {
			o.Logger = dlog.Default()
		}
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ClientID == 0 {
		o.ClientID = NewClientID()
	}
	if o.Guid == "" {
		o.Guid = uuid.NewString()
	}
	if o.Logger == nil {
		o.Logger = dlog.Nop()
	}
	return o
}
