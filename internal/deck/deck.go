// Package deck provides the ordered key/value-group container native
// decks are held in, plus the per-code serialization styles. Parsing
// stays with each driver; this package only guarantees that writing is
// deterministic and order-preserving.
package deck

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind tags a deck value.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
)

// Value is one typed deck entry. Raw marks values carried through as
// opaque passthrough: they re-serialize character-for-character.
type Value struct {
	Kind  Kind
	Str   string
	Int   int
	Float float64
	Bool  bool

	// Raw, when non-empty, is emitted verbatim instead of formatting
	// the typed value.
	Raw string
}

// Group is one named key/value block. Keys keep insertion order.
type Group struct {
	Name   string
	keys   []string
	values map[string]Value
}

// Deck is an ordered sequence of groups. A flat deck (TGLF, CGYRO) is a
// Deck with a single unnamed group.
type Deck struct {
	groups []*Group
}

// New returns an empty deck.
func New() *Deck { return &Deck{} }

// Group returns the named group, creating and appending it if absent.
func (d *Deck) Group(name string) *Group {
	for _, g := range d.groups {
		if g.Name == name {
			return g
		}
	}
	g := &Group{Name: name, values: make(map[string]Value)}
	d.groups = append(d.groups, g)
	return g
}

// Lookup returns the named group without creating it.
func (d *Deck) Lookup(name string) (*Group, bool) {
	for _, g := range d.groups {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// Groups returns all groups in insertion order.
func (d *Deck) Groups() []*Group { return d.groups }

// GroupsNamed returns the groups with the given name, in order. Fortran
// namelists repeat group names for per-species blocks.
func (d *Deck) GroupsNamed(name string) []*Group {
	var out []*Group
	for _, g := range d.groups {
		if g.Name == name {
			out = append(out, g)
		}
	}
	return out
}

// Append adds a new group even when one with the same name exists.
func (d *Deck) Append(name string) *Group {
	g := &Group{Name: name, values: make(map[string]Value)}
	d.groups = append(d.groups, g)
	return g
}

// Set stores a value under key, appending the key on first insertion.
func (g *Group) Set(key string, v Value) {
	if _, exists := g.values[key]; !exists {
		g.keys = append(g.keys, key)
	}
	g.values[key] = v
}


// SetFloat stores a float value.
func (g *Group) SetFloat(key string, v float64) { g.Set(key, Value{Kind: KindFloat, Float: v}) }

// SetInt stores an integer value.
func (g *Group) SetInt(key string, v int) { g.Set(key, Value{Kind: KindInt, Int: v}) }

// SetBool stores a boolean value.
func (g *Group) SetBool(key string, v bool) { g.Set(key, Value{Kind: KindBool, Bool: v}) }

// SetString stores a string value.
func (g *Group) SetString(key string, v string) { g.Set(key, Value{Kind: KindString, Str: v}) }

// SetRaw stores an opaque passthrough value, re-emitted verbatim.
func (g *Group) SetRaw(key string, raw string) {
	g.Set(key, Value{Kind: KindString, Str: raw, Raw: raw})
}

// Keys returns the keys in insertion order.
func (g *Group) Keys() []string { return g.keys }

// Get returns the value stored under key.
func (g *Group) Get(key string) (Value, bool) {
	v, ok := g.values[key]
	return v, ok
}

// Has reports whether the key is present.
func (g *Group) Has(key string) bool {
	_, ok := g.values[key]
	return ok
}

// Float returns the key as float64, converting ints, with a default.
func (g *Group) Float(key string, def float64) float64 {
	v, ok := g.values[key]
	if !ok {
		return def
	}
	switch v.Kind {
	case KindFloat:
		return v.Float
	case KindInt:
		return float64(v.Int)
	}
	return def
}

// Int returns the key as int with a default.
func (g *Group) Int(key string, def int) int {
	v, ok := g.values[key]
	if !ok {
		return def
	}
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return int(v.Float)
	}
	return def
}

// Bool returns the key as bool with a default. Integer 0/1 flags count.
func (g *Group) Bool(key string, def bool) bool {
	v, ok := g.values[key]
	if !ok {
		return def
	}
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	}
	return def
}

// String returns the key as string with a default.
func (g *Group) String(key string, def string) string {
	v, ok := g.values[key]
	if !ok {
		return def
	}
	return v.Str
}

// SortKeys orders the group's keys lexically. Used by drivers whose
// native format is insertion-order-free, so output stays deterministic
// regardless of construction order.
func (g *Group) SortKeys() { sort.Strings(g.keys) }

// Style is a code's serialization convention.
type Style struct {
	// FloatDigits is the number of significant digits for floats.
	FloatDigits int

	// BoolTrue/BoolFalse render booleans (".true."/".false." for
	// Fortran namelists, "T"/"F" for TGLF).
	BoolTrue  string
	BoolFalse string

	// UpperKeys upper-cases keys on output.
	UpperKeys bool

	// Namelist wraps groups in &name ... / blocks.
	Namelist bool

	// AlignColumn pads keys to a fixed width before '='. Zero disables
	// alignment; the fixed-column layouts in native templates are
	// cosmetic, so this stays optional.
	AlignColumn int

	// Quote wraps string values in single quotes (Fortran style).
	Quote bool
}

// FormatFloat renders a float in fixed-significant-digit scientific
// notation, the convention the native templates use.
func (s Style) FormatFloat(v float64) string {
	digits := s.FloatDigits
	if digits <= 0 {
		digits = 11
	}
	return strconv.FormatFloat(v, 'E', digits-1, 64)
}

// FormatValue renders one value under this style.
func (s Style) FormatValue(v Value) string {
	if v.Raw != "" {
		return v.Raw
	}
	switch v.Kind {
	case KindFloat:
		return s.FormatFloat(v.Float)
	case KindInt:
		return strconv.Itoa(v.Int)
	case KindBool:
		if v.Bool {
			return s.BoolTrue
		}
		return s.BoolFalse
	default:
		if s.Quote {
			return "'" + v.Str + "'"
		}
		return v.Str
	}
}

// Render serializes the deck. Identical decks render byte-identically.
func (d *Deck) Render(s Style) string {
	var b strings.Builder
	for i, g := range d.groups {
		if s.Namelist {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "&%s\n", g.Name)
		}
		for _, key := range g.keys {
			v := g.values[key]
			outKey := key
			if s.UpperKeys {
				outKey = strings.ToUpper(key)
			}
			if s.AlignColumn > len(outKey) {
				outKey += strings.Repeat(" ", s.AlignColumn-len(outKey))
			}
			fmt.Fprintf(&b, "%s = %s\n", outKey, s.FormatValue(v))
		}
		if s.Namelist {
			b.WriteString("/\n")
		}
	}
	return b.String()
}
