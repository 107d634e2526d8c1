/*
Copyright 2025 The gyroconv Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package driver

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/fusionkit/gyroconv/internal/deck"
	"github.com/fusionkit/gyroconv/internal/model"
)

// ParseFlat parses the flat KEY = VALUE format shared by the GACODE
// family (CGYRO, TGLF). '#' starts a comment; keys are case-insensitive
// and stored lower case. The result is a deck with one unnamed group.
func ParseFlat(code string, data []byte) (*deck.Deck, error) {
	d := deck.New()
	g := d.Group("")

	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	seen := false
	for sc.Scan() {
		line++
		text := stripComment(sc.Text(), "#")
		if text == "" {
			continue
		}
		key, raw, ok := strings.Cut(text, "=")
		if !ok {
			return nil, &UnsupportedSchemaError{Code: code, Line: line, Detail: "expected KEY = VALUE, got " + strconv.Quote(text)}
		}
		key = strings.ToLower(strings.TrimSpace(key))
		raw = strings.TrimSpace(raw)
		if key == "" || raw == "" {
			return nil, &UnsupportedSchemaError{Code: code, Line: line, Detail: "empty key or value"}
		}
		setTyped(g, key, raw)
		seen = true
	}
	if err := sc.Err(); err != nil {
		return nil, &UnsupportedSchemaError{Code: code, Detail: err.Error()}
	}
	if !seen {
		return nil, &UnsupportedSchemaError{Code: code, Detail: "no assignments found"}
	}
	return d, nil
}

// ParseNamelist parses Fortran namelist input (&name ... /) into an
// ordered deck, keeping repeated groups separate. '!' starts a comment.
// Array syntax and multi-value lines are kept verbatim as raw strings.
func ParseNamelist(code string, data []byte) (*deck.Deck, error) {
	d := deck.New()
	var g *deck.Group

	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := stripComment(sc.Text(), "!")
		if text == "" {
			continue
		}
		switch {
		case strings.HasPrefix(text, "&"):
			if g != nil {
				return nil, &UnsupportedSchemaError{Code: code, Line: line, Detail: "nested namelist group"}
			}
			name := strings.ToLower(strings.TrimSpace(text[1:]))
			if name == "" {
				return nil, &UnsupportedSchemaError{Code: code, Line: line, Detail: "unnamed namelist group"}
			}
			g = d.Append(name)
		case text == "/":
			if g == nil {
				return nil, &UnsupportedSchemaError{Code: code, Line: line, Detail: "group terminator outside a group"}
			}
			g = nil
		default:
			if g == nil {
				return nil, &UnsupportedSchemaError{Code: code, Line: line, Detail: "assignment outside a namelist group"}
			}
			key, raw, ok := strings.Cut(text, "=")
			if !ok {
				return nil, &UnsupportedSchemaError{Code: code, Line: line, Detail: "expected key = value, got " + strconv.Quote(text)}
			}
			key = strings.ToLower(strings.TrimSpace(key))
			raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), ","))
			if key == "" {
				return nil, &UnsupportedSchemaError{Code: code, Line: line, Detail: "empty key"}
			}
			setTyped(g, key, raw)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &UnsupportedSchemaError{Code: code, Detail: err.Error()}
	}
	if g != nil {
		return nil, &UnsupportedSchemaError{Code: code, Detail: "unterminated namelist group " + g.Name}
	}
	if len(d.Groups()) == 0 {
		return nil, &UnsupportedSchemaError{Code: code, Detail: "no namelist groups found"}
	}
	return d, nil
}

// Reader wraps a parsed group and records which keys a driver's mapping
// consumed, so the rest can ride through conversion as passthrough.
type Reader struct {
	g    *deck.Group
	used map[string]bool
}

func NewReader(g *deck.Group) *Reader {
	return &Reader{g: g, used: make(map[string]bool)}
}

func (r *Reader) Float(key string, def float64) float64 {
	r.used[key] = true
	return r.g.Float(key, def)
}

func (r *Reader) Int(key string, def int) int {
	r.used[key] = true
	return r.g.Int(key, def)
}

func (r *Reader) Bool(key string, def bool) bool {
	r.used[key] = true
	return r.g.Bool(key, def)
}

func (r *Reader) Str(key string, def string) string {
	r.used[key] = true
	return r.g.String(key, def)
}

func (r *Reader) Has(key string) bool { return r.g.Has(key) }

// MarkUsed consumes a key without reading it.
func (r *Reader) MarkUsed(keys ...string) {
	for _, k := range keys {
		r.used[k] = true
	}
}

// Leftover records every unconsumed key under prefix+key in the
// passthrough channel, raw text preserved.
func (r *Reader) Leftover(prefix string, p *model.Passthrough) {
	for _, key := range r.g.Keys() {
		if r.used[key] {
			continue
		}
		v, _ := r.g.Get(key)
		p.Set(prefix+key, v.Raw)
	}
}

// EmitPassthrough re-emits the passthrough options under prefix into a
// group, verbatim and in their original order.
func EmitPassthrough(prefix string, p *model.Passthrough, g *deck.Group) {
	for _, key := range p.Keys() {
		if strings.HasPrefix(key, prefix) {
			raw, _ := p.Get(key)
			g.SetRaw(strings.TrimPrefix(key, prefix), raw)
		}
	}
}

func stripComment(line, marker string) string {
	if i := strings.Index(line, marker); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// setTyped stores the best typed interpretation of a raw token,
// keeping the original text so untouched options re-emit verbatim.
func setTyped(g *deck.Group, key, raw string) {
	v := deck.Value{Raw: raw}
	if b, ok := parseFortranBool(raw); ok {
		v.Kind, v.Bool = deck.KindBool, b
	} else if n, err := strconv.Atoi(raw); err == nil {
		v.Kind, v.Int = deck.KindInt, n
	} else if f, err := strconv.ParseFloat(normalizeFloat(raw), 64); err == nil {
		v.Kind, v.Float = deck.KindFloat, f
	} else {
		v.Kind, v.Str = deck.KindString, strings.Trim(raw, "'\"")
	}
	g.Set(key, v)
}

func parseFortranBool(raw string) (bool, bool) {
	switch strings.ToLower(raw) {
	case ".true.", ".t.", "t", "true":
		return true, true
	case ".false.", ".f.", "f", "false":
		return false, true
	}
	return false, false
}

// normalizeFloat rewrites Fortran double-precision exponents (1.0d-3)
// into Go-parsable form.
func normalizeFloat(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 'd', 'D':
			return 'e'
		}
		return r
	}, raw)
}
