/*
Package profile decodes and encodes iOS configuration profiles and pulls the DNS match
domains out of them.

Decoded payloads are exposed as a Value, a tagged union over the property list types.
Every accessor on Value is total: asking a string for a map key, or a map for its list
elements, yields the Invalid value or a nil slice instead of an error. Walks over
heterogeneous upstream payloads can therefore be written as straight chains of accessors.
*/
package profile

/*
revokeguard — merges iOS DNS profiles into a signed profile and rule lists
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"fmt"
	"sort"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	Invalid Kind = iota
	String
	Integer
	Unsigned
	Real
	Bool
	Date
	Data
	List
	Map
)

var kindNames = [...]string{
	Invalid:  "invalid",
	String:   "string",
	Integer:  "integer",
	Unsigned: "unsigned",
	Real:     "real",
	Bool:     "bool",
	Date:     "date",
	Data:     "data",
	List:     "list",
	Map:      "map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is one node of a decoded property list. The zero Value is Invalid.
type Value struct {
	kind Kind
	s    string
	i    int64
	u    uint64
	f    float64
	b    bool
	t    time.Time
	d    []byte
	l    []Value
	m    map[string]Value
}

// FromAny converts the generic tree produced by a plist decoder into a Value.
// Unsupported Go types map to Invalid rather than failing the conversion.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{}
	case Value:
		return x
	case string:
		return Value{kind: String, s: x}
	case bool:
		return Value{kind: Bool, b: x}
	case int:
		return Value{kind: Integer, i: int64(x)}
	case int8:
		return Value{kind: Integer, i: int64(x)}
	case int16:
		return Value{kind: Integer, i: int64(x)}
	case int32:
		return Value{kind: Integer, i: int64(x)}
	case int64:
		return Value{kind: Integer, i: x}
	case uint:
		return Value{kind: Unsigned, u: uint64(x)}
	case uint8:
		return Value{kind: Unsigned, u: uint64(x)}
	case uint16:
		return Value{kind: Unsigned, u: uint64(x)}
	case uint32:
		return Value{kind: Unsigned, u: uint64(x)}
	case uint64:
		return Value{kind: Unsigned, u: x}
	case float32:
		return Value{kind: Real, f: float64(x)}
	case float64:
		return Value{kind: Real, f: x}
	case time.Time:
		return Value{kind: Date, t: x}
	case []byte:
		return Value{kind: Data, d: x}
	case []any:
		l := make([]Value, len(x))
		for i, e := range x {
			l[i] = FromAny(e)
		}
		return Value{kind: List, l: l}
	case []string:
		l := make([]Value, len(x))
		for i, e := range x {
			l[i] = Value{kind: String, s: e}
		}
		return Value{kind: List, l: l}
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			m[k] = FromAny(e)
		}
		return Value{kind: Map, m: m}
	default:
		return Value{}
	}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds anything.
func (v Value) IsValid() bool { return v.kind != Invalid }

// Get returns the entry under key when v is a map, or Invalid otherwise.
func (v Value) Get(key string) Value {
	if v.kind != Map {
		return Value{}
	}
	return v.m[key]
}

// Index returns element i when v is a list and i is in range, or Invalid otherwise.
func (v Value) Index(i int) Value {
	if v.kind != List || i < 0 || i >= len(v.l) {
		return Value{}
	}
	return v.l[i]
}

// List returns the elements of a list, or nil for any other kind.
func (v Value) List() []Value {
	if v.kind != List {
		return nil
	}
	return v.l
}

// Keys returns the sorted keys of a map, or nil for any other kind.
func (v Value) Keys() []string {
	if v.kind != Map {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of list elements or map entries, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case List:
		return len(v.l)
	case Map:
		return len(v.m)
	}
	return 0
}

// Str returns the string held by v.
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

// Int returns v as a signed integer. Unsigned values that fit are converted.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case Integer:
		return v.i, true
	case Unsigned:
		if v.u <= 1<<63-1 {
			return int64(v.u), true
		}
	}
	return 0, false
}

// Float returns the real number held by v.
func (v Value) Float() (float64, bool) {
	if v.kind != Real {
		return 0, false
	}
	return v.f, true
}

// Bool returns the boolean held by v.
func (v Value) Bool() (bool, bool) {
	if v.kind != Bool {
		return false, false
	}
	return v.b, true
}

// Time returns the date held by v.
func (v Value) Time() (time.Time, bool) {
	if v.kind != Date {
		return time.Time{}, false
	}
	return v.t, true
}

// Bytes returns the data blob held by v.
func (v Value) Bytes() ([]byte, bool) {
	if v.kind != Data {
		return nil, false
	}
	return v.d, true
}

// Interface converts v back to the generic tree shape used by plist encoders.
func (v Value) Interface() any {
	switch v.kind {
	case String:
		return v.s
	case Integer:
		return v.i
	case Unsigned:
		return v.u
	case Real:
		return v.f
	case Bool:
		return v.b
	case Date:
		return v.t
	case Data:
		return v.d
	case List:
		out := make([]any, len(v.l))
		for i, e := range v.l {
			out[i] = e.Interface()
		}
		return out
	case Map:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Interface()
		}
		return out
	}
	return nil
}
