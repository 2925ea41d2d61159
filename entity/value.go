package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is the type of a Value.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
	KindStringList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindStringList:
		return "string list"
	}
	return "invalid"
}

// A Value is one field of an entity's data. It holds exactly one of a
// string, a number, a boolean or a list of strings. The zero Value is
// invalid and is never stored.
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
	list []string
}

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// NumberValue returns a number Value.
func NumberValue(n float64) Value { return Value{kind: KindNumber, n: n} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// ListValue returns a string list Value. The list is copied.
func ListValue(items ...string) Value {
	return Value{kind: KindStringList, list: append([]string{}, items...)}
}

// Kind returns which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string held by v, if it holds one.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Num returns the number held by v, if it holds one.
func (v Value) Num() (float64, bool) { return v.n, v.kind == KindNumber }

// Bool returns the boolean held by v, if it holds one.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// List returns a copy of the string list held by v, if it holds one.
func (v Value) List() ([]string, bool) {
	if v.kind != KindStringList {
		return nil, false
	}
	return append([]string{}, v.list...), true
}

// IsEmpty is true for the empty string and the empty list. Numbers and
// booleans are never empty.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindString:
		return strings.TrimSpace(v.s) == ""
	case KindStringList:
		return len(v.list) == 0
	case KindInvalid:
		return true
	}
	return false
}

// Equal reports whether v and w hold the same variant and contents.
func (v Value) Equal(w Value) bool {
	if v.kind != w.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == w.s
	case KindNumber:
		return v.n == w.n
	case KindBool:
		return v.b == w.b
	case KindStringList:
		if len(v.list) != len(w.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != w.list[i] {
				return false
			}
		}
	}
	return true
}

// Text returns v rendered as plain text. Used for searching and sorting.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindStringList:
		return strings.Join(v.list, " ")
	}
	return ""
}

func (v Value) String() string {
	return v.Text()
}

// Interface returns the contents of v as a string, float64, bool or
// []string, or nil for the zero Value.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return v.n
	case KindBool:
		return v.b
	case KindStringList:
		return append([]string{}, v.list...)
	}
	return nil
}

// MarshalJSON renders v as the natural JSON value.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindNumber:
		return json.Marshal(v.n)
	case KindBool:
		return json.Marshal(v.b)
	case KindStringList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return nil, fmt.Errorf("cannot encode invalid value")
}

// UnmarshalJSON infers the kind from the JSON value. null, objects and
// arrays containing anything other than strings are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("lists may only contain strings")
		}
		*v = ListValue(list...)
	case 'n':
		return fmt.Errorf("null is not a value")
	case '{':
		return fmt.Errorf("objects are not values")
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = NumberValue(n)
	}
	return nil
}

// Data maps field ids to values.
type Data map[string]Value

// Merge returns a new Data holding d with every key in patch replacing the
// key of the same name. Keys not in patch are preserved.
func (d Data) Merge(patch Data) Data {
	result := make(Data, len(d)+len(patch))
	for k, v := range d {
		result[k] = v
	}
	for k, v := range patch {
		result[k] = v
	}
	return result
}

// String returns the string stored under key, or "".
func (d Data) String(key string) string {
	s, _ := d[key].Str()
	return s
}

// Keys returns the field ids in d, sorted.
func (d Data) Keys() []string {
	result := make([]string, 0, len(d))
	for k := range d {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
