// Package jsondoc provides a JSON document tree that survives a decode/encode
// round trip byte-for-byte: member order is preserved, numbers keep their
// source spelling, and a UTF-8 BOM is carried through. Game data files must
// come back out exactly as they went in everywhere a translation was not
// applied, which rules out map-based decoding.
package jsondoc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Member is a single key/value pair of an Object, in declared order.
type Member struct {
	Key   string
	Value any
}

// Object is a JSON object with stable member order.
type Object struct {
	members []Member
	index   map[string]int
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{index: make(map[string]int)}
}

// Len returns the number of members.
func (o *Object) Len() int { return len(o.members) }

// At returns the i-th member in declared order.
func (o *Object) At(i int) Member { return o.members[i] }

// Get returns the value for key and whether it exists.
func (o *Object) Get(key string) (any, bool) {
	i, ok := o.index[key]
	if !ok {
		return nil, false
	}
	return o.members[i].Value, true
}

// Set replaces the value for key in place, or appends a new member.
func (o *Object) Set(key string, v any) {
	if i, ok := o.index[key]; ok {
		o.members[i].Value = v
		return
	}
	o.index[key] = len(o.members)
	o.members = append(o.members, Member{Key: key, Value: v})
}

// Array is a JSON array. Items is exported so callers can mutate slots in place.
type Array struct {
	Items []any
}

// Document is one parsed JSON file. Values in the tree are *Object, *Array,
// string, json.Number, bool, or nil.
type Document struct {
	Root   any
	HasBOM bool
}

// Decode parses raw file bytes into a Document.
func Decode(data []byte) (*Document, error) {
	doc := &Document{}
	if bytes.HasPrefix(data, utf8BOM) {
		doc.HasBOM = true
		data = data[len(utf8BOM):]
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	root, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	if _, err := dec.Token(); err == nil {
		return nil, fmt.Errorf("decode document: trailing content after top-level value")
	}

	doc.Root = root
	return doc, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T, not string", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			arr := &Array{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr.Items = append(arr.Items, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		// string, json.Number, bool, or nil for null.
		return tok, nil
	}
}

// Encode serializes the document compactly, the layout the engine's editor
// itself writes, restoring the BOM if the source file had one.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if d.HasBOM {
		buf.Write(utf8BOM)
	}
	if err := encodeValue(&buf, d.Root); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(string(t))
	case string:
		return encodeString(buf, t)
	case *Array:
		buf.WriteByte('[')
		for i, item := range t.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *Object:
		buf.WriteByte('{')
		for i := 0; i < t.Len(); i++ {
			m := t.At(i)
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, m.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeValue(buf, m.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported node type %T", v)
	}
	return nil
}

// encodeString writes a JSON string without HTML escaping, matching the
// escaping the engine's own serializer uses.
func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	b := tmp.Bytes()
	buf.Write(b[:len(b)-1]) // drop the Encode trailing newline
	return nil
}
