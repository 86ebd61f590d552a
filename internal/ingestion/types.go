// Package ingestion defines the record format documents travel in before
// they reach the indexer: JSON objects whose keys are field names. Key order
// is preserved in both directions because field order is part of a
// document.
package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
)

// Record is one source document. Key identifies it in its source (a map key
// of profiles.json, a primary key, a Kafka message key) and is used for
// logging and partitioning only.
type Record struct {
	Key    string
	Fields []document.Field
}

// Document converts r into an indexable document. When allow is non-empty
// only the named fields are kept.
func (r Record) Document(allow map[string]bool) document.Document {
	fields := make([]document.Field, 0, len(r.Fields))
	for _, f := range r.Fields {
		if len(allow) > 0 && !allow[f.Name] {
			continue
		}
		fields = append(fields, f)
	}
	return document.Document{Fields: fields}
}

// AllowList turns a configured field list into a lookup set; an empty list
// allows every field.
func AllowList(fields []string) map[string]bool {
	if len(fields) == 0 {
		return nil
	}
	allow := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			allow[f] = true
		}
	}
	return allow
}

// MarshalJSON writes the fields as an object in order. Repeated names
// become arrays.
func (r Record) MarshalJSON() ([]byte, error) {
	var (
		order  []string
		values = make(map[string][]string)
	)
	for _, f := range r.Fields {
		if _, seen := values[f.Name]; !seen {
			order = append(order, f.Name)
		}
		values[f.Name] = append(values[f.Name], f.Value)
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		var val []byte
		if vs := values[name]; len(vs) == 1 {
			val, err = json.Marshal(vs[0])
		} else {
			val, err = json.Marshal(vs)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object written by MarshalJSON or any flat JSON
// object. The Key is left untouched.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading record: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record must be a JSON object, got %v", tok)
	}
	fields, err := DecodeFields(dec)
	if err != nil {
		return err
	}
	r.Fields = fields
	return nil
}

// DecodeFields reads the members of an object whose opening brace has
// already been consumed, up to and including the closing brace. Strings,
// numbers and booleans become one field each; arrays of them become a
// repeated field; nulls are skipped. Nested objects are rejected.
func DecodeFields(dec *json.Decoder) ([]document.Field, error) {
	var fields []document.Field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading field name: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("reading field %q: %w", name, err)
		}
		values, err := scalars(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		for _, v := range values {
			fields = append(fields, document.Text(name, v))
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading end of record: %w", err)
	}
	return fields, nil
}

func scalars(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{x}, nil
	case json.Number:
		return []string{x.String()}, nil
	case bool:
		if x {
			return []string{"true"}, nil
		}
		return []string{"false"}, nil
	case []any:
		var out []string
		for _, item := range x {
			if _, nested := item.([]any); nested {
				return nil, fmt.Errorf("nested arrays are not supported")
			}
			vs, err := scalars(item)
			if err != nil {
				return nil, err
			}
			out = append(out, vs...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %T", v)
}
