package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// record is one JSON object of a batch file. Field order and untouched
// values are kept exactly as read so a rewrite only changes what was set.
type record struct {
	keys   []string
	fields map[string]json.RawMessage
}

func (r *record) get(key string) (json.RawMessage, bool) {
	v, ok := r.fields[key]
	return v, ok
}

func (r *record) set(key string, v json.RawMessage) {
	if _, ok := r.fields[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = v
}

func (r *record) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("batch record must be an object, got %v", tok)
	}

	r.keys = nil
	r.fields = map[string]json.RawMessage{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("batch record key must be a string, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		r.set(key, raw)
	}
	_, err = dec.Token()
	return err
}

func (r record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(r.fields[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
