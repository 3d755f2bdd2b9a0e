package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ErrUnknownDomain is returned for categories outside the closed domain set.
var ErrUnknownDomain = errors.New("unknown domain")

type Domain string

const (
	DomainMedical   Domain = "medical"
	DomainNature    Domain = "nature"
	DomainHousehold Domain = "household"
	DomainOther     Domain = "other"

	// DomainAll selects every base example. It never appears in scoring output.
	DomainAll Domain = "all"
)

// Domains returns the scored categories in report order.
func Domains() []Domain {
	return []Domain{DomainMedical, DomainNature, DomainHousehold, DomainOther}
}

func (d Domain) Valid() bool {
	switch d {
	case DomainMedical, DomainNature, DomainHousehold, DomainOther:
		return true
	}
	return false
}

func ParseDomain(s string) (Domain, error) {
	d := Domain(s)
	if d == DomainAll || d.Valid() {
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
}

// Sample is one scenario record. Stages add fields and write a new snapshot;
// a persisted sample is never edited in place except by the rerun pass.
type Sample struct {
	Prompt     string          `json:"prompt,omitempty"`
	Advice     string          `json:"advice,omitempty"`
	Domain     Domain          `json:"domain"`
	Benefit    string          `json:"benefit,omitempty"`
	Benefits   *Outcome        `json:"benefits,omitempty"`
	NewContext *Outcome        `json:"new_context,omitempty"`
	Bootstrap  []BootstrapPair `json:"bootstrap,omitempty"`
	Paraphrase *Outcome        `json:"paraphrase,omitempty"`
	Rationale  *Outcome        `json:"rationale,omitempty"`

	// Extra holds keys the store carried that no stage knows about. They are
	// written back after the known fields, sorted by key.
	Extra map[string]json.RawMessage `json:"-"`
}

// sampleFields has Sample's layout without its JSON methods.
type sampleFields Sample

var sampleKeys = jsonKeys(reflect.TypeOf(sampleFields{}))

func jsonKeys(t reflect.Type) map[string]bool {
	keys := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}

func (s *Sample) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		return nil
	}
	var f sampleFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for k := range all {
		if sampleKeys[k] {
			delete(all, k)
		}
	}
	*s = Sample(f)
	if len(all) > 0 {
		s.Extra = all
	}
	return nil
}

func (s Sample) MarshalJSON() ([]byte, error) {
	b, err := marshalRaw(sampleFields(s))
	if err != nil || len(s.Extra) == 0 {
		return b, err
	}

	keys := make([]string, 0, len(s.Extra))
	for k := range s.Extra {
		if !sampleKeys[k] && len(s.Extra[k]) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(b[:len(b)-1])
	for _, k := range keys {
		key, err := marshalRaw(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(s.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalRaw encodes v without HTML escaping, matching the batch files.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// BootstrapPair is a generated (context, advice) variation of a base sample.
type BootstrapPair struct {
	Prompt string `json:"prompt"`
	Advice string `json:"advice"`
}
