package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Failure records a completion call that must be retried: the error text plus
// every parameter needed to reissue the exact call.
type Failure struct {
	Error    string    `json:"error"`
	Prompt   string    `json:"prompt,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Model    Model     `json:"model"`
	Options
}

// NewFailure captures a failed call.
func NewFailure(err error, in Prompt, model Model, opts Options) *Failure {
	f := &Failure{Model: model, Options: opts}
	if err != nil {
		f.Error = err.Error()
	}
	if in.IsChat() {
		f.Messages = in.Messages()
	} else {
		f.Prompt = in.Text()
	}
	return f
}

// Input rebuilds the original prompt. The shape follows the model, the same
// rule the gateway dispatches on.
func (f *Failure) Input() Prompt {
	if f.Model.IsChat() {
		return ChatPrompt(f.Messages)
	}
	return TextPrompt(f.Prompt)
}

// Result is what the gateway returns for one call: a success carrying text,
// or a failure carrying the call to retry.
type Result struct {
	text    string
	failure *Failure
}

func Success(text string) Result { return Result{text: text} }

func Failed(f *Failure) Result { return Result{failure: f} }

func (r Result) OK() bool { return r.failure == nil }

func (r Result) Text() string { return r.text }

func (r Result) Failure() *Failure { return r.failure }

// Outcome converts r into its stored form, keeping the text as is.
func (r Result) Outcome() *Outcome {
	if r.failure != nil {
		return FailedOutcome(r.failure)
	}
	return TextOutcome(r.text)
}

type outcomeKind int

const (
	outcomeText outcomeKind = iota
	outcomeItems
	outcomeFailure
)

// Outcome is a stored completion field: plain text, a parsed item list, or a
// failure sentinel. On disk the three are a JSON string, array and object, so
// the variant is always recoverable from the JSON type alone.
type Outcome struct {
	kind    outcomeKind
	text    string
	items   []string
	failure *Failure
}

func TextOutcome(text string) *Outcome { return &Outcome{kind: outcomeText, text: text} }

func ItemsOutcome(items []string) *Outcome {
	if items == nil {
		items = []string{}
	}
	return &Outcome{kind: outcomeItems, items: items}
}

func FailedOutcome(f *Failure) *Outcome { return &Outcome{kind: outcomeFailure, failure: f} }

func (o *Outcome) Failed() bool { return o != nil && o.kind == outcomeFailure }

func (o *Outcome) Failure() *Failure {
	if o.Failed() {
		return o.failure
	}
	return nil
}

func (o *Outcome) Text() (string, bool) {
	if o == nil || o.kind != outcomeText {
		return "", false
	}
	return o.text, true
}

func (o *Outcome) Items() ([]string, bool) {
	if o == nil || o.kind != outcomeItems {
		return nil, false
	}
	return o.items, true
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	switch o.kind {
	case outcomeItems:
		return json.Marshal(o.items)
	case outcomeFailure:
		return json.Marshal(o.failure)
	default:
		return json.Marshal(o.text)
	}
}

func (o *Outcome) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("empty outcome")
	}
	if string(b) == "null" {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*o = Outcome{kind: outcomeText, text: s}
	case '[':
		var items []string
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*o = *ItemsOutcome(items)
	case '{':
		var f Failure
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
		*o = Outcome{kind: outcomeFailure, failure: &f}
	default:
		return fmt.Errorf("outcome must be a string, array or object, got %s", b)
	}
	return nil
}
