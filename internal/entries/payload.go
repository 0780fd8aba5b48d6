package entries

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ubuygold/puzzlebox/internal/model"
)

// PayloadKind tells which of the three insert shapes a payload carries.
type PayloadKind int

const (
	PayloadSingle PayloadKind = iota
	PayloadBatch
	PayloadText
)

// Payload is an insert request normalized from one of its wire shapes:
// a JSON object, a JSON array of objects, or a delimited text blob.
type Payload struct {
	Kind     PayloadKind
	Single   Input
	Batch    []Input
	Raw      []any
	// Invalid maps batch indexes to the reason the item failed to decode.
	Invalid  map[int]string
	Text     string
	Category string
}

var errMalformedPayload = &ValidationError{Reason: "request body must be an entry object or an array of entries"}

// DecodePayload decodes a JSON request body into a single or batch payload.
func DecodePayload(body []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Payload{}, errMalformedPayload
	}

	switch trimmed[0] {
	case '{':
		var in Input
		if err := json.Unmarshal(trimmed, &in); err != nil {
			return Payload{}, errMalformedPayload
		}
		return Payload{Kind: PayloadSingle, Single: in}, nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return Payload{}, errMalformedPayload
		}
		if len(raw) == 0 {
			return Payload{}, &ValidationError{Reason: "no entries provided"}
		}
		p := Payload{Kind: PayloadBatch, Batch: make([]Input, len(raw)), Raw: make([]any, len(raw))}
		for i, item := range raw {
			var echo any
			if err := json.Unmarshal(item, &echo); err == nil {
				p.Raw[i] = echo
			} else {
				p.Raw[i] = string(item)
			}
			if err := json.Unmarshal(item, &p.Batch[i]); err != nil {
				if p.Invalid == nil {
					p.Invalid = make(map[int]string)
				}
				p.Invalid[i] = "invalid entry: " + err.Error()
			}
		}
		return p, nil
	default:
		return Payload{}, errMalformedPayload
	}
}

// TextPayload wraps a bulk text submission.
func TextPayload(text, category string) Payload {
	return Payload{Kind: PayloadText, Text: text, Category: category}
}

// Submission is the outcome of Submit; the field matching the payload kind is set.
type Submission struct {
	Entry *model.Entry
	Batch *BatchResult
	Text  *TextResult
}

// Submit dispatches a payload to the matching insert path.
func (s *Service) Submit(ctx context.Context, p Payload) (*Submission, error) {
	switch p.Kind {
	case PayloadSingle:
		entry, err := s.Add(ctx, p.Single)
		return &Submission{Entry: entry}, err
	case PayloadBatch:
		batch, err := s.addBatch(ctx, p.Batch, p.Raw, p.Invalid)
		return &Submission{Batch: batch}, err
	case PayloadText:
		text, err := s.AddText(ctx, p.Text, p.Category)
		return &Submission{Text: text}, err
	default:
		return nil, fmt.Errorf("unknown payload kind %d", p.Kind)
	}
}
