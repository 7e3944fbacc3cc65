package operation

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// opWire is the tagged JSON form of an Operation.
type opWire struct {
	Type     Kind                  `json:"type"`
	Input    string                `json:"input,omitempty"`
	Path     []string              `json:"path,omitempty"`
	Value    *Value                `json:"value,omitempty"`
	Operands []*Operation          `json:"operands,omitempty"`
	Fields   map[string]*Operation `json:"fields,omitempty"`
}

// MarshalJSON encodes the node with a type discriminator, keeping the wire
// form lossless for every node kind.
func (op *Operation) MarshalJSON() ([]byte, error) {
	w := opWire{Type: op.kind}
	switch op.kind {
	case KindProperty, KindIssuer:
		w.Input = op.input
		w.Path = op.path
	case KindConstant:
		v := op.constant
		w.Value = &v
	case KindEquals, KindEqualsOneOf, KindAnd, KindHash:
		w.Operands = op.operands
	case KindRecord:
		w.Fields = op.fields
	default:
		return nil, errors.Errorf("unknown operation kind %q", op.kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON. Shape validation beyond the
// node itself happens when the containing spec is constructed.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var w opWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*op = Operation{kind: w.Type}
	switch w.Type {
	case KindProperty, KindIssuer:
		op.input = w.Input
		op.path = w.Path
	case KindConstant:
		if w.Value == nil {
			return errors.New("constant operation is missing its value")
		}
		op.constant = *w.Value
	case KindEquals, KindEqualsOneOf, KindAnd, KindHash:
		op.operands = w.Operands
	case KindRecord:
		op.fields = w.Fields
	default:
		return errors.Errorf("unknown operation kind %q", w.Type)
	}
	return nil
}
