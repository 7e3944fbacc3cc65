// Package program turns a verifier-authored spec into a compiled program: a
// public/private input layout with a memoized verification key, runnable
// through an opaque proving backend.
package program

import (
	"encoding/json"
	"math/big"
	"sort"

	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/iden3/go-private-credentials/operation"
	"github.com/pkg/errors"
)

// Spec is a verifier-authored statement: named inputs, a boolean assertion
// over them, and the record exposed as the program's public output. Immutable
// once constructed; construction fails on any schema mismatch, so no partial
// spec ever exists.
type Spec struct {
	inputs map[string]operation.Input
	assert *operation.Operation
	output *operation.Operation
}

// NewSpec validates the assertion and output claim against the declared
// inputs and constructs the spec.
func NewSpec(inputs map[string]operation.Input, assert, outputClaim *operation.Operation) (*Spec, error) {
	if len(inputs) == 0 {
		return nil, errors.New("spec requires at least one input")
	}
	for name, in := range inputs {
		switch in.Kind {
		case operation.CredentialInput:
			if in.Schema == nil {
				return nil, errors.Errorf("credential input %q has no schema", name)
			}
		case operation.ClaimInput:
			if in.Schema != nil {
				return nil, errors.Errorf("claim input %q must not declare a schema", name)
			}
		default:
			return nil, errors.Errorf("input %q has unknown kind %q", name, in.Kind)
		}
	}
	if assert == nil || outputClaim == nil {
		return nil, errors.New("spec requires an assertion and an output claim")
	}
	if err := assert.CheckBool(inputs); err != nil {
		return nil, err
	}
	if err := outputClaim.CheckRecord(inputs); err != nil {
		return nil, err
	}
	cp := make(map[string]operation.Input, len(inputs))
	for k, v := range inputs {
		cp[k] = v
	}
	return &Spec{inputs: cp, assert: assert, output: outputClaim}, nil
}

// Inputs returns the declared inputs.
func (s *Spec) Inputs() map[string]operation.Input {
	cp := make(map[string]operation.Input, len(s.inputs))
	for k, v := range s.inputs {
		cp[k] = v
	}
	return cp
}

// Input returns one declared input by name.
func (s *Spec) Input(name string) (operation.Input, bool) {
	in, ok := s.inputs[name]
	return in, ok
}

// CredentialInputs returns the credential-typed input names in slot order
// (sorted). The order fixes the private input layout and the needed-keys
// sequence for credential selection.
func (s *Spec) CredentialInputs() []string {
	return s.inputsOfKind(operation.CredentialInput)
}

// ClaimInputs returns the claim-typed input names in sorted order.
func (s *Spec) ClaimInputs() []string {
	return s.inputsOfKind(operation.ClaimInput)
}

func (s *Spec) inputsOfKind(kind operation.InputKind) []string {
	var names []string
	for name, in := range s.inputs {
		if in.Kind == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Assert returns the assertion expression.
func (s *Spec) Assert() *operation.Operation { return s.assert }

// OutputClaim returns the output claim expression.
func (s *Spec) OutputClaim() *operation.Operation { return s.output }

type specWire struct {
	Inputs      map[string]operation.Input `json:"inputs"`
	Assert      *operation.Operation       `json:"assert"`
	OutputClaim *operation.Operation       `json:"outputClaim"`
}

// MarshalJSON encodes the spec in its canonical wire form.
func (s *Spec) MarshalJSON() ([]byte, error) {
	return json.Marshal(specWire{Inputs: s.inputs, Assert: s.assert, OutputClaim: s.output})
}

// UnmarshalJSON decodes and re-validates the spec; a spec that would not
// construct does not unmarshal.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var w specWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	spec, err := NewSpec(w.Inputs, w.Assert, w.OutputClaim)
	if err != nil {
		return err
	}
	*s = *spec
	return nil
}

// Digest is a deterministic content digest of the spec, derived from its
// canonical wire form. Two specs with equal digests compile to the same
// constraint system.
func (s *Spec) Digest() (*big.Int, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "canonicalize spec")
	}
	return poseidon.HashBytes(raw)
}
