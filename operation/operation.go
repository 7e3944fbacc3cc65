// Package operation implements the declarative assertion DSL of the
// presentation protocol: expression trees over credential fields and verifier
// claims that evaluate to the same value inside a circuit and in plain host
// computation.
package operation

import (
	"sort"
	"strings"
)

// Kind tags an expression node.
type Kind string

const (
	// KindProperty reads a field of a named input.
	KindProperty Kind = "property"
	// KindConstant embeds a fixed value.
	KindConstant Kind = "constant"
	// KindEquals compares two scalars for equality.
	KindEquals Kind = "equals"
	// KindEqualsOneOf holds iff the first operand equals at least one
	// element of the remaining operands.
	KindEqualsOneOf Kind = "equalsOneOf"
	// KindAnd is boolean conjunction over all operands.
	KindAnd Kind = "and"
	// KindHash is a domain-separated hash of the operands' encodings.
	KindHash Kind = "hash"
	// KindIssuer is the issuer identity of a credential input.
	KindIssuer Kind = "issuer"
	// KindRecord builds a record output with named fields.
	KindRecord Kind = "record"
)

// Operation is a node of an assertion or output expression. Nodes are
// immutable after construction; sharing sub-expressions is allowed, cycles
// are not constructible through the package API.
type Operation struct {
	kind     Kind
	input    string
	path     []string
	constant Value
	operands []*Operation
	fields   map[string]*Operation
}

// Kind returns the node tag.
func (op *Operation) Kind() Kind { return op.kind }

// Property reads a field of the named input. An empty path reads the whole
// input, which is how claim inputs are referenced.
func Property(input string, path ...string) *Operation {
	return &Operation{kind: KindProperty, input: input, path: append([]string(nil), path...)}
}

// Constant embeds a fixed value into the expression.
func Constant(v Value) *Operation {
	return &Operation{kind: KindConstant, constant: v}
}

// Equals compares two scalar expressions.
func Equals(a, b *Operation) *Operation {
	return &Operation{kind: KindEquals, operands: []*Operation{a, b}}
}

// EqualsOneOf holds iff x equals at least one element of set. Membership is a
// linear scan; every element is evaluated.
func EqualsOneOf(x *Operation, set ...*Operation) *Operation {
	return &Operation{kind: KindEqualsOneOf, operands: append([]*Operation{x}, set...)}
}

// And is the conjunction of all operands. It is associative; all operands are
// evaluated.
func And(ops ...*Operation) *Operation {
	return &Operation{kind: KindAnd, operands: append([]*Operation(nil), ops...)}
}

// Hash combines the operands' field encodings under a domain-separated,
// collision-resistant hash. Used to build data-derived identifiers such as
// nullifiers.
func Hash(ops ...*Operation) *Operation {
	return &Operation{kind: KindHash, operands: append([]*Operation(nil), ops...)}
}

// Issuer is the issuer identity of the named credential input.
func Issuer(input string) *Operation {
	return &Operation{kind: KindIssuer, input: input}
}

// Record builds a record output with the given named fields.
func Record(fields map[string]*Operation) *Operation {
	cp := make(map[string]*Operation, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return &Operation{kind: KindRecord, fields: cp}
}

// InputKind distinguishes credential inputs from verifier-supplied claims.
type InputKind string

const (
	// CredentialInput is backed by a stored credential and requires
	// proof of issuance.
	CredentialInput InputKind = "credential"
	// ClaimInput is a public scalar fixed by the verifier at request
	// time.
	ClaimInput InputKind = "claim"
)

// Input declares one named input of a spec.
type Input struct {
	Kind InputKind `json:"kind"`
	// Schema declares the data shape of a credential input; nil for
	// claims.
	Schema *Schema `json:"schema,omitempty"`
}

// expression result types, used only by construction-time checking
type resultType int

const (
	typeScalar resultType = iota
	typeBool
	typeRecord
)

// Check validates the expression against the declared inputs: every property
// reference must resolve, operand types must line up. A failure here is a
// SchemaMismatchError and aborts spec construction before any proving work.
func (op *Operation) Check(inputs map[string]Input) error {
	_, err := op.typeCheck(inputs)
	return err
}

// CheckBool is Check plus the requirement that the expression is boolean,
// which is what an assertion must be.
func (op *Operation) CheckBool(inputs map[string]Input) error {
	t, err := op.typeCheck(inputs)
	if err != nil {
		return err
	}
	if t != typeBool {
		return schemaMismatchf("assertion must be a boolean expression, %s is not", op.kind)
	}
	return nil
}

// CheckRecord is Check plus the requirement that the expression produces a
// record, which is what an output claim must be.
func (op *Operation) CheckRecord(inputs map[string]Input) error {
	t, err := op.typeCheck(inputs)
	if err != nil {
		return err
	}
	if t != typeRecord {
		return schemaMismatchf("output claim must be a record expression, %s is not", op.kind)
	}
	return nil
}

func (op *Operation) typeCheck(inputs map[string]Input) (resultType, error) {
	switch op.kind {
	case KindProperty:
		in, ok := inputs[op.input]
		if !ok {
			return 0, schemaMismatchf("property references undeclared input %q", op.input)
		}
		if in.Kind == ClaimInput {
			if len(op.path) != 0 {
				return 0, schemaMismatchf("claim input %q has no fields, path %q does not resolve", op.input, strings.Join(op.path, "."))
			}
			return typeScalar, nil
		}
		sub, ok := in.Schema.at(op.path)
		if !ok {
			return 0, schemaMismatchf("input %q has no field %q", op.input, strings.Join(op.path, "."))
		}
		if sub == nil {
			return typeScalar, nil
		}
		return typeRecord, nil
	case KindConstant:
		if op.constant.Scalar() == nil && op.constant.Record() == nil {
			return 0, schemaMismatchf("constant holds no value")
		}
		if op.constant.Kind() == RecordKind {
			return typeRecord, nil
		}
		return typeScalar, nil
	case KindEquals:
		if len(op.operands) != 2 {
			return 0, schemaMismatchf("equals requires exactly two operands")
		}
		for _, o := range op.operands {
			if err := requireScalar(o, inputs); err != nil {
				return 0, err
			}
		}
		return typeBool, nil
	case KindEqualsOneOf:
		if len(op.operands) < 2 {
			return 0, schemaMismatchf("equalsOneOf requires a value and a non-empty set")
		}
		for _, o := range op.operands {
			if err := requireScalar(o, inputs); err != nil {
				return 0, err
			}
		}
		return typeBool, nil
	case KindAnd:
		if len(op.operands) == 0 {
			return 0, schemaMismatchf("and requires at least one operand")
		}
		for _, o := range op.operands {
			t, err := o.typeCheck(inputs)
			if err != nil {
				return 0, err
			}
			if t != typeBool {
				return 0, schemaMismatchf("and operand must be boolean, %s is not", o.kind)
			}
		}
		return typeBool, nil
	case KindHash:
		if len(op.operands) == 0 {
			return 0, schemaMismatchf("hash requires at least one operand")
		}
		for _, o := range op.operands {
			if _, err := o.typeCheck(inputs); err != nil {
				return 0, err
			}
		}
		return typeScalar, nil
	case KindIssuer:
		in, ok := inputs[op.input]
		if !ok {
			return 0, schemaMismatchf("issuer references undeclared input %q", op.input)
		}
		if in.Kind != CredentialInput {
			return 0, schemaMismatchf("issuer requires a credential input, %q is a claim", op.input)
		}
		return typeScalar, nil
	case KindRecord:
		if len(op.fields) == 0 {
			return 0, schemaMismatchf("record requires at least one field")
		}
		for _, name := range op.fieldNames() {
			if _, err := op.fields[name].typeCheck(inputs); err != nil {
				return 0, err
			}
		}
		return typeRecord, nil
	default:
		return 0, schemaMismatchf("unknown operation kind %q", op.kind)
	}
}

func requireScalar(op *Operation, inputs map[string]Input) error {
	t, err := op.typeCheck(inputs)
	if err != nil {
		return err
	}
	if t == typeRecord {
		return schemaMismatchf("%s requires scalar operands, got a record", op.kind)
	}
	return nil
}

func (op *Operation) fieldNames() []string {
	names := make([]string, 0, len(op.fields))
	for k := range op.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
