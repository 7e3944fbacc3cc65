package operation

import (
	"math/big"
	"strings"

	"github.com/iden3/go-private-credentials/constants"
	"github.com/pkg/errors"
)

// Environment binds input names to concrete runtime data for evaluation.
type Environment struct {
	// Values holds the data record of each credential input and the value
	// of each claim input.
	Values map[string]Value
	// Issuers holds the issuer identity of each credential input.
	Issuers map[string]*big.Int
}

// Calc is the arithmetic table shared by the plain and circuit interpreters.
// Both walk the same tree with the same semantics; only the Calc differs, so
// the two evaluation paths cannot drift apart.
type Calc interface {
	// Equals returns 1 if a == b, else 0.
	Equals(a, b *big.Int) *big.Int
	// And returns the conjunction of two 0/1 values.
	And(a, b *big.Int) *big.Int
	// Or returns the disjunction of two 0/1 values.
	Or(a, b *big.Int) *big.Int
	// Hash is the backend's collision-resistant field hash.
	Hash(values []*big.Int) (*big.Int, error)
}

// plainCalc computes with host big-integer arithmetic.
type plainCalc struct {
	h Hasher
}

func (c plainCalc) Equals(a, b *big.Int) *big.Int {
	if a.Cmp(b) == 0 {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

func (c plainCalc) And(a, b *big.Int) *big.Int {
	return new(big.Int).Mul(a, b)
}

func (c plainCalc) Or(a, b *big.Int) *big.Int {
	// a + b - a*b over 0/1 values
	s := new(big.Int).Add(a, b)
	return s.Sub(s, new(big.Int).Mul(a, b))
}

func (c plainCalc) Hash(values []*big.Int) (*big.Int, error) {
	return c.h.Hash(values)
}

// PlainCalc returns the host-computation calculator backed by h.
func PlainCalc(h Hasher) Calc { return plainCalc{h: h} }

// Evaluate walks the expression with plain host computation.
func Evaluate(op *Operation, env *Environment, h Hasher) (Value, error) {
	return EvaluateWith(op, env, plainCalc{h: h})
}

// EvaluateWith walks the expression with the supplied calculator. The walker
// is the single source of evaluation semantics; it never reorders or
// short-circuits operands, so evaluation is deterministic across hosts and
// identical in and out of circuit.
func EvaluateWith(op *Operation, env *Environment, calc Calc) (Value, error) {
	switch op.kind {
	case KindProperty:
		v, ok := env.Values[op.input]
		if !ok {
			return Value{}, errors.Errorf("no binding for input %q", op.input)
		}
		for i, p := range op.path {
			if v.Kind() != RecordKind {
				return Value{}, errors.Errorf("input %q: %q is not a record", op.input, strings.Join(op.path[:i], "."))
			}
			fv, ok := v.Record()[p]
			if !ok {
				return Value{}, errors.Errorf("input %q has no field %q", op.input, strings.Join(op.path[:i+1], "."))
			}
			v = fv
		}
		return v, nil
	case KindConstant:
		return op.constant, nil
	case KindEquals:
		a, err := evalScalar(op.operands[0], env, calc)
		if err != nil {
			return Value{}, err
		}
		b, err := evalScalar(op.operands[1], env, calc)
		if err != nil {
			return Value{}, err
		}
		return Value{scalar: calc.Equals(a, b)}, nil
	case KindEqualsOneOf:
		x, err := evalScalar(op.operands[0], env, calc)
		if err != nil {
			return Value{}, err
		}
		found := big.NewInt(0)
		for _, o := range op.operands[1:] {
			s, err := evalScalar(o, env, calc)
			if err != nil {
				return Value{}, err
			}
			found = calc.Or(found, calc.Equals(x, s))
		}
		return Value{scalar: found}, nil
	case KindAnd:
		acc := big.NewInt(1)
		for _, o := range op.operands {
			s, err := evalScalar(o, env, calc)
			if err != nil {
				return Value{}, err
			}
			acc = calc.And(acc, s)
		}
		return Value{scalar: acc}, nil
	case KindHash:
		inputs := []*big.Int{String(constants.OperationHashTag).Scalar()}
		for _, o := range op.operands {
			v, err := EvaluateWith(o, env, calc)
			if err != nil {
				return Value{}, err
			}
			enc, err := encodeValue(v, calc)
			if err != nil {
				return Value{}, err
			}
			inputs = append(inputs, enc)
		}
		h, err := calc.Hash(inputs)
		if err != nil {
			return Value{}, err
		}
		return Value{scalar: h}, nil
	case KindIssuer:
		iss, ok := env.Issuers[op.input]
		if !ok {
			return Value{}, errors.Errorf("no issuer binding for input %q", op.input)
		}
		return Value{scalar: new(big.Int).Set(iss)}, nil
	case KindRecord:
		fields := make(map[string]Value, len(op.fields))
		for _, name := range op.fieldNames() {
			v, err := EvaluateWith(op.fields[name], env, calc)
			if err != nil {
				return Value{}, errors.Wrapf(err, "record field %s", name)
			}
			fields[name] = v
		}
		return Value{record: fields}, nil
	default:
		return Value{}, errors.Errorf("unknown operation kind %q", op.kind)
	}
}

func evalScalar(op *Operation, env *Environment, calc Calc) (*big.Int, error) {
	v, err := EvaluateWith(op, env, calc)
	if err != nil {
		return nil, err
	}
	if v.Kind() != ScalarKind {
		return nil, errors.Errorf("%s produced a record where a scalar is required", op.kind)
	}
	return v.Scalar(), nil
}

// encodeValue maps a value to its single-field encoding for hashing: scalars
// encode as themselves, records as their canonical hash.
func encodeValue(v Value, calc Calc) (*big.Int, error) {
	if v.Kind() == ScalarKind {
		return v.Scalar(), nil
	}
	return HashValueWith(v, calc)
}

// HashValueWith is HashValue expressed over a Calc, so record hashing inside
// a circuit goes through the same hash the rest of the constraint body uses.
func HashValueWith(v Value, calc Calc) (*big.Int, error) {
	if v.scalar == nil && v.record == nil {
		return nil, errors.New("cannot hash the zero value")
	}
	if v.Kind() == ScalarKind {
		return new(big.Int).Set(v.scalar), nil
	}
	inputs := []*big.Int{String(constants.RecordTag).Scalar()}
	for _, name := range v.fieldNames() {
		fh, err := HashValueWith(v.record[name], calc)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", name)
		}
		inputs = append(inputs, String(name).Scalar(), fh)
	}
	return calc.Hash(inputs)
}
