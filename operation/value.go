package operation

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/pkg/errors"
)

// Hasher is the narrow hashing capability the engine needs from a proving
// backend: a collision-resistant hash over field elements.
type Hasher interface {
	Hash(values []*big.Int) (*big.Int, error)
}

// ValueKind distinguishes the two runtime value shapes.
type ValueKind string

const (
	// ScalarKind is a single field element.
	ScalarKind ValueKind = "scalar"
	// RecordKind is an order-insensitive record of named values.
	RecordKind ValueKind = "record"
)

// Value is the runtime data the engine computes over: a field element or a
// record of named values. Values are immutable once constructed.
type Value struct {
	scalar *big.Int
	record map[string]Value
}

// Field wraps a field element into a value.
func Field(x *big.Int) Value {
	return Value{scalar: new(big.Int).Set(x)}
}

// Uint64 encodes an unsigned integer into a value.
func Uint64(x uint64) Value {
	return Value{scalar: new(big.Int).SetUint64(x)}
}

// Bool encodes a boolean as the field element 0 or 1.
func Bool(b bool) Value {
	if b {
		return Uint64(1)
	}
	return Uint64(0)
}

// String encodes a string into the field deterministically. Short strings
// (up to 31 bytes) embed directly so the encoding is injective for them;
// longer strings are hashed.
func String(s string) Value {
	b := []byte(s)
	if len(b) <= 31 {
		return Value{scalar: new(big.Int).SetBytes(b)}
	}
	h, err := poseidon.HashBytes(b)
	if err != nil {
		// HashBytes only fails on inputs the chunking above cannot
		// produce.
		panic(fmt.Sprintf("operation: string encoding failed: %v", err))
	}
	return Value{scalar: h}
}

// RecordValue builds a record value with the given named fields.
func RecordValue(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{record: cp}
}

// Kind reports whether the value is a scalar or a record.
func (v Value) Kind() ValueKind {
	if v.record != nil {
		return RecordKind
	}
	return ScalarKind
}

// Scalar returns the field element of a scalar value, or nil for records.
func (v Value) Scalar() *big.Int {
	return v.scalar
}

// Record returns the named fields of a record value, or nil for scalars.
// The returned map must not be mutated.
func (v Value) Record() map[string]Value {
	return v.record
}

// IsTrue reports whether the value is the boolean encoding of true.
func (v Value) IsTrue() bool {
	return v.scalar != nil && v.scalar.Cmp(big.NewInt(1)) == 0
}

// Equal reports deep equality of two values.
func (v Value) Equal(o Value) bool {
	if v.Kind() != o.Kind() {
		return false
	}
	if v.Kind() == ScalarKind {
		if v.scalar == nil || o.scalar == nil {
			return v.scalar == o.scalar
		}
		return v.scalar.Cmp(o.scalar) == 0
	}
	if len(v.record) != len(o.record) {
		return false
	}
	for k, fv := range v.record {
		ov, ok := o.record[k]
		if !ok || !fv.Equal(ov) {
			return false
		}
	}
	return true
}

// fieldNames returns record field names in canonical (sorted) order.
func (v Value) fieldNames() []string {
	names := make([]string, 0, len(v.record))
	for k := range v.record {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// HashValue computes the canonical hash of a value. Scalars hash to
// themselves; records hash to a domain-separated combination of sorted
// (name, value-hash) pairs, so the result is independent of field order.
func HashValue(h Hasher, v Value) (*big.Int, error) {
	return HashValueWith(v, PlainCalc(h))
}

// MarshalJSON encodes scalars as decimal strings and records as objects.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.scalar == nil && v.record == nil {
		return nil, errors.New("cannot marshal the zero value")
	}
	if v.Kind() == ScalarKind {
		return json.Marshal(v.scalar.String())
	}
	return json.Marshal(v.record)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return errors.Errorf("invalid scalar value %q", s)
		}
		v.scalar = n
		v.record = nil
		return nil
	}
	var rec map[string]Value
	if err := json.Unmarshal(data, &rec); err != nil {
		return errors.Wrap(err, "value must be a decimal string or an object")
	}
	v.scalar = nil
	v.record = rec
	return nil
}
