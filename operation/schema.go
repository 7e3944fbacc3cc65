package operation

import (
	"strings"

	"github.com/pkg/errors"
)

// Schema declares the shape of a credential's data record: a set of named
// fields, each either a scalar leaf or a nested record.
type Schema struct {
	// Fields maps a field name to its nested schema; a nil entry declares
	// a scalar leaf.
	Fields map[string]*Schema `json:"fields"`
}

// NewSchema declares a flat schema of scalar fields.
func NewSchema(fields ...string) *Schema {
	s := &Schema{Fields: make(map[string]*Schema, len(fields))}
	for _, f := range fields {
		s.Fields[f] = nil
	}
	return s
}

// SchemaMismatchError reports an operation referencing data absent from, or
// shaped differently than, the declared schema. It is always raised at
// construction time, never during proving.
type SchemaMismatchError struct {
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return "schema mismatch: " + e.Reason
}

func schemaMismatchf(format string, args ...interface{}) error {
	return &SchemaMismatchError{Reason: errors.Errorf(format, args...).Error()}
}

// at resolves a property path. It returns the sub-schema at the path (nil for
// a scalar leaf) and whether the path exists.
func (s *Schema) at(path []string) (*Schema, bool) {
	cur := s
	for _, p := range path {
		if cur == nil {
			return nil, false
		}
		next, ok := cur.Fields[p]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Check verifies that a data value matches the schema exactly: same field
// names at every level, scalars at the leaves.
func (s *Schema) Check(v Value) error {
	return s.check(v, nil)
}

func (s *Schema) check(v Value, path []string) error {
	at := strings.Join(path, ".")
	if at == "" {
		at = "data"
	}
	if v.Kind() != RecordKind {
		return schemaMismatchf("%s: expected a record", at)
	}
	rec := v.Record()
	if len(rec) != len(s.Fields) {
		return schemaMismatchf("%s: got %d fields, schema declares %d", at, len(rec), len(s.Fields))
	}
	for name, sub := range s.Fields {
		fv, ok := rec[name]
		if !ok {
			return schemaMismatchf("%s: missing field %q", at, name)
		}
		if sub == nil {
			if fv.Kind() != ScalarKind {
				return schemaMismatchf("%s.%s: expected a scalar", at, name)
			}
			continue
		}
		if err := sub.check(fv, append(path, name)); err != nil {
			return err
		}
	}
	return nil
}
