// Package backend declares the narrow boundary between the presentation
// protocol core and an opaque proving capability: program compilation, proof
// generation, proof verification and field-element hashing. The core never
// assumes anything about the proof system behind this interface.
package backend

import (
	"context"
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-private-credentials/operation"
)

// Hasher is a collision-resistant hash over field elements.
type Hasher interface {
	Hash(values []*big.Int) (*big.Int, error)
}

// Assignment carries the inputs of one program run: the public input the
// verifier will recompute, and the flattened private input the proof commits
// to.
type Assignment struct {
	PublicInput []*big.Int
	Private     []*big.Int
}

// API is the in-circuit capability surface handed to a circuit body. It
// extends the expression calculator with constraint assertion and the
// cryptographic checks credential witnesses need.
type API interface {
	operation.Calc

	// AssertTrue constrains v to be the boolean encoding of true. The
	// constraint name is for diagnostics during witness generation only
	// and never reaches a verifier.
	AssertTrue(v *big.Int, constraint string) error
	// VerifyEddsa constrains sig to be a valid signature by pub over msg.
	VerifyEddsa(pub *babyjub.PublicKey, msg *big.Int, sig *babyjub.Signature) error
	// VerifyProof constrains proof to verify under vk with the given
	// public signals, enabling recursive composition.
	VerifyProof(proof Proof, vk VerificationKey, publicSignals []*big.Int) error
}

// Circuit is a constraint system the backend can compile and run.
type Circuit interface {
	// Digest is a deterministic content digest of the constraint system.
	// Two circuits with the same digest must enforce the same
	// constraints; the verification-key hash is derived from it.
	Digest(h Hasher) (*big.Int, error)
	// Body enforces the constraints over the assignment through the
	// in-circuit api and returns the public output. An unsatisfiable
	// constraint is reported as an error; no proof can be produced from
	// it.
	Body(api API, assign Assignment) ([]*big.Int, error)
}

// Backend is the opaque proving capability.
type Backend interface {
	Hasher

	// CompileProgram compiles the circuit into a verification key. It may
	// be expensive; callers memoize it per program.
	CompileProgram(ctx context.Context, circuit Circuit) (VerificationKey, error)
	// RunProgram produces a proof for one satisfying assignment. Either a
	// complete proof is returned or an error; no partial proof is
	// observable.
	RunProgram(ctx context.Context, circuit Circuit, vk VerificationKey, assign Assignment) (Proof, error)
	// VerifyProof checks the proof against the verification key and the
	// expected public signals. It is pure and repeatable.
	VerifyProof(proof Proof, vk VerificationKey, publicSignals []*big.Int) error
}
