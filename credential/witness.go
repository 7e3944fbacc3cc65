package credential

import (
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-private-credentials/backend"
	"github.com/iden3/go-private-credentials/constants"
	"github.com/pkg/errors"
)

// ErrInvalidWitness is returned when a witness fails its cryptographic
// check. It carries no detail about which check failed.
var ErrInvalidWitness = errors.New("invalid witness")

// ErrAttestationTooDeep is returned when a recursive credential chain
// exceeds constants.MaxAttestationDepth.
var ErrAttestationTooDeep = errors.New("attestation chain exceeds maximum depth")

// WitnessType tags the witness union.
type WitnessType string

const (
	// SignatureWitnessType is a plain issuer signature over the
	// credential.
	SignatureWitnessType WitnessType = "signature"
	// RecursiveWitnessType is a proof from an inner program attesting the
	// credential.
	RecursiveWitnessType WitnessType = "recursive"
)

// Witness is the proof-of-issuance payload of a credential. Exactly one
// variant is set, selected by Type; verification dispatches exhaustively on
// the tag, so an unknown tag is always an error, never a silent pass.
type Witness struct {
	Type      WitnessType
	Signature *SignatureWitness
	Recursive *RecursiveWitness
}

// SignatureWitness is an issuer signature over (owner, data).
type SignatureWitness struct {
	IssuerKey *babyjub.PublicKey
	Signature *babyjub.Signature
}

// RecursiveWitness wraps a proof from an inner program whose public output is
// the credential hash of (owner, data). Inner optionally carries the
// attestation chain the proof was built from; when present the chain is
// verified eagerly and bounded in depth.
type RecursiveWitness struct {
	VerificationKeyRef string
	Proof              backend.Proof
	Inner              *Credential
}

// checker is the capability set witness verification needs. backend.API
// satisfies it directly, so the in-circuit path and the outside path run the
// same dispatch with the same checks.
type checker interface {
	Hash(values []*big.Int) (*big.Int, error)
	VerifyEddsa(pub *babyjub.PublicKey, msg *big.Int, sig *babyjub.Signature) error
	VerifyProof(proof backend.Proof, vk backend.VerificationKey, publicSignals []*big.Int) error
}

// outsideChecker adapts a Backend into the checker surface using plain host
// computation.
type outsideChecker struct {
	b backend.Backend
}

func (o outsideChecker) Hash(values []*big.Int) (*big.Int, error) {
	return o.b.Hash(values)
}

func (o outsideChecker) VerifyEddsa(pub *babyjub.PublicKey, msg *big.Int, sig *babyjub.Signature) error {
	if pub == nil || sig == nil {
		return errors.New("eddsa check requires a key and a signature")
	}
	if !pub.VerifyPoseidon(msg, sig) {
		return errors.New("eddsa signature does not verify")
	}
	return nil
}

func (o outsideChecker) VerifyProof(proof backend.Proof, vk backend.VerificationKey, publicSignals []*big.Int) error {
	return o.b.VerifyProof(proof, vk, publicSignals)
}

// VerifyOutsideCircuit checks the witness with plain host computation. It
// accepts exactly the witnesses VerifyInCircuit accepts.
func (c *Credential) VerifyOutsideCircuit(b backend.Backend, resolver KeyResolver) error {
	return c.verify(outsideChecker{b: b}, resolver, 1)
}

// VerifyInCircuit checks the witness through the in-circuit capability
// surface. It accepts exactly the witnesses VerifyOutsideCircuit accepts.
func (c *Credential) VerifyInCircuit(api backend.API, resolver KeyResolver) error {
	return c.verify(api, resolver, 1)
}

func (c *Credential) verify(chk checker, resolver KeyResolver, depth int) error {
	if depth > constants.MaxAttestationDepth {
		return ErrAttestationTooDeep
	}
	switch c.Witness.Type {
	case SignatureWitnessType:
		w := c.Witness.Signature
		if w == nil {
			return errors.Wrap(ErrInvalidWitness, "signature witness payload is missing")
		}
		msg, err := IssuanceMessage(chk, c.Owner, c.Data)
		if err != nil {
			return err
		}
		if err := chk.VerifyEddsa(w.IssuerKey, msg, w.Signature); err != nil {
			return errors.WithMessage(ErrInvalidWitness, "issuer signature")
		}
		return nil
	case RecursiveWitnessType:
		w := c.Witness.Recursive
		if w == nil {
			return errors.Wrap(ErrInvalidWitness, "recursive witness payload is missing")
		}
		if resolver == nil {
			return errors.New("recursive witness requires a key resolver")
		}
		vk, err := resolver.Resolve(w.VerificationKeyRef)
		if err != nil {
			return errors.Wrapf(err, "resolve verification key %q", w.VerificationKeyRef)
		}
		if vk.Hash.String() != w.VerificationKeyRef {
			return errors.WithMessage(ErrInvalidWitness, "verification key reference")
		}

		signals, err := w.Proof.Signals()
		if err != nil {
			return errors.WithMessage(ErrInvalidWitness, "public signals")
		}
		if len(signals) == 0 {
			return errors.WithMessage(ErrInvalidWitness, "empty public signals")
		}
		// The inner program's declared output is its last public
		// signal and must equal this credential's hash; a proof about
		// different data never silently substitutes it.
		expected, err := c.Hash(chk)
		if err != nil {
			return err
		}
		if signals[len(signals)-1].Cmp(expected) != 0 {
			return errors.WithMessage(ErrInvalidWitness, "output hash")
		}
		if err := chk.VerifyProof(w.Proof, vk, signals); err != nil {
			return errors.WithMessage(ErrInvalidWitness, "inner proof")
		}
		if w.Inner != nil {
			if err := w.Inner.verify(chk, resolver, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.Errorf("unknown witness type %q", c.Witness.Type)
	}
}
