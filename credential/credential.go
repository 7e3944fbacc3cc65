// Package credential implements the credential model of the presentation
// protocol: owner-bound structured data plus a witness proving issuance
// validity, with signed and recursive witness variants behind one verify
// contract.
package credential

import (
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-private-credentials/backend"
	"github.com/iden3/go-private-credentials/constants"
	"github.com/iden3/go-private-credentials/operation"
	"github.com/pkg/errors"
)

// Version is the credential format version this package produces.
const Version = "1"

// KeyResolver maps a recursive witness's verification-key reference to key
// material. The reference is the decimal form of the key hash, so issuer
// identity derivation needs no resolution; proof verification does.
type KeyResolver interface {
	Resolve(ref string) (backend.VerificationKey, error)
}

// Credential is owner-bound structured data plus its proof of issuance.
// Immutable once issued.
type Credential struct {
	Version string
	Owner   *babyjub.PublicKey
	Data    operation.Value
	Witness Witness
}

// Hash is the canonical credential hash binding owner and data. Recursive
// issuance programs expose it as their public output.
func (c *Credential) Hash(h backend.Hasher) (*big.Int, error) {
	dataHash, err := operation.HashValue(h, c.Data)
	if err != nil {
		return nil, errors.Wrap(err, "hash credential data")
	}
	return h.Hash([]*big.Int{
		operation.String(constants.CredentialHashTag).Scalar(),
		c.Owner.X, c.Owner.Y,
		dataHash,
	})
}

// IssuanceMessage is the message a signed witness's issuer signs: a
// domain-separated hash of the owner key and the data.
func IssuanceMessage(h backend.Hasher, owner *babyjub.PublicKey, data operation.Value) (*big.Int, error) {
	dataHash, err := operation.HashValue(h, data)
	if err != nil {
		return nil, errors.Wrap(err, "hash credential data")
	}
	return h.Hash([]*big.Int{
		operation.String(constants.IssuanceTag).Scalar(),
		owner.X, owner.Y,
		dataHash,
	})
}

// Sign issues a credential: the issuer signs the owner key and data,
// producing a signed witness.
func Sign(issuer *babyjub.PrivateKey, owner *babyjub.PublicKey, data operation.Value, h backend.Hasher) (*Credential, error) {
	msg, err := IssuanceMessage(h, owner, data)
	if err != nil {
		return nil, err
	}
	sig := issuer.SignPoseidon(msg)
	return &Credential{
		Version: Version,
		Owner:   owner,
		Data:    data,
		Witness: Witness{
			Type: SignatureWitnessType,
			Signature: &SignatureWitness{
				IssuerKey: issuer.Public(),
				Signature: sig,
			},
		},
	}, nil
}

// FromProgramRun issues a recursive credential from a proof whose public
// output is the credential hash of (owner, data). The inner credential chain,
// if carried, is resolved eagerly at verification time.
func FromProgramRun(proof backend.Proof, vk backend.VerificationKey, owner *babyjub.PublicKey, data operation.Value, inner *Credential) *Credential {
	return &Credential{
		Version: Version,
		Owner:   owner,
		Data:    data,
		Witness: Witness{
			Type: RecursiveWitnessType,
			Recursive: &RecursiveWitness{
				VerificationKeyRef: vk.Ref(),
				Proof:              proof,
				Inner:              inner,
			},
		},
	}
}

// Issuer derives the credential's issuer identity. For signed witnesses it is
// the hash of the issuer key; for recursive witnesses it is derived from
// which program attested the credential and with what public signals, which
// is what makes issuance provenance chainable.
func (c *Credential) Issuer(h backend.Hasher) (*big.Int, error) {
	switch c.Witness.Type {
	case SignatureWitnessType:
		w := c.Witness.Signature
		if w == nil {
			return nil, errors.New("signature witness payload is missing")
		}
		return h.Hash([]*big.Int{
			operation.String(constants.SignedIssuerTag).Scalar(),
			w.IssuerKey.X, w.IssuerKey.Y,
		})
	case RecursiveWitnessType:
		w := c.Witness.Recursive
		if w == nil {
			return nil, errors.New("recursive witness payload is missing")
		}
		vkHash, ok := new(big.Int).SetString(w.VerificationKeyRef, 10)
		if !ok {
			return nil, errors.Errorf("invalid verification key reference %q", w.VerificationKeyRef)
		}
		signals, err := w.Proof.Signals()
		if err != nil {
			return nil, err
		}
		signalsHash, err := h.Hash(signals)
		if err != nil {
			return nil, err
		}
		return h.Hash([]*big.Int{
			operation.String(constants.RecursiveIssuerTag).Scalar(),
			vkHash,
			signalsHash,
		})
	default:
		return nil, errors.Errorf("unknown witness type %q", c.Witness.Type)
	}
}
