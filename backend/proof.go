package backend

import (
	"encoding/hex"
	"encoding/json"
	"math/big"

	"github.com/pkg/errors"
)

// VerificationKey is the compiled artifact a verifier checks proofs against.
// Hash binds contexts and recursive issuer identities to the exact compiled
// program; Data is backend-specific key material.
type VerificationKey struct {
	Hash *big.Int
	Data []byte
}

// Ref returns the canonical string reference of the key, used by recursive
// witnesses and key registries.
func (vk VerificationKey) Ref() string {
	return vk.Hash.String()
}

type verificationKeyWire struct {
	Hash string `json:"hash"`
	Data string `json:"data,omitempty"`
}

// MarshalJSON encodes the key hash as a decimal string and the key material
// as hex.
func (vk VerificationKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(verificationKeyWire{
		Hash: vk.Hash.String(),
		Data: hex.EncodeToString(vk.Data),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (vk *VerificationKey) UnmarshalJSON(data []byte) error {
	var w verificationKeyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	h, ok := new(big.Int).SetString(w.Hash, 10)
	if !ok {
		return errors.Errorf("invalid verification key hash %q", w.Hash)
	}
	raw, err := hex.DecodeString(w.Data)
	if err != nil {
		return errors.Wrap(err, "invalid verification key data")
	}
	vk.Hash = h
	vk.Data = raw
	return nil
}

// Proof is an opaque proof plus the public signals it embeds. The signal
// layout is owned by the program that produced the proof: public input first,
// public output last.
type Proof struct {
	Protocol   string          `json:"protocol"`
	PubSignals []string        `json:"pub_signals"`
	ProofData  json.RawMessage `json:"proof_data"`
}

// Signals decodes the embedded public signals.
func (p *Proof) Signals() ([]*big.Int, error) {
	out := make([]*big.Int, len(p.PubSignals))
	for i, s := range p.PubSignals {
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, errors.Errorf("invalid public signal %q at index %d", s, i)
		}
		out[i] = n
	}
	return out, nil
}

// SignalsToStrings encodes public signals in their canonical decimal form.
func SignalsToStrings(signals []*big.Int) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = s.String()
	}
	return out
}
