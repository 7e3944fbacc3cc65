package credential

import (
	"encoding/hex"
	"encoding/json"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-private-credentials/backend"
	"github.com/iden3/go-private-credentials/operation"
	"github.com/pkg/errors"
)

type credentialWire struct {
	Version string          `json:"version"`
	Owner   string          `json:"owner"`
	Data    operation.Value `json:"data"`
	Witness Witness         `json:"witness"`
}

// MarshalJSON encodes the credential losslessly, owner key compressed to hex.
func (c *Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(credentialWire{
		Version: c.Version,
		Owner:   compressPubKey(c.Owner),
		Data:    c.Data,
		Witness: c.Witness,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var w credentialWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	owner, err := decompressPubKey(w.Owner)
	if err != nil {
		return errors.Wrap(err, "owner key")
	}
	c.Version = w.Version
	c.Owner = owner
	c.Data = w.Data
	c.Witness = w.Witness
	return nil
}

type witnessWire struct {
	Type               WitnessType    `json:"type"`
	IssuerKey          string         `json:"issuerKey,omitempty"`
	Signature          string         `json:"signature,omitempty"`
	VerificationKeyRef string         `json:"verificationKeyRef,omitempty"`
	Proof              *backend.Proof `json:"proof,omitempty"`
	Inner              *Credential    `json:"inner,omitempty"`
}

// MarshalJSON encodes the witness with its variant tag preserved.
func (w Witness) MarshalJSON() ([]byte, error) {
	out := witnessWire{Type: w.Type}
	switch w.Type {
	case SignatureWitnessType:
		if w.Signature == nil {
			return nil, errors.New("signature witness payload is missing")
		}
		out.IssuerKey = compressPubKey(w.Signature.IssuerKey)
		sig := w.Signature.Signature.Compress()
		out.Signature = hex.EncodeToString(sig[:])
	case RecursiveWitnessType:
		if w.Recursive == nil {
			return nil, errors.New("recursive witness payload is missing")
		}
		out.VerificationKeyRef = w.Recursive.VerificationKeyRef
		p := w.Recursive.Proof
		out.Proof = &p
		out.Inner = w.Recursive.Inner
	default:
		return nil, errors.Errorf("unknown witness type %q", w.Type)
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (w *Witness) UnmarshalJSON(data []byte) error {
	var in witnessWire
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Type {
	case SignatureWitnessType:
		issuer, err := decompressPubKey(in.IssuerKey)
		if err != nil {
			return errors.Wrap(err, "issuer key")
		}
		sigBytes, err := hex.DecodeString(in.Signature)
		if err != nil {
			return errors.Wrap(err, "signature")
		}
		var comp babyjub.SignatureComp
		if len(sigBytes) != len(comp) {
			return errors.Errorf("signature length is not %d", len(comp))
		}
		copy(comp[:], sigBytes)
		sig, err := comp.Decompress()
		if err != nil {
			return errors.Wrap(err, "signature")
		}
		*w = Witness{
			Type:      SignatureWitnessType,
			Signature: &SignatureWitness{IssuerKey: issuer, Signature: sig},
		}
	case RecursiveWitnessType:
		if in.Proof == nil {
			return errors.New("recursive witness is missing its proof")
		}
		*w = Witness{
			Type: RecursiveWitnessType,
			Recursive: &RecursiveWitness{
				VerificationKeyRef: in.VerificationKeyRef,
				Proof:              *in.Proof,
				Inner:              in.Inner,
			},
		}
	default:
		return errors.Errorf("unknown witness type %q", in.Type)
	}
	return nil
}

func compressPubKey(pub *babyjub.PublicKey) string {
	comp := pub.Compress()
	return hex.EncodeToString(comp[:])
}

func decompressPubKey(s string) (*babyjub.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var comp babyjub.PublicKeyComp
	if len(raw) != len(comp) {
		return nil, errors.Errorf("compressed key length is not %d", len(comp))
	}
	copy(comp[:], raw)
	return comp.Decompress()
}
