// Package simulated implements the proving-capability boundary without a
// SNARK: it executes the constraint body natively over poseidon and babyjubjub
// EdDSA and emits a commitment transcript binding the verification key, the
// public signals and a blinded witness commitment. Proofs produced here are
// not zero-knowledge proofs and carry no soundness against a malicious
// prover; the backend exists so the protocol core is executable and testable
// end-to-end behind the same interface a production backend would implement.
package simulated

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/iden3/go-private-credentials/backend"
	"github.com/iden3/go-private-credentials/constants"
	"github.com/iden3/go-private-credentials/operation"
	"github.com/pkg/errors"
)

// Protocol identifies proofs produced by this backend.
const Protocol = "simulated"

// ErrUnsatisfied is returned by RunProgram when the assignment does not
// satisfy the circuit.
var ErrUnsatisfied = errors.New("constraint system is not satisfied")

// Backend is the simulated proving backend. The zero value is not usable;
// construct with New.
type Backend struct{}

// New creates a simulated backend.
func New() *Backend {
	return &Backend{}
}

// Hash is a sponge poseidon over arbitrarily many field elements.
func (b *Backend) Hash(values []*big.Int) (*big.Int, error) {
	return poseidon.SpongeHashX(values, 6)
}

// CompileProgram derives the verification key from the circuit digest.
func (b *Backend) CompileProgram(ctx context.Context, circuit backend.Circuit) (backend.VerificationKey, error) {
	if err := ctx.Err(); err != nil {
		return backend.VerificationKey{}, err
	}
	digest, err := circuit.Digest(b)
	if err != nil {
		return backend.VerificationKey{}, errors.Wrap(err, "digest circuit")
	}
	vkHash, err := b.Hash([]*big.Int{operation.String(constants.VerificationKeyTag).Scalar(), digest})
	if err != nil {
		return backend.VerificationKey{}, err
	}
	return backend.VerificationKey{Hash: vkHash, Data: digest.Bytes()}, nil
}

type proofData struct {
	WitnessCommitment string `json:"witness_commitment"`
	Commitment        string `json:"commitment"`
}

// RunProgram executes the constraint body and, if every constraint holds,
// emits the transcript proof. The run is atomic: an unsatisfied constraint
// yields an error and no proof.
func (b *Backend) RunProgram(ctx context.Context, circuit backend.Circuit, vk backend.VerificationKey, assign backend.Assignment) (backend.Proof, error) {
	if err := ctx.Err(); err != nil {
		return backend.Proof{}, err
	}
	api := &circuitAPI{backend: b}
	output, err := circuit.Body(api, assign)
	if err != nil {
		return backend.Proof{}, errors.Wrap(ErrUnsatisfied, err.Error())
	}

	signals := append(append([]*big.Int{}, assign.PublicInput...), output...)
	signalsHash, err := b.Hash(signals)
	if err != nil {
		return backend.Proof{}, err
	}

	blinding, err := randomField()
	if err != nil {
		return backend.Proof{}, err
	}
	witnessCommitment, err := b.Hash(append(append([]*big.Int{}, assign.Private...), blinding))
	if err != nil {
		return backend.Proof{}, err
	}
	commitment, err := b.commitment(vk, signalsHash, witnessCommitment)
	if err != nil {
		return backend.Proof{}, err
	}

	data, err := json.Marshal(proofData{
		WitnessCommitment: witnessCommitment.String(),
		Commitment:        commitment.String(),
	})
	if err != nil {
		return backend.Proof{}, err
	}
	return backend.Proof{
		Protocol:   Protocol,
		PubSignals: backend.SignalsToStrings(signals),
		ProofData:  data,
	}, nil
}

// VerifyProof checks the transcript against the verification key and the
// public signals the verifier expects. Any divergence fails without
// reporting which part diverged.
func (b *Backend) VerifyProof(proof backend.Proof, vk backend.VerificationKey, publicSignals []*big.Int) error {
	if proof.Protocol != Protocol {
		return errors.Errorf("%s protocol is not supported", proof.Protocol)
	}
	embedded, err := proof.Signals()
	if err != nil {
		return err
	}
	if len(embedded) != len(publicSignals) {
		return errors.New("public signals do not match")
	}
	for i := range embedded {
		if embedded[i].Cmp(publicSignals[i]) != 0 {
			return errors.New("public signals do not match")
		}
	}

	var data proofData
	if err := json.Unmarshal(proof.ProofData, &data); err != nil {
		return errors.Wrap(err, "malformed proof data")
	}
	witnessCommitment, ok := new(big.Int).SetString(data.WitnessCommitment, 10)
	if !ok {
		return errors.New("malformed witness commitment")
	}
	claimed, ok := new(big.Int).SetString(data.Commitment, 10)
	if !ok {
		return errors.New("malformed commitment")
	}

	signalsHash, err := b.Hash(publicSignals)
	if err != nil {
		return err
	}
	expected, err := b.commitment(vk, signalsHash, witnessCommitment)
	if err != nil {
		return err
	}
	if expected.Cmp(claimed) != 0 {
		return errors.New("proof commitment does not verify")
	}
	return nil
}

func (b *Backend) commitment(vk backend.VerificationKey, signalsHash, witnessCommitment *big.Int) (*big.Int, error) {
	return b.Hash([]*big.Int{
		operation.String(constants.ProofTag).Scalar(),
		vk.Hash,
		signalsHash,
		witnessCommitment,
	})
}

// circuitAPI is the in-circuit capability surface of the simulated backend.
// Its arithmetic is byte-for-byte the plain calculator's arithmetic, which is
// what makes the in/out-of-circuit equivalence hold by construction; it
// additionally counts constraints for compile diagnostics.
type circuitAPI struct {
	backend     *Backend
	constraints int
}

func (a *circuitAPI) Equals(x, y *big.Int) *big.Int {
	a.constraints++
	if x.Cmp(y) == 0 {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

func (a *circuitAPI) And(x, y *big.Int) *big.Int {
	a.constraints++
	return new(big.Int).Mul(x, y)
}

func (a *circuitAPI) Or(x, y *big.Int) *big.Int {
	a.constraints++
	s := new(big.Int).Add(x, y)
	return s.Sub(s, new(big.Int).Mul(x, y))
}

func (a *circuitAPI) Hash(values []*big.Int) (*big.Int, error) {
	a.constraints += len(values)
	return a.backend.Hash(values)
}

func (a *circuitAPI) AssertTrue(v *big.Int, constraint string) error {
	a.constraints++
	if v.Cmp(big.NewInt(1)) != 0 {
		return errors.Errorf("constraint %q is not satisfied", constraint)
	}
	return nil
}

func (a *circuitAPI) VerifyEddsa(pub *babyjub.PublicKey, msg *big.Int, sig *babyjub.Signature) error {
	a.constraints++
	if pub == nil || sig == nil {
		return errors.New("eddsa check requires a key and a signature")
	}
	if !pub.VerifyPoseidon(msg, sig) {
		return errors.New("eddsa signature does not verify")
	}
	return nil
}

func (a *circuitAPI) VerifyProof(proof backend.Proof, vk backend.VerificationKey, publicSignals []*big.Int) error {
	a.constraints++
	return a.backend.VerifyProof(proof, vk, publicSignals)
}

func randomField() (*big.Int, error) {
	buf := make([]byte, 31)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.Wrap(err, "read randomness")
	}
	return new(big.Int).SetBytes(buf), nil
}
