package presentation

import (
	"context"
	"math/big"

	"github.com/iden3/go-private-credentials/operation"
	"github.com/iden3/go-private-credentials/program"
)

// Verify is the verifier side of the protocol: recompute the session context
// and the expected public signals independently from the request, then check
// the presentation's proof against the program's verification key. On success
// it returns the output claim.
//
// Verification is pure and repeatable. Every failure collapses to
// ErrInvalidProof; which sub-check diverged is deliberately not reported.
func Verify(ctx context.Context, req *PresentationRequest, pres *Presentation, opts ...Option) (operation.Value, error) {
	o := buildOptions(opts)
	if pres == nil {
		return operation.Value{}, ErrInvalidProof
	}

	prog, err := resolveProgram(req, o)
	if err != nil {
		return operation.Value{}, err
	}
	vk, err := prog.Compile(ctx)
	if err != nil {
		return operation.Value{}, err
	}

	sessionContext, err := req.DeriveContext(o.backend, vk.Hash, pres.ClientNonce)
	if err != nil {
		return operation.Value{}, ErrInvalidProof
	}
	claimsHash, err := program.ClaimsHash(o.backend, req.Claims)
	if err != nil {
		return operation.Value{}, ErrInvalidProof
	}
	outputHash, err := operation.HashValue(o.backend, pres.OutputClaim)
	if err != nil {
		return operation.Value{}, ErrInvalidProof
	}

	expected := []*big.Int{sessionContext, claimsHash, outputHash}
	if err := o.backend.VerifyProof(pres.Proof, vk, expected); err != nil {
		return operation.Value{}, ErrInvalidProof
	}
	return pres.OutputClaim, nil
}
