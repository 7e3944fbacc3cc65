package presentation

import (
	"context"
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-private-credentials/credential"
	"github.com/iden3/go-private-credentials/program"
	"github.com/pkg/errors"
)

// Create is the wallet side of the protocol: derive the session context,
// compile the request's spec (memoized), select matching stored credentials,
// prove ownership, and run the program. Either a complete presentation is
// returned or an error; no partial presentation is ever observable.
//
// Cancelling ctx before proving starts aborts cleanly; the proving step
// itself is atomic.
func Create(ctx context.Context, owner *babyjub.PrivateKey, req *PresentationRequest, available []credential.Stored, opts ...Option) (*Presentation, error) {
	o := buildOptions(opts)
	if owner == nil {
		return nil, errors.New("create requires the owner key")
	}

	prog, err := resolveProgram(req, o)
	if err != nil {
		return nil, err
	}
	vk, err := prog.Compile(ctx)
	if err != nil {
		return nil, err
	}

	var clientNonce *big.Int
	if req.Policy == Contextful {
		clientNonce = o.clientNonce
		if clientNonce == nil {
			clientNonce, err = randomField()
			if err != nil {
				return nil, err
			}
		}
	}
	sessionContext, err := req.DeriveContext(o.backend, vk.Hash, clientNonce)
	if err != nil {
		return nil, err
	}

	needed := req.Spec.CredentialInputs()
	bound, err := credential.Pick(needed, available)
	if err != nil {
		return nil, err
	}
	// Witnesses are checked outside the circuit first, so an invalid
	// credential fails fast instead of surfacing mid-proving.
	for _, name := range needed {
		if err := bound[name].VerifyOutsideCircuit(o.backend, o.resolver); err != nil {
			return nil, errors.Wrapf(err, "credential for input %q", name)
		}
	}

	credentialHashes := make([]*big.Int, 0, len(needed))
	for _, name := range needed {
		h, err := bound[name].Hash(o.backend)
		if err != nil {
			return nil, err
		}
		credentialHashes = append(credentialHashes, h)
	}
	msg, err := program.OwnershipMessage(o.backend, sessionContext, credentialHashes)
	if err != nil {
		return nil, err
	}
	ownershipSig := owner.SignPoseidon(msg)

	proof, outputClaim, err := prog.Run(ctx, program.RunInput{
		Context:            sessionContext,
		Claims:             req.Claims,
		Credentials:        bound,
		Owner:              owner.Public(),
		OwnershipSignature: ownershipSig,
		KeyResolver:        o.resolver,
	})
	if err != nil {
		return nil, err
	}

	return &Presentation{
		Version:     Version,
		ClientNonce: clientNonce,
		Claims:      copyClaims(req.Claims),
		OutputClaim: outputClaim,
		Proof:       proof,
	}, nil
}
