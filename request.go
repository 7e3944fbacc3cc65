package presentation

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
	"github.com/iden3/go-private-credentials/backend"
	"github.com/iden3/go-private-credentials/constants"
	"github.com/iden3/go-private-credentials/operation"
	"github.com/iden3/go-private-credentials/program"
	"github.com/pkg/errors"
)

// RequestType distinguishes the transport a request travels over. It is
// hashed into contextful contexts, so a proof created for one transport
// cannot be replayed over another.
type RequestType string

const (
	// InteractiveRequest is a live request/response exchange.
	InteractiveRequest RequestType = "interactive"
	// OfflineRequest is presented without a live verifier session.
	OfflineRequest RequestType = "offline"
)

// ContextPolicy selects the replay-protection scheme of a request.
type ContextPolicy string

const (
	// Contextful binds presentations to this exact request session.
	Contextful ContextPolicy = "contextful"
	// Contextless uses the zero sentinel context and offers no replay
	// protection. Callers opt in explicitly.
	Contextless ContextPolicy = "contextless"
)

// PresentationRequest is a verifier-authored request: the spec to prove,
// the public claims fixed for this session, and the context policy binding a
// presentation to it.
type PresentationRequest struct {
	ID               string
	Type             RequestType
	Policy           ContextPolicy
	Spec             *program.Spec
	Claims           map[string]operation.Value
	ServerNonce      *big.Int
	VerifierIdentity string
	Action           string
}

// RequestOption configures request construction.
type RequestOption func(*PresentationRequest)

// WithRequestType sets the transport tag. Defaults to interactive.
func WithRequestType(t RequestType) RequestOption {
	return func(r *PresentationRequest) {
		r.Type = t
	}
}

// WithVerifierIdentity binds the verifier's identity into the context.
func WithVerifierIdentity(identity string) RequestOption {
	return func(r *PresentationRequest) {
		r.VerifierIdentity = identity
	}
}

// WithAction binds the requested action into the context.
func WithAction(action string) RequestOption {
	return func(r *PresentationRequest) {
		r.Action = action
	}
}

// WithServerNonce pins the server nonce instead of drawing a fresh one.
func WithServerNonce(nonce *big.Int) RequestOption {
	return func(r *PresentationRequest) {
		r.ServerNonce = new(big.Int).Set(nonce)
	}
}

// NewRequest creates a contextful presentation request with a fresh ID and
// server nonce.
func NewRequest(spec *program.Spec, claims map[string]operation.Value, opts ...RequestOption) (*PresentationRequest, error) {
	r := &PresentationRequest{
		ID:     uuid.NewString(),
		Type:   InteractiveRequest,
		Policy: Contextful,
		Spec:   spec,
		Claims: copyClaims(claims),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.ServerNonce == nil {
		nonce, err := randomField()
		if err != nil {
			return nil, err
		}
		r.ServerNonce = nonce
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewContextlessRequest creates a request with the zero sentinel context:
// presentations against it verify regardless of nonces, verifier identity or
// action, and can be replayed. Use only when replay protection is handled
// elsewhere or genuinely not needed.
func NewContextlessRequest(spec *program.Spec, claims map[string]operation.Value, opts ...RequestOption) (*PresentationRequest, error) {
	r := &PresentationRequest{
		ID:     uuid.NewString(),
		Type:   InteractiveRequest,
		Policy: Contextless,
		Spec:   spec,
		Claims: copyClaims(claims),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PresentationRequest) validate() error {
	if r.Spec == nil {
		return errors.New("request requires a spec")
	}
	switch r.Type {
	case InteractiveRequest, OfflineRequest:
	default:
		return errors.Errorf("unknown request type %q", r.Type)
	}
	switch r.Policy {
	case Contextful, Contextless:
	default:
		return errors.Errorf("unknown context policy %q", r.Policy)
	}
	claimInputs := r.Spec.ClaimInputs()
	if len(claimInputs) != len(r.Claims) {
		return errors.Errorf("spec declares %d claim inputs, request carries %d claims", len(claimInputs), len(r.Claims))
	}
	for _, name := range claimInputs {
		v, ok := r.Claims[name]
		if !ok {
			return errors.Errorf("request is missing claim %q", name)
		}
		if v.Kind() != operation.ScalarKind {
			return errors.Errorf("claim %q must be a scalar", name)
		}
	}
	return nil
}

// DeriveContext computes the session context. Both sides must feed it
// identical inputs; any divergence makes the wallet's proof unverifiable,
// which is the replay protection. Contextless requests always derive the
// zero sentinel.
func (r *PresentationRequest) DeriveContext(h backend.Hasher, verificationKeyHash, clientNonce *big.Int) (*big.Int, error) {
	if r.Policy == Contextless {
		return big.NewInt(0), nil
	}
	if r.ServerNonce == nil {
		return nil, errors.New("contextful request has no server nonce")
	}
	if clientNonce == nil {
		return nil, errors.New("contextful request requires a client nonce")
	}
	mediaTag := constants.InteractiveRequestTag
	if r.Type == OfflineRequest {
		mediaTag = constants.OfflineRequestTag
	}
	claimsHash, err := program.ClaimsHash(h, r.Claims)
	if err != nil {
		return nil, err
	}
	return h.Hash([]*big.Int{
		operation.String(constants.ContextTag).Scalar(),
		operation.String(mediaTag).Scalar(),
		verificationKeyHash,
		clientNonce,
		r.ServerNonce,
		operation.String(r.VerifierIdentity).Scalar(),
		operation.String(r.Action).Scalar(),
		claimsHash,
	})
}

func copyClaims(claims map[string]operation.Value) map[string]operation.Value {
	cp := make(map[string]operation.Value, len(claims))
	for k, v := range claims {
		cp[k] = v
	}
	return cp
}

func randomField() (*big.Int, error) {
	buf := make([]byte, 31)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.Wrap(err, "read randomness")
	}
	return new(big.Int).SetBytes(buf), nil
}
