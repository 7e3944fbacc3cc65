package program

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-private-credentials/backend"
	"github.com/iden3/go-private-credentials/constants"
	"github.com/iden3/go-private-credentials/credential"
	"github.com/iden3/go-private-credentials/operation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Program is the compiled form of a spec. The verification key is memoized
// per Program value: concurrent Compile calls collapse to a single
// compilation, and a second Compile is a cache hit. Programs are never
// process-global; each value owns its cache cell.
type Program struct {
	spec *Spec
	bk   backend.Backend
	log  zerolog.Logger

	sf singleflight.Group
	mu sync.RWMutex
	vk *backend.VerificationKey
}

// Option configures a Program.
type Option func(*Program)

// WithLogger sets the logger for compile diagnostics. Silent by default.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Program) {
		p.log = log
	}
}

// New wraps a spec and a proving backend into a program. Compilation happens
// lazily on first use.
func New(spec *Spec, bk backend.Backend, opts ...Option) *Program {
	p := &Program{spec: spec, bk: bk, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Spec returns the spec the program was compiled from.
func (p *Program) Spec() *Spec { return p.spec }

// Compile returns the program's verification key, compiling at most once.
// Callers arriving while a compilation is in flight await the same result;
// ctx cancels the wait, not the shared compilation.
func (p *Program) Compile(ctx context.Context) (backend.VerificationKey, error) {
	p.mu.RLock()
	if p.vk != nil {
		vk := *p.vk
		p.mu.RUnlock()
		return vk, nil
	}
	p.mu.RUnlock()

	ch := p.sf.DoChan("compile", func() (interface{}, error) {
		start := time.Now()
		vk, err := p.bk.CompileProgram(context.WithoutCancel(ctx), &circuit{prog: p})
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.vk = &vk
		p.mu.Unlock()
		p.log.Debug().
			Str("vk", vk.Ref()).
			Int("credentialInputs", len(p.spec.CredentialInputs())).
			Int("claimInputs", len(p.spec.ClaimInputs())).
			Dur("took", time.Since(start)).
			Msg("program compiled")
		return vk, nil
	})

	select {
	case <-ctx.Done():
		return backend.VerificationKey{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return backend.VerificationKey{}, res.Err
		}
		return res.Val.(backend.VerificationKey), nil
	}
}

// Recompile discards the memoized verification key and compiles again. Only
// needed when the backend itself changed underneath the program.
func (p *Program) Recompile(ctx context.Context) (backend.VerificationKey, error) {
	p.mu.Lock()
	p.vk = nil
	p.mu.Unlock()
	p.sf.Forget("compile")
	return p.Compile(ctx)
}

// RunInput is one satisfying assignment for a program run.
type RunInput struct {
	// Context is the derived session context (sentinel 0 for contextless
	// requests).
	Context *big.Int
	// Claims are the verifier-supplied public values, one per claim
	// input.
	Claims map[string]operation.Value
	// Credentials bind each credential input to a stored credential.
	Credentials map[string]*credential.Credential
	// Owner is the presenter's key; every bound credential must be owned
	// by it.
	Owner *babyjub.PublicKey
	// OwnershipSignature is Owner's signature over
	// OwnershipMessage(context, credentialHashes).
	OwnershipSignature *babyjub.Signature
	// KeyResolver resolves verification keys of recursive witnesses. May
	// be nil when no credential carries one.
	KeyResolver credential.KeyResolver
}

// Run proves one assignment: it verifies every credential witness in-circuit,
// checks the ownership signature, constrains the assertion to hold and
// exposes the output claim. It returns the proof and the evaluated output
// claim, or an error and nothing.
func (p *Program) Run(ctx context.Context, in RunInput) (backend.Proof, operation.Value, error) {
	vk, err := p.Compile(ctx)
	if err != nil {
		return backend.Proof{}, operation.Value{}, err
	}
	if err := p.checkRunInput(&in); err != nil {
		return backend.Proof{}, operation.Value{}, err
	}

	env, err := p.buildEnvironment(&in)
	if err != nil {
		return backend.Proof{}, operation.Value{}, err
	}
	claimsHash, err := ClaimsHash(p.bk, in.Claims)
	if err != nil {
		return backend.Proof{}, operation.Value{}, err
	}
	private, err := p.flattenPrivate(&in)
	if err != nil {
		return backend.Proof{}, operation.Value{}, err
	}

	circ := &circuit{prog: p, in: &in, env: env}
	proof, err := p.bk.RunProgram(ctx, circ, vk, backend.Assignment{
		PublicInput: []*big.Int{in.Context, claimsHash},
		Private:     private,
	})
	if err != nil {
		return backend.Proof{}, operation.Value{}, err
	}
	return proof, circ.output, nil
}

func (p *Program) checkRunInput(in *RunInput) error {
	if in.Context == nil {
		return errors.New("run requires a context value")
	}
	if in.Owner == nil || in.OwnershipSignature == nil {
		return errors.New("run requires the owner key and an ownership signature")
	}
	for _, name := range p.spec.ClaimInputs() {
		v, ok := in.Claims[name]
		if !ok {
			return errors.Errorf("missing claim %q", name)
		}
		if v.Kind() != operation.ScalarKind {
			return errors.Errorf("claim %q must be a scalar", name)
		}
	}
	for _, name := range p.spec.CredentialInputs() {
		c, ok := in.Credentials[name]
		if !ok || c == nil {
			return errors.Errorf("missing credential for input %q", name)
		}
		input, _ := p.spec.Input(name)
		if err := input.Schema.Check(c.Data); err != nil {
			return errors.Wrapf(err, "credential for input %q", name)
		}
		if c.Owner.X.Cmp(in.Owner.X) != 0 || c.Owner.Y.Cmp(in.Owner.Y) != 0 {
			return errors.Errorf("credential for input %q is not owned by the presenter", name)
		}
	}
	return nil
}

func (p *Program) buildEnvironment(in *RunInput) (*operation.Environment, error) {
	env := &operation.Environment{
		Values:  make(map[string]operation.Value),
		Issuers: make(map[string]*big.Int),
	}
	for _, name := range p.spec.ClaimInputs() {
		env.Values[name] = in.Claims[name]
	}
	for _, name := range p.spec.CredentialInputs() {
		c := in.Credentials[name]
		env.Values[name] = c.Data
		issuer, err := c.Issuer(p.bk)
		if err != nil {
			return nil, errors.Wrapf(err, "issuer of input %q", name)
		}
		env.Issuers[name] = issuer
	}
	return env, nil
}

// flattenPrivate encodes the private input the proof commits to: credential
// hashes, issuer identities and the ownership signature.
func (p *Program) flattenPrivate(in *RunInput) ([]*big.Int, error) {
	var private []*big.Int
	for _, name := range p.spec.CredentialInputs() {
		c := in.Credentials[name]
		h, err := c.Hash(p.bk)
		if err != nil {
			return nil, err
		}
		issuer, err := c.Issuer(p.bk)
		if err != nil {
			return nil, err
		}
		private = append(private, h, issuer)
	}
	private = append(private,
		in.Owner.X, in.Owner.Y,
		in.OwnershipSignature.R8.X, in.OwnershipSignature.R8.Y, in.OwnershipSignature.S,
	)
	return private, nil
}

// OwnershipMessage is the message the presenter signs to prove control of the
// owner key for every bound credential in this session.
func OwnershipMessage(h operation.Hasher, context *big.Int, credentialHashes []*big.Int) (*big.Int, error) {
	inputs := append([]*big.Int{
		operation.String(constants.OwnershipTag).Scalar(),
		context,
	}, credentialHashes...)
	return h.Hash(inputs)
}

// ClaimsHash is the order-insensitive hash of the verifier's claims, bound
// into the public input and the session context.
func ClaimsHash(h operation.Hasher, claims map[string]operation.Value) (*big.Int, error) {
	if claims == nil {
		claims = map[string]operation.Value{}
	}
	return operation.HashValue(h, operation.RecordValue(claims))
}

// circuit adapts a program to the backend's Circuit interface.
type circuit struct {
	prog *Program
	in   *RunInput
	env  *operation.Environment

	// output is the evaluated output claim, set by Body.
	output operation.Value
}

// Digest derives the constraint-system digest from the spec's canonical
// form.
func (c *circuit) Digest(backend.Hasher) (*big.Int, error) {
	return c.prog.spec.Digest()
}

// Body is the constraint body: credential witness checks, claims binding,
// ownership signature, assertion, output claim. It runs identically to the
// plain evaluation path because both share the operation walker; only the
// calculator differs.
func (c *circuit) Body(api backend.API, assign backend.Assignment) ([]*big.Int, error) {
	if len(assign.PublicInput) != 2 {
		return nil, errors.New("public input must be [context, claimsHash]")
	}
	context, claimsHash := assign.PublicInput[0], assign.PublicInput[1]

	boundClaims, err := operation.HashValueWith(operation.RecordValue(c.in.Claims), api)
	if err != nil {
		return nil, err
	}
	if err := api.AssertTrue(api.Equals(boundClaims, claimsHash), "claims binding"); err != nil {
		return nil, err
	}

	credentialHashes := make([]*big.Int, 0, len(c.prog.spec.CredentialInputs()))
	for _, name := range c.prog.spec.CredentialInputs() {
		cred := c.in.Credentials[name]
		if err := api.AssertTrue(api.And(
			api.Equals(cred.Owner.X, c.in.Owner.X),
			api.Equals(cred.Owner.Y, c.in.Owner.Y),
		), "credential owner"); err != nil {
			return nil, err
		}
		if err := cred.VerifyInCircuit(api, c.in.KeyResolver); err != nil {
			return nil, errors.Wrapf(err, "credential %q", name)
		}
		h, err := cred.Hash(api)
		if err != nil {
			return nil, err
		}
		credentialHashes = append(credentialHashes, h)
	}

	msg, err := OwnershipMessage(api, context, credentialHashes)
	if err != nil {
		return nil, err
	}
	if err := api.VerifyEddsa(c.in.Owner, msg, c.in.OwnershipSignature); err != nil {
		return nil, errors.Wrap(err, "ownership signature")
	}

	asserted, err := operation.EvaluateWith(c.prog.spec.Assert(), c.env, api)
	if err != nil {
		return nil, err
	}
	if err := api.AssertTrue(asserted.Scalar(), "assertion"); err != nil {
		return nil, err
	}

	out, err := operation.EvaluateWith(c.prog.spec.OutputClaim(), c.env, api)
	if err != nil {
		return nil, err
	}
	outHash, err := operation.HashValueWith(out, api)
	if err != nil {
		return nil, err
	}
	c.output = out
	return []*big.Int{outHash}, nil
}
