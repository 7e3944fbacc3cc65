// Package presentation implements the request/compile/create/verify state
// machine of the privacy-preserving credential presentation protocol. A
// verifier authors a spec and wraps it into a request; a wallet answers with
// a presentation whose proof reveals only the requested output claim; the
// verifier checks the proof against the request it issued.
package presentation

import (
	"math/big"

	"github.com/iden3/go-private-credentials/backend"
	"github.com/iden3/go-private-credentials/backend/simulated"
	"github.com/iden3/go-private-credentials/cache"
	"github.com/iden3/go-private-credentials/credential"
	"github.com/iden3/go-private-credentials/operation"
	"github.com/iden3/go-private-credentials/program"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Version is the presentation format version this package produces.
const Version = "1"

// ErrInvalidProof is the single verification failure outcome. It carries no
// detail about which sub-check failed, so a verifier's rejection reveals
// nothing about the wallet's private data.
var ErrInvalidProof = errors.New("invalid proof")

// Presentation is a wallet's answer to a presentation request: the public
// claims it was built against, the output claim the proof exposes, and the
// proof itself. A presentation is meaningful only relative to the request it
// was created for.
type Presentation struct {
	Version     string
	ClientNonce *big.Int
	Claims      map[string]operation.Value
	OutputClaim operation.Value
	Proof       backend.Proof
}

type options struct {
	backend     backend.Backend
	resolver    credential.KeyResolver
	log         zerolog.Logger
	clientNonce *big.Int
	program     *program.Program
	programs    cache.ICache[*program.Program]
}

// Option configures Create and Verify.
type Option func(*options)

// WithBackend sets the proving backend. Defaults to the simulated backend.
func WithBackend(b backend.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithKeyResolver sets the resolver for recursive-witness verification keys.
func WithKeyResolver(r credential.KeyResolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithLogger sets the logger passed through to program compilation.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithClientNonce pins the wallet nonce instead of drawing a fresh one.
// Intended for tests and for transports where the nonce is negotiated ahead
// of time.
func WithClientNonce(nonce *big.Int) Option {
	return func(o *options) {
		o.clientNonce = new(big.Int).Set(nonce)
	}
}

// WithProgram supplies an already-built program for the request's spec,
// keeping its memoized verification key across calls.
func WithProgram(p *program.Program) Option {
	return func(o *options) {
		o.program = p
	}
}

// WithProgramCache caches programs across calls keyed by spec digest, so
// repeated requests against the same spec compile once.
func WithProgramCache(c cache.ICache[*program.Program]) Option {
	return func(o *options) {
		o.programs = c
	}
}

func buildOptions(opts []Option) *options {
	o := &options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.backend == nil {
		o.backend = simulated.New()
	}
	return o
}

// resolveProgram returns the program for the request's spec, honoring an
// explicit program, then the program cache, then building a fresh one.
func resolveProgram(req *PresentationRequest, o *options) (*program.Program, error) {
	if o.program != nil {
		return o.program, nil
	}
	build := func() (*program.Program, error) {
		return program.New(req.Spec, o.backend, program.WithLogger(o.log)), nil
	}
	if o.programs == nil {
		return build()
	}
	digest, err := req.Spec.Digest()
	if err != nil {
		return nil, err
	}
	return o.programs.Fetch(digest.String(), build)
}
