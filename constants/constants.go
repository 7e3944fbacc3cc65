package constants

import "time"

const (
	// DefaultCacheMaxSize is the default entry limit for in-memory caches.
	DefaultCacheMaxSize int64 = 10_000

	// DefaultProgramCacheTTL bounds how long a compiled program is kept
	// in a program cache before the next request triggers a recompile.
	DefaultProgramCacheTTL = time.Hour * 24

	// DefaultKeyCacheTTL bounds how long a resolved verification key is kept.
	DefaultKeyCacheTTL = time.Hour

	// MaxAttestationDepth bounds recursive credential chains. A credential
	// whose attestation chain is deeper than this is rejected during
	// verification.
	MaxAttestationDepth = 16
)

// Domain-separation tags. Every hash computed by the protocol is prefixed
// with the field encoding of one of these strings, so a value produced for
// one purpose can never collide with a value produced for another.
const (
	CredentialHashTag  = "zk-credentials:credential"
	IssuanceTag        = "zk-credentials:issuance"
	SignedIssuerTag    = "zk-credentials:issuer:signed"
	RecursiveIssuerTag = "zk-credentials:issuer:recursive"
	OwnershipTag       = "zk-credentials:ownership"
	ContextTag         = "zk-credentials:context"
	RecordTag          = "zk-credentials:record"
	OperationHashTag   = "zk-credentials:operation:hash"
	VerificationKeyTag = "zk-credentials:verification-key"
	ProofTag           = "zk-credentials:proof"
)

// Request media tags, hashed into contextful contexts so a proof created for
// one transport cannot be replayed over another.
const (
	InteractiveRequestTag = "zk-credentials:request:interactive"
	OfflineRequestTag     = "zk-credentials:request:offline"
)
