package presentation_test

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/iden3/go-iden3-crypto/babyjub"
	presentation "github.com/iden3/go-private-credentials"
	"github.com/iden3/go-private-credentials/backend"
	"github.com/iden3/go-private-credentials/backend/simulated"
	"github.com/iden3/go-private-credentials/credential"
	"github.com/iden3/go-private-credentials/loaders"
	"github.com/iden3/go-private-credentials/operation"
	"github.com/iden3/go-private-credentials/program"
	"github.com/stretchr/testify/require"
)

// fixture is a complete attendance scenario: a passport credential signed by
// one of two accepted issuers, a spec proving nationality membership and
// issuer acceptance, and a per-app nullifier as the only revealed output.
type fixture struct {
	bk     *simulated.Backend
	owner  babyjub.PrivateKey
	spec   *program.Spec
	stored []credential.Stored
}

func passport(nationality string, id uint64) operation.Value {
	return operation.RecordValue(map[string]operation.Value{
		"nationality": operation.String(nationality),
		"id":          operation.Uint64(id),
	})
}

func appClaims(appID string) map[string]operation.Value {
	return map[string]operation.Value{"appId": operation.String(appID)}
}

func issuerIdentity(t *testing.T, bk *simulated.Backend, c *credential.Credential) *big.Int {
	t.Helper()
	id, err := c.Issuer(bk)
	require.NoError(t, err)
	return id
}

func attendanceSpec(t *testing.T, acceptedIssuers ...*big.Int) *program.Spec {
	t.Helper()
	inputs := map[string]operation.Input{
		"passport": {
			Kind:   operation.CredentialInput,
			Schema: operation.NewSchema("nationality", "id"),
		},
		"appId": {Kind: operation.ClaimInput},
	}

	members := make([]*operation.Operation, 0, len(acceptedIssuers)+1)
	members = append(members, operation.Issuer("passport"))
	for _, id := range acceptedIssuers {
		members = append(members, operation.Constant(operation.Field(id)))
	}
	assert := operation.And(
		operation.EqualsOneOf(
			operation.Property("passport", "nationality"),
			operation.Constant(operation.String("USA")),
			operation.Constant(operation.String("Canada")),
			operation.Constant(operation.String("Mexico")),
		),
		operation.EqualsOneOf(members[0], members[1:]...),
	)
	output := operation.Record(map[string]*operation.Operation{
		"nullifier": operation.Hash(
			operation.Property("passport"),
			operation.Property("appId"),
		),
	})

	spec, err := program.NewSpec(inputs, assert, output)
	require.NoError(t, err)
	return spec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bk := simulated.New()
	issuer := babyjub.NewRandPrivKey()
	secondIssuer := babyjub.NewRandPrivKey()
	owner := babyjub.NewRandPrivKey()

	cred, err := credential.Sign(&issuer, owner.Public(), passport("USA", 773), bk)
	require.NoError(t, err)
	// issue a throwaway credential just to derive the second accepted
	// issuer's identity
	second, err := credential.Sign(&secondIssuer, owner.Public(), passport("Canada", 1), bk)
	require.NoError(t, err)

	return &fixture{
		bk:    bk,
		owner: owner,
		spec: attendanceSpec(t,
			issuerIdentity(t, bk, cred),
			issuerIdentity(t, bk, second),
		),
		stored: []credential.Stored{{Credential: cred}},
	}
}

func nullifier(t *testing.T, out operation.Value) *big.Int {
	t.Helper()
	require.Equal(t, operation.RecordKind, out.Kind())
	n := out.Record()["nullifier"]
	require.Equal(t, operation.ScalarKind, n.Kind())
	return n.Scalar()
}

func TestCreateAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := presentation.NewRequest(f.spec, appClaims("attendance-app"),
		presentation.WithVerifierIdentity("door-terminal"),
		presentation.WithAction("check-in"),
	)
	require.NoError(t, err)

	pres, err := presentation.Create(ctx, &f.owner, req, f.stored)
	require.NoError(t, err)
	require.Equal(t, presentation.Version, pres.Version)
	require.NotNil(t, pres.ClientNonce)

	out, err := presentation.Verify(ctx, req, pres)
	require.NoError(t, err)
	require.True(t, out.Equal(pres.OutputClaim))
	nullifier(t, out)
}

func TestNullifierIsStablePerApp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run := func(appID string) *big.Int {
		req, err := presentation.NewRequest(f.spec, appClaims(appID))
		require.NoError(t, err)
		pres, err := presentation.Create(ctx, &f.owner, req, f.stored)
		require.NoError(t, err)
		out, err := presentation.Verify(ctx, req, pres)
		require.NoError(t, err)
		return nullifier(t, out)
	}

	// two independent sessions of the same app derive the same nullifier,
	// a different app derives a different one
	first := run("attendance-app")
	second := run("attendance-app")
	other := run("another-app")
	require.Equal(t, 0, first.Cmp(second))
	require.NotEqual(t, 0, first.Cmp(other))

	// the nullifier reveals neither credential field directly
	require.NotEqual(t, 0, first.Cmp(big.NewInt(773)))
	require.NotEqual(t, 0, first.Cmp(operation.String("USA").Scalar()))
}

func TestVerifyRejectsMutatedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := presentation.NewRequest(f.spec, appClaims("attendance-app"),
		presentation.WithVerifierIdentity("door-terminal"),
		presentation.WithAction("check-in"),
	)
	require.NoError(t, err)
	pres, err := presentation.Create(ctx, &f.owner, req, f.stored)
	require.NoError(t, err)

	mutations := map[string]func(r *presentation.PresentationRequest){
		"action":            func(r *presentation.PresentationRequest) { r.Action = "check-out" },
		"verifier identity": func(r *presentation.PresentationRequest) { r.VerifierIdentity = "side-door" },
		"server nonce":      func(r *presentation.PresentationRequest) { r.ServerNonce = big.NewInt(12345) },
		"request type":      func(r *presentation.PresentationRequest) { r.Type = presentation.OfflineRequest },
		"claims":            func(r *presentation.PresentationRequest) { r.Claims = appClaims("another-app") },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			mutated := *req
			mutated.Claims = appClaims("attendance-app")
			mutate(&mutated)
			_, err := presentation.Verify(ctx, &mutated, pres)
			require.ErrorIs(t, err, presentation.ErrInvalidProof)
		})
	}

	t.Run("client nonce", func(t *testing.T) {
		tampered := *pres
		tampered.ClientNonce = big.NewInt(999)
		_, err := presentation.Verify(ctx, req, &tampered)
		require.ErrorIs(t, err, presentation.ErrInvalidProof)
	})

	t.Run("output claim", func(t *testing.T) {
		tampered := *pres
		tampered.OutputClaim = operation.RecordValue(map[string]operation.Value{
			"nullifier": operation.Uint64(1),
		})
		_, err := presentation.Verify(ctx, req, &tampered)
		require.ErrorIs(t, err, presentation.ErrInvalidProof)
	})

	t.Run("nil presentation", func(t *testing.T) {
		_, err := presentation.Verify(ctx, req, nil)
		require.ErrorIs(t, err, presentation.ErrInvalidProof)
	})
}

func TestContextlessPresentationIsReplayable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := presentation.NewContextlessRequest(f.spec, appClaims("attendance-app"))
	require.NoError(t, err)

	pres, err := presentation.Create(ctx, &f.owner, req, f.stored)
	require.NoError(t, err)
	require.Nil(t, pres.ClientNonce)

	// verifies repeatedly, and against a fresh request for the same
	// statement; contextless means exactly this
	for i := 0; i < 2; i++ {
		_, err = presentation.Verify(ctx, req, pres)
		require.NoError(t, err)
	}
	replayed, err := presentation.NewContextlessRequest(f.spec, appClaims("attendance-app"))
	require.NoError(t, err)
	_, err = presentation.Verify(ctx, replayed, pres)
	require.NoError(t, err)
}

func TestContextlessVerifyIgnoresSessionFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := presentation.NewContextlessRequest(f.spec, appClaims("attendance-app"))
	require.NoError(t, err)
	pres, err := presentation.Create(ctx, &f.owner, req, f.stored)
	require.NoError(t, err)

	// none of the session fields participate in the sentinel context, so a
	// verifier may change any of them and the presentation still verifies
	mutations := map[string]func(r *presentation.PresentationRequest){
		"action":            func(r *presentation.PresentationRequest) { r.Action = "check-out" },
		"verifier identity": func(r *presentation.PresentationRequest) { r.VerifierIdentity = "side-door" },
		"server nonce":      func(r *presentation.PresentationRequest) { r.ServerNonce = big.NewInt(12345) },
		"request type":      func(r *presentation.PresentationRequest) { r.Type = presentation.OfflineRequest },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			mutated := *req
			mutate(&mutated)
			out, err := presentation.Verify(ctx, &mutated, pres)
			require.NoError(t, err)
			require.True(t, out.Equal(pres.OutputClaim))
		})
	}

	t.Run("all at once", func(t *testing.T) {
		mutated := *req
		for _, mutate := range mutations {
			mutate(&mutated)
		}
		_, err := presentation.Verify(ctx, &mutated, pres)
		require.NoError(t, err)
	})

	t.Run("client nonce", func(t *testing.T) {
		tampered := *pres
		tampered.ClientNonce = big.NewInt(999)
		_, err := presentation.Verify(ctx, req, &tampered)
		require.NoError(t, err)
	})
}

func TestCreateFailsWhenAssertionCannotHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rogue := babyjub.NewRandPrivKey()
	cred, err := credential.Sign(&rogue, f.owner.Public(), passport("USA", 773), f.bk)
	require.NoError(t, err)

	req, err := presentation.NewRequest(f.spec, appClaims("attendance-app"))
	require.NoError(t, err)

	_, err = presentation.Create(ctx, &f.owner, req, []credential.Stored{{Credential: cred}})
	require.ErrorIs(t, err, simulated.ErrUnsatisfied)
}

func TestCreateFailsOnMissingCredentials(t *testing.T) {
	f := newFixture(t)

	req, err := presentation.NewRequest(f.spec, appClaims("attendance-app"))
	require.NoError(t, err)

	_, err = presentation.Create(context.Background(), &f.owner, req, nil)
	var missing *credential.MissingCredentialsError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, []string{"passport"}, missing.Keys)
}

func TestWireRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := presentation.NewRequest(f.spec, appClaims("attendance-app"),
		presentation.WithRequestType(presentation.OfflineRequest),
		presentation.WithVerifierIdentity("door-terminal"),
		presentation.WithAction("check-in"),
	)
	require.NoError(t, err)

	// the wallet works from the decoded request, the verifier from the
	// original; the proof must bridge the wire
	rawReq, err := presentation.MarshalRequest(req)
	require.NoError(t, err)
	decodedReq, err := presentation.UnmarshalRequest(rawReq)
	require.NoError(t, err)

	pres, err := presentation.Create(ctx, &f.owner, decodedReq, f.stored)
	require.NoError(t, err)

	rawPres, err := presentation.MarshalPresentation(pres)
	require.NoError(t, err)
	decodedPres, err := presentation.UnmarshalPresentation(rawPres)
	require.NoError(t, err)

	out, err := presentation.Verify(ctx, req, decodedPres)
	require.NoError(t, err)
	require.True(t, out.Equal(pres.OutputClaim))
}

func TestWireRejectsMismatchedEnvelope(t *testing.T) {
	f := newFixture(t)

	req, err := presentation.NewRequest(f.spec, appClaims("attendance-app"))
	require.NoError(t, err)
	raw, err := presentation.MarshalRequest(req)
	require.NoError(t, err)

	_, err = presentation.UnmarshalPresentation(raw)
	require.Error(t, err)
}

// countingBackend counts compilations passing through to the real backend.
type countingBackend struct {
	*simulated.Backend
	compiles atomic.Int32
}

func (b *countingBackend) CompileProgram(ctx context.Context, circ backend.Circuit) (backend.VerificationKey, error) {
	b.compiles.Add(1)
	return b.Backend.CompileProgram(ctx, circ)
}

func TestSharedProgramCompilesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bk := &countingBackend{Backend: f.bk}
	prog := program.New(f.spec, bk)
	opts := []presentation.Option{
		presentation.WithBackend(bk),
		presentation.WithProgram(prog),
	}

	req, err := presentation.NewRequest(f.spec, appClaims("attendance-app"))
	require.NoError(t, err)

	pres, err := presentation.Create(ctx, &f.owner, req, f.stored, opts...)
	require.NoError(t, err)
	_, err = presentation.Verify(ctx, req, pres, opts...)
	require.NoError(t, err)

	require.Equal(t, int32(1), bk.compiles.Load())
}

// attestationCircuit stands in for an inner issuance program whose public
// output is the hash of the credential it attests.
type attestationCircuit struct {
	output *big.Int
}

func (c *attestationCircuit) Digest(backend.Hasher) (*big.Int, error) {
	return big.NewInt(9001), nil
}

func (c *attestationCircuit) Body(backend.API, backend.Assignment) ([]*big.Int, error) {
	return []*big.Int{c.output}, nil
}

func TestRecursiveCredentialEndToEnd(t *testing.T) {
	bk := simulated.New()
	owner := babyjub.NewRandPrivKey()
	ctx := context.Background()

	data := passport("Mexico", 55)
	target := &credential.Credential{Version: credential.Version, Owner: owner.Public(), Data: data}
	credHash, err := target.Hash(bk)
	require.NoError(t, err)

	circ := &attestationCircuit{output: credHash}
	vk, err := bk.CompileProgram(ctx, circ)
	require.NoError(t, err)
	proof, err := bk.RunProgram(ctx, circ, vk, backend.Assignment{})
	require.NoError(t, err)
	cred := credential.FromProgramRun(proof, vk, owner.Public(), data, nil)

	registry := loaders.NewRegistry()
	registry.Register(vk)

	spec := attendanceSpec(t, issuerIdentity(t, bk, cred))
	req, err := presentation.NewRequest(spec, appClaims("attendance-app"))
	require.NoError(t, err)

	opts := []presentation.Option{
		presentation.WithBackend(bk),
		presentation.WithKeyResolver(registry),
	}
	pres, err := presentation.Create(ctx, &owner, req, []credential.Stored{{Credential: cred}}, opts...)
	require.NoError(t, err)

	out, err := presentation.Verify(ctx, req, pres, opts...)
	require.NoError(t, err)
	nullifier(t, out)
}

func TestCreateWithoutResolverRejectsRecursiveCredential(t *testing.T) {
	bk := simulated.New()
	owner := babyjub.NewRandPrivKey()
	ctx := context.Background()

	data := passport("USA", 7)
	target := &credential.Credential{Version: credential.Version, Owner: owner.Public(), Data: data}
	credHash, err := target.Hash(bk)
	require.NoError(t, err)
	circ := &attestationCircuit{output: credHash}
	vk, err := bk.CompileProgram(ctx, circ)
	require.NoError(t, err)
	proof, err := bk.RunProgram(ctx, circ, vk, backend.Assignment{})
	require.NoError(t, err)
	cred := credential.FromProgramRun(proof, vk, owner.Public(), data, nil)

	spec := attendanceSpec(t, issuerIdentity(t, bk, cred))
	req, err := presentation.NewRequest(spec, appClaims("attendance-app"))
	require.NoError(t, err)

	_, err = presentation.Create(ctx, &owner, req, []credential.Stored{{Credential: cred}},
		presentation.WithBackend(bk))
	require.Error(t, err)
}
