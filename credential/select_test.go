package credential_test

import (
	"testing"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-private-credentials/backend/simulated"
	"github.com/iden3/go-private-credentials/credential"
	"github.com/iden3/go-private-credentials/operation"
	"github.com/stretchr/testify/require"
)

func issueN(t *testing.T, n int) []*credential.Credential {
	t.Helper()
	bk := simulated.New()
	issuer := babyjub.NewRandPrivKey()
	owner := babyjub.NewRandPrivKey()

	creds := make([]*credential.Credential, n)
	for i := range creds {
		data := operation.RecordValue(map[string]operation.Value{
			"id": operation.Uint64(uint64(i)),
		})
		cred, err := credential.Sign(&issuer, owner.Public(), data, bk)
		require.NoError(t, err)
		creds[i] = cred
	}
	return creds
}

func TestPickTaggedBindsToExactKey(t *testing.T) {
	creds := issueN(t, 2)
	available := []credential.Stored{
		{Credential: creds[0], Key: "visa"},
		{Credential: creds[1], Key: "passport"},
	}

	bound, err := credential.Pick([]string{"passport", "visa"}, available)
	require.NoError(t, err)
	require.Same(t, creds[1], bound["passport"])
	require.Same(t, creds[0], bound["visa"])
}

func TestPickUntaggedFillsInEncounterOrder(t *testing.T) {
	creds := issueN(t, 3)
	available := []credential.Stored{
		{Credential: creds[0]},
		{Credential: creds[1]},
		{Credential: creds[2]},
	}

	bound, err := credential.Pick([]string{"a", "b"}, available)
	require.NoError(t, err)
	require.Same(t, creds[0], bound["a"])
	require.Same(t, creds[1], bound["b"])
}

func TestPickTaggedIsNeverReassigned(t *testing.T) {
	creds := issueN(t, 1)
	// tagged for an input the request does not even have; it must not be
	// borrowed to fill another key
	available := []credential.Stored{
		{Credential: creds[0], Key: "visa"},
	}

	_, err := credential.Pick([]string{"passport"}, available)
	var missing *credential.MissingCredentialsError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, []string{"passport"}, missing.Keys)
}

func TestPickTaggedWinsOverUntagged(t *testing.T) {
	creds := issueN(t, 2)
	available := []credential.Stored{
		{Credential: creds[0]},
		{Credential: creds[1], Key: "passport"},
	}

	bound, err := credential.Pick([]string{"passport"}, available)
	require.NoError(t, err)
	require.Same(t, creds[1], bound["passport"])
}

func TestPickReportsAllMissingKeys(t *testing.T) {
	creds := issueN(t, 1)
	available := []credential.Stored{
		{Credential: creds[0]},
	}

	_, err := credential.Pick([]string{"a", "b", "c"}, available)
	var missing *credential.MissingCredentialsError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, []string{"b", "c"}, missing.Keys)
}

func TestPickIsDeterministic(t *testing.T) {
	creds := issueN(t, 4)
	available := []credential.Stored{
		{Credential: creds[0]},
		{Credential: creds[1], Key: "b"},
		{Credential: creds[2]},
		{Credential: creds[3]},
	}
	needed := []string{"a", "b", "c"}

	first, err := credential.Pick(needed, available)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := credential.Pick(needed, available)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}
