package loaders_test

import (
	"math/big"
	"testing"

	"github.com/iden3/go-private-credentials/backend"
	"github.com/iden3/go-private-credentials/loaders"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type mapLoader struct {
	keys  map[string]backend.VerificationKey
	loads int
}

func (l *mapLoader) Load(ref string) (backend.VerificationKey, error) {
	l.loads++
	vk, ok := l.keys[ref]
	if !ok {
		return backend.VerificationKey{}, loaders.ErrKeyNotFound
	}
	return vk, nil
}

func testKey(n int64) backend.VerificationKey {
	return backend.VerificationKey{Hash: big.NewInt(n), Data: []byte{byte(n)}}
}

func TestRegisterAndResolve(t *testing.T) {
	r := loaders.NewRegistry()
	vk := testKey(101)

	ref := r.Register(vk)
	require.Equal(t, "101", ref)

	got, err := r.Resolve(ref)
	require.NoError(t, err)
	require.Equal(t, vk, got)
}

func TestResolveUnknownRef(t *testing.T) {
	r := loaders.NewRegistry()

	_, err := r.Resolve("999")
	require.ErrorIs(t, err, loaders.ErrKeyNotFound)
}

func TestFallbackLoaderIsConsultedAndCached(t *testing.T) {
	vk := testKey(202)
	loader := &mapLoader{keys: map[string]backend.VerificationKey{"202": vk}}
	r := loaders.NewRegistry(loaders.WithKeyLoader(loader))

	got, err := r.Resolve("202")
	require.NoError(t, err)
	require.Equal(t, vk, got)

	got, err = r.Resolve("202")
	require.NoError(t, err)
	require.Equal(t, vk, got)
	require.Equal(t, 1, loader.loads)
}

func TestFallbackWithCacheDisabled(t *testing.T) {
	vk := testKey(303)
	loader := &mapLoader{keys: map[string]backend.VerificationKey{"303": vk}}
	r := loaders.NewRegistry(loaders.WithKeyLoader(loader), loaders.WithCacheDisabled())

	for i := 0; i < 3; i++ {
		got, err := r.Resolve("303")
		require.NoError(t, err)
		require.Equal(t, vk, got)
	}
	require.Equal(t, 3, loader.loads)
}

func TestRegisteredKeyShadowsFallback(t *testing.T) {
	registered := testKey(404)
	stale := backend.VerificationKey{Hash: big.NewInt(404), Data: []byte("stale")}
	loader := &mapLoader{keys: map[string]backend.VerificationKey{"404": stale}}
	r := loaders.NewRegistry(loaders.WithKeyLoader(loader))

	r.Register(registered)
	got, err := r.Resolve("404")
	require.NoError(t, err)
	require.Equal(t, registered, got)
	require.Equal(t, 0, loader.loads)
}

type failingLoader struct{}

func (failingLoader) Load(string) (backend.VerificationKey, error) {
	return backend.VerificationKey{}, errors.New("transport down")
}

func TestFallbackErrorsArePropagated(t *testing.T) {
	r := loaders.NewRegistry(loaders.WithKeyLoader(failingLoader{}))

	_, err := r.Resolve("505")
	require.Error(t, err)
	require.NotErrorIs(t, err, loaders.ErrKeyNotFound)
}
