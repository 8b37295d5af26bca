package v1

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/metaboard/internal/core/domain"
	"github.com/duynhne/metaboard/internal/metabase"
)

func newTestServerService(store *fakeCredentialStore, remote *fakeRemote) *ServerService {
	return NewServerService(store, remote, 5*time.Second)
}

func TestServerRegisterNormalizesHost(t *testing.T) {
	store := newFakeCredentialStore()
	svc := newTestServerService(store, newFakeRemote())

	summary, err := svc.Register(context.Background(), 1, domain.RegisterServerRequest{
		HostURL:  "mb.example.com/",
		Email:    "ops@example.com",
		Password: "s3cret",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://mb.example.com", summary.HostURL)
	assert.Positive(t, summary.ID)
}

func TestServerRegisterSameHostIsUpsert(t *testing.T) {
	store := newFakeCredentialStore()
	svc := newTestServerService(store, newFakeRemote())

	first, err := svc.Register(context.Background(), 1, domain.RegisterServerRequest{
		HostURL: "mb.example.com", Email: "ops@example.com", Password: "old",
	})
	require.NoError(t, err)

	second, err := svc.Register(context.Background(), 1, domain.RegisterServerRequest{
		HostURL: "https://mb.example.com/", Email: "ops@example.com", Password: "new",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "spelling variants of one host share a server row")

	cred, err := store.Lookup(context.Background(), 1, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", cred.Secret)
}

func TestServerRegisterEmptyHost(t *testing.T) {
	svc := newTestServerService(newFakeCredentialStore(), newFakeRemote())

	_, err := svc.Register(context.Background(), 1, domain.RegisterServerRequest{
		HostURL: "   ", Email: "ops@example.com", Password: "s3cret",
	})

	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestServerListOmitsSecrets(t *testing.T) {
	store := newFakeCredentialStore()
	store.add(domain.ServerCredential{
		ServerID: 1, HostURL: "https://mb.example.com", Email: "ops@example.com",
		Secret: "s3cret", OwnerUserID: 1, IsSource: true,
	})
	svc := newTestServerService(store, newFakeRemote())

	summaries, err := svc.List(context.Background(), 1)

	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, domain.ServerSummary{
		ID: 1, HostURL: "https://mb.example.com", Email: "ops@example.com", IsSource: true,
	}, summaries[0])
}

func TestServerListEmpty(t *testing.T) {
	svc := newTestServerService(newFakeCredentialStore(), newFakeRemote())

	summaries, err := svc.List(context.Background(), 1)

	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestServerDelete(t *testing.T) {
	store := newFakeCredentialStore()
	store.add(domain.ServerCredential{
		ServerID: 1, HostURL: "https://mb.example.com", Email: "e", Secret: "s", OwnerUserID: 1,
	})
	svc := newTestServerService(store, newFakeRemote())

	require.NoError(t, svc.Delete(context.Background(), 1, 1))

	err := svc.Delete(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrServerNotFound)
}

func TestServerDeleteOtherUsers(t *testing.T) {
	store := newFakeCredentialStore()
	store.add(domain.ServerCredential{
		ServerID: 1, HostURL: "https://mb.example.com", Email: "e", Secret: "s", OwnerUserID: 2,
	})
	svc := newTestServerService(store, newFakeRemote())

	err := svc.Delete(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrServerNotFound, "cannot delete another user's registration")
}

func TestServerListDatabases(t *testing.T) {
	store := newFakeCredentialStore()
	store.add(domain.ServerCredential{
		ServerID: 1, HostURL: "https://mb.example.com", Email: "e", Secret: "s", OwnerUserID: 1,
	})
	remote := newFakeRemote()
	remote.databases = []domain.DatabaseInfo{{ID: 1, Name: "orders", Engine: "postgres"}}
	svc := newTestServerService(store, remote)

	dbs, err := svc.ListDatabases(context.Background(), 1, 1)

	require.NoError(t, err)
	require.Len(t, dbs, 1)
	assert.Equal(t, "orders", dbs[0].Name)
}

func TestServerListDatabasesUnknownServer(t *testing.T) {
	svc := newTestServerService(newFakeCredentialStore(), newFakeRemote())

	_, err := svc.ListDatabases(context.Background(), 1, 99)
	assert.ErrorIs(t, err, ErrServerNotFound)
}

func TestServerListDatabasesAuthFailure(t *testing.T) {
	store := newFakeCredentialStore()
	store.add(domain.ServerCredential{
		ServerID: 1, HostURL: "https://mb.example.com", Email: "e", Secret: "s", OwnerUserID: 1,
	})
	remote := newFakeRemote()
	remote.authErr["https://mb.example.com"] = &metabase.AuthError{
		Host: "https://mb.example.com", StatusCode: 401, Message: "Authentication failed",
	}
	svc := newTestServerService(store, remote)

	_, err := svc.ListDatabases(context.Background(), 1, 1)

	var authErr *metabase.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestServerPing(t *testing.T) {
	store := newFakeCredentialStore()
	store.add(domain.ServerCredential{
		ServerID: 1, HostURL: "https://mb.example.com", Email: "e", Secret: "s", OwnerUserID: 1,
	})
	svc := newTestServerService(store, newFakeRemote())

	result, err := svc.Ping(context.Background(), 1, 1)

	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, "v0.50.0", result.Version)
}

func TestServerPingAuthFailureIsResult(t *testing.T) {
	store := newFakeCredentialStore()
	store.add(domain.ServerCredential{
		ServerID: 1, HostURL: "https://mb.example.com", Email: "e", Secret: "bad", OwnerUserID: 1,
	})
	remote := newFakeRemote()
	remote.authErr["https://mb.example.com"] = &metabase.AuthError{
		Host: "https://mb.example.com", StatusCode: 401, Message: "Password did not match stored password.",
	}
	svc := newTestServerService(store, remote)

	result, err := svc.Ping(context.Background(), 1, 1)

	require.NoError(t, err, "an unreachable remote is a probe result, not a call failure")
	assert.False(t, result.OK)
	assert.Equal(t, "Password did not match stored password.", result.Error)
}

func TestServerPingUnknownServer(t *testing.T) {
	svc := newTestServerService(newFakeCredentialStore(), newFakeRemote())

	_, err := svc.Ping(context.Background(), 1, 99)
	assert.ErrorIs(t, err, ErrServerNotFound)
}
