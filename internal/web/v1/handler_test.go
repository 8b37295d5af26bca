package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/metaboard/internal/core/domain"
	logicv1 "github.com/duynhne/metaboard/internal/logic/v1"
	"github.com/duynhne/metaboard/internal/metabase"
)

// In-memory repository fakes so handler tests run the full stack
// (router, middleware, services) without Postgres or a live Metabase.

type memUserRepo struct {
	users  map[string]*domain.UserRow
	nextID int
}

func (m *memUserRepo) GetByUsername(ctx context.Context, username string) (*domain.UserRow, error) {
	return m.users[username], nil
}

func (m *memUserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	if _, ok := m.users[username]; ok {
		return true, nil
	}
	for _, u := range m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUserRepo) Create(ctx context.Context, username, email, passwordHash, role string) (int, error) {
	id := m.nextID
	m.nextID++
	m.users[username] = &domain.UserRow{ID: id, Username: username, Email: email, PasswordHash: passwordHash, Role: role}
	return id, nil
}

func (m *memUserRepo) UpdateLastLogin(ctx context.Context, userID int) error { return nil }

type memSessionRepo struct {
	users    *memUserRepo
	sessions map[string]*domain.SessionRow
}

func (m *memSessionRepo) Create(ctx context.Context, userID int, token string, expiresAt time.Time) error {
	for _, u := range m.users.users {
		if u.ID == userID {
			m.sessions[token] = &domain.SessionRow{
				UserID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role, ExpiresAt: expiresAt,
			}
			return nil
		}
	}
	return nil
}

func (m *memSessionRepo) GetUserByToken(ctx context.Context, token string) (*domain.SessionRow, error) {
	return m.sessions[token], nil
}

func (m *memSessionRepo) Delete(ctx context.Context, token string) error {
	delete(m.sessions, token)
	return nil
}

type memServerRepo struct {
	creds  map[string]*domain.ServerCredential
	nextID int
}

func serverKey(userID, serverID int) string { return fmt.Sprintf("%d/%d", userID, serverID) }

func (m *memServerRepo) Lookup(ctx context.Context, ownerUserID, serverID int) (*domain.ServerCredential, error) {
	return m.creds[serverKey(ownerUserID, serverID)], nil
}

func (m *memServerRepo) ListByUser(ctx context.Context, ownerUserID int) ([]domain.ServerCredential, error) {
	var out []domain.ServerCredential
	for _, c := range m.creds {
		if c.OwnerUserID == ownerUserID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memServerRepo) Upsert(ctx context.Context, ownerUserID int, hostURL, email, secret string, isSource bool) (int, error) {
	for _, c := range m.creds {
		if c.HostURL == hostURL {
			m.creds[serverKey(ownerUserID, c.ServerID)] = &domain.ServerCredential{
				ServerID: c.ServerID, HostURL: hostURL, Email: email,
				Secret: secret, OwnerUserID: ownerUserID, IsSource: isSource,
			}
			return c.ServerID, nil
		}
	}
	id := m.nextID
	m.nextID++
	m.creds[serverKey(ownerUserID, id)] = &domain.ServerCredential{
		ServerID: id, HostURL: hostURL, Email: email,
		Secret: secret, OwnerUserID: ownerUserID, IsSource: isSource,
	}
	return id, nil
}

func (m *memServerRepo) Delete(ctx context.Context, ownerUserID, serverID int) error {
	key := serverKey(ownerUserID, serverID)
	if _, ok := m.creds[key]; !ok {
		return domain.ErrNotFound
	}
	delete(m.creds, key)
	return nil
}

// memRemote satisfies logicv1.RemoteClient; every host authenticates and
// returns one fixed payload unless listed in failHosts.
type memRemote struct {
	failHosts map[string]error
}

func (m *memRemote) Authenticate(ctx context.Context, host, email, password string) (string, error) {
	if err := m.failHosts[host]; err != nil {
		return "", err
	}
	return "token", nil
}

func (m *memRemote) ExecuteQuery(ctx context.Context, host, token string, databaseID int, sqlText string) (*domain.ResultPayload, error) {
	return &domain.ResultPayload{
		Cols: []domain.Column{{Name: "n"}},
		Rows: [][]any{{float64(42)}},
	}, nil
}

func (m *memRemote) ListDatabases(ctx context.Context, host, token string) ([]domain.DatabaseInfo, error) {
	return []domain.DatabaseInfo{{ID: 1, Name: "orders", Engine: "postgres"}}, nil
}

func (m *memRemote) Version(ctx context.Context, host, token string) (string, error) {
	return "v0.50.0", nil
}

type testEnv struct {
	router   *gin.Engine
	users    *memUserRepo
	sessions *memSessionRepo
	servers  *memServerRepo
	remote   *memRemote
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := &memUserRepo{users: make(map[string]*domain.UserRow), nextID: 1}
	sessions := &memSessionRepo{users: users, sessions: make(map[string]*domain.SessionRow)}
	servers := &memServerRepo{creds: make(map[string]*domain.ServerCredential), nextID: 1}
	remote := &memRemote{failHosts: make(map[string]error)}

	handler := NewHandler(
		logicv1.NewAuthService(users, sessions),
		logicv1.NewServerService(servers, remote, time.Second),
		logicv1.NewFanOutService(servers, remote, time.Second),
	)

	router := gin.New()
	handler.RegisterRoutes(router.Group("/api/v1"))

	return &testEnv{router: router, users: users, sessions: sessions, servers: servers, remote: remote}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// register creates a user and returns a live session token.
func (e *testEnv) register(t *testing.T, username, role string) (token string, userID int) {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "pw-long-enough",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp domain.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	if role == domain.RoleSuperUser {
		// Promote in place; role escalation over HTTP needs an existing
		// super user, which a fresh environment does not have.
		e.users.users[username].Role = domain.RoleSuperUser
		e.sessions.sessions[resp.Token].Role = domain.RoleSuperUser
	}

	var id int
	fmt.Sscanf(resp.User.ID, "%d", &id)
	return resp.Token, id
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	// Register.
	w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice", "email": "alice@example.com", "password": "pw-long-enough",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Duplicate registration conflicts.
	w = env.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice", "email": "alice@example.com", "password": "pw-long-enough",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Login.
	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice", "password": "pw-long-enough",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp domain.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	// Wrong password is a 401 that does not leak user existence.
	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "nobody", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// /auth/me with the session token.
	w = env.do(t, http.MethodGet, "/api/v1/auth/me", resp.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var me domain.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, domain.RoleUser, me.Role)

	// Logout kills the token.
	w = env.do(t, http.MethodPost, "/api/v1/auth/logout", resp.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/api/v1/auth/me", resp.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodGet, "/api/v1/servers"},
		{http.MethodPost, "/api/v1/query/execute"},
	} {
		w := env.do(t, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", tc.method, tc.path)
	}

	w := env.do(t, http.MethodGet, "/api/v1/auth/me", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServerLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.register(t, "alice", domain.RoleUser)

	// Register a server.
	w := env.do(t, http.MethodPost, "/api/v1/servers", token, gin.H{
		"hostUrl": "mb.example.com", "email": "ops@example.com", "password": "s3cret",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var summary domain.ServerSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "https://mb.example.com", summary.HostURL)

	// List.
	w = env.do(t, http.MethodGet, "/api/v1/servers", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.ServerSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.NotContains(t, w.Body.String(), "s3cret", "stored secrets never leave the API")

	// Databases.
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/servers/%d/databases", summary.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "orders")

	// Ping.
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/servers/%d/ping", summary.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "v0.50.0")

	// Delete, then the server is gone.
	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/servers/%d", summary.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/servers/%d", summary.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerInvalidID(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.register(t, "alice", domain.RoleUser)

	w := env.do(t, http.MethodGet, "/api/v1/servers/abc/databases", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExecuteQueryOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token, userID := env.register(t, "alice", domain.RoleUser)

	w := env.do(t, http.MethodPost, "/api/v1/servers", token, gin.H{
		"hostUrl": "mb1.example.com", "email": "ops@example.com", "password": "s3cret",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var summary domain.ServerSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))

	w = env.do(t, http.MethodPost, "/api/v1/query/execute", token, gin.H{
		"query": "SELECT 42",
		"serverDatabaseSelections": []gin.H{
			{"serverId": summary.ID, "databaseId": 1},
			{"serverId": 999, "databaseId": 1},
		},
		"userId": userID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var entries []domain.QueryResultEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 2)

	require.NotNil(t, entries[0].Data)
	assert.Equal(t, [][]any{{float64(42)}}, entries[0].Data.Rows)

	assert.Nil(t, entries[1].Data)
	assert.Equal(t, "Server not found for this user", entries[1].Error)
}

func TestExecuteQueryDefaultsToCaller(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.register(t, "alice", domain.RoleUser)

	w := env.do(t, http.MethodPost, "/api/v1/servers", token, gin.H{
		"hostUrl": "mb1.example.com", "email": "ops@example.com", "password": "s3cret",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var summary domain.ServerSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))

	// No userId in the body: the session identity is used.
	w = env.do(t, http.MethodPost, "/api/v1/query/execute", token, gin.H{
		"query":                    "SELECT 42",
		"serverDatabaseSelections": []gin.H{{"serverId": summary.ID, "databaseId": 1}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var entries []domain.QueryResultEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.NotNil(t, entries[0].Data)
}

func TestExecuteQueryValidation(t *testing.T) {
	env := newTestEnv(t)
	token, userID := env.register(t, "alice", domain.RoleUser)

	tests := []struct {
		name string
		body gin.H
	}{
		{"empty query", gin.H{
			"query":                    "",
			"serverDatabaseSelections": []gin.H{{"serverId": 1, "databaseId": 1}},
			"userId":                   userID,
		}},
		{"no selections", gin.H{
			"query":                    "SELECT 1",
			"serverDatabaseSelections": []gin.H{},
			"userId":                   userID,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/query/execute", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestExecuteQueryCrossUserForbidden(t *testing.T) {
	env := newTestEnv(t)
	aliceToken, _ := env.register(t, "alice", domain.RoleUser)
	_, bobID := env.register(t, "bob", domain.RoleUser)

	w := env.do(t, http.MethodPost, "/api/v1/query/execute", aliceToken, gin.H{
		"query":                    "SELECT 1",
		"serverDatabaseSelections": []gin.H{{"serverId": 1, "databaseId": 1}},
		"userId":                   bobID,
	})

	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
}

func TestExecuteQuerySuperUserCrossUser(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.register(t, "admin", domain.RoleSuperUser)
	bobToken, bobID := env.register(t, "bob", domain.RoleUser)

	w := env.do(t, http.MethodPost, "/api/v1/servers", bobToken, gin.H{
		"hostUrl": "mb-bob.example.com", "email": "bob@example.com", "password": "s3cret",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var summary domain.ServerSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))

	// A super user may run fan-outs against another user's credentials.
	w = env.do(t, http.MethodPost, "/api/v1/query/execute", adminToken, gin.H{
		"query":                    "SELECT 42",
		"serverDatabaseSelections": []gin.H{{"serverId": summary.ID, "databaseId": 1}},
		"userId":                   bobID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var entries []domain.QueryResultEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.NotNil(t, entries[0].Data)
}

func TestExportQueryOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.register(t, "alice", domain.RoleUser)

	w := env.do(t, http.MethodPost, "/api/v1/servers", token, gin.H{
		"hostUrl": "mb1.example.com", "email": "ops@example.com", "password": "s3cret",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var summary domain.ServerSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))

	w = env.do(t, http.MethodPost, "/api/v1/query/export", token, gin.H{
		"query":                    "SELECT 42",
		"serverDatabaseSelections": []gin.H{{"serverId": summary.ID, "databaseId": 1}},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "query_results.xlsx")
	assert.NotZero(t, w.Body.Len())
}

func TestExportQueryAllFailed(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.register(t, "alice", domain.RoleUser)

	env.remote.failHosts["https://mb1.example.com"] = &metabase.AuthError{
		Host: "https://mb1.example.com", StatusCode: 401, Message: "Authentication failed",
	}

	w := env.do(t, http.MethodPost, "/api/v1/servers", token, gin.H{
		"hostUrl": "mb1.example.com", "email": "ops@example.com", "password": "bad",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var summary domain.ServerSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))

	w = env.do(t, http.MethodPost, "/api/v1/query/export", token, gin.H{
		"query":                    "SELECT 42",
		"serverDatabaseSelections": []gin.H{{"serverId": summary.ID, "databaseId": 1}},
	})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "All servers failed")
}
