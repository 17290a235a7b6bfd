package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencyops/internal/app"
	"agencyops/internal/config"
	"agencyops/internal/db"
	"agencyops/internal/domain"
	"agencyops/internal/engine"
	"agencyops/internal/migrate"
)

const (
	adminEmail    = "admin@agency.test"
	agentEmail    = "ava@agency.test"
	testPassword  = "correct-horse"
	testJWTSecret = "test-secret"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, cfg)
	ctx := context.Background()
	require.NoError(t, app.SeedRBAC(ctx, e.Repo, cfg))
	_, _, err = app.EnsureAdmin(ctx, e, "Admin", adminEmail, testPassword)
	require.NoError(t, err)
	_, err = e.CreateUser(ctx, engine.UserCreateOptions{Name: "Ava Agent", Email: agentEmail, Password: testPassword, RoleName: "agent"})
	require.NoError(t, err)

	handler, err := New(Config{Engine: e, BasePath: "/api", Auth: AuthConfig{JWTSecret: testJWTSecret}})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

// login signs in and returns headers carrying the session cookie.
func login(t *testing.T, srv *testServer, email string) map[string]string {
	t.Helper()
	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"email":    email,
		"password": testPassword,
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	for _, c := range res.Cookies() {
		if c.Name == SessionCookie {
			return map[string]string{"Cookie": SessionCookie + "=" + c.Value}
		}
	}
	t.Fatalf("login response has no %s cookie", SessionCookie)
	return nil
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func userID(t *testing.T, srv *testServer, email string) string {
	t.Helper()
	u, err := srv.Engine.Repo.GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	return u.ID
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode, string(body))
}

func TestRequestsWithoutSessionAreRejected(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/api/packages", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(body))
	env := decode[errorEnvelope](t, body)
	assert.Equal(t, "unauthorized", env.Error.Code)

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/activity", nil, map[string]string{
		"Cookie": SessionCookie + "=not-a-session",
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, string(body))

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks/distribute", map[string]any{
		"clientId":    "c1",
		"assignments": []map[string]string{{"taskId": "t1", "agentId": "a1"}},
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, string(body))
}

func TestLoginSetsSessionCookie(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"email":    adminEmail,
		"password": "wrong-password",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(body))

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"email":    adminEmail,
		"password": testPassword,
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	var cookie *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)

	headers := map[string]string{"Cookie": SessionCookie + "=" + cookie.Value}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	me := decode[MeResponse](t, body)
	assert.Equal(t, adminEmail, me.User.Email)
	assert.Contains(t, me.Permissions, "task.distribute")

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/logout", nil, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, headers)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestBearerTokenAuth(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	headers := login(t, srv, adminEmail)

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/token", nil, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	tok := decode[TokenResponse](t, body)

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, map[string]string{
		"Authorization": "Bearer " + tok.Token,
	})
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, map[string]string{
		"Authorization": "Bearer " + tok.Token + "x",
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	plain, _, err := srv.Engine.CreateAPIKey(context.Background(), userID(t, srv, adminEmail), "ci")
	require.NoError(t, err)

	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/packages", nil, map[string]string{"X-Api-Key": plain})
	assert.Equal(t, http.StatusOK, res.StatusCode, string(body))

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/packages", nil, map[string]string{"X-Api-Key": "nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestAgentCannotDistribute(t *testing.T) {
	srv := newTestServer(t)
	headers := login(t, srv, agentEmail)

	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/tasks/distribute", map[string]any{
		"clientId":    "c1",
		"assignments": []map[string]string{{"taskId": "t1", "agentId": "a1"}},
	}, headers)
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(body))
	env := decode[errorEnvelope](t, body)
	assert.Equal(t, "forbidden", env.Error.Code)
	assert.Equal(t, "task.distribute", env.Error.Details["permission"])
}

type seeded struct {
	PackageID string
	ClientID  string
	Tasks     []domain.Task
}

// seedAssignment creates a package, a template with one weekly-thrice asset, a client and an
// assignment through the API.
func seedAssignment(t *testing.T, srv *testServer, headers map[string]string) seeded {
	t.Helper()
	client := srv.Client()
	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/packages", map[string]any{"name": "Starter"}, headers)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	pkg := decode[domain.Package](t, body)

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/templates", map[string]any{
		"packageId": pkg.ID,
		"name":      "Blog Promo",
		"siteAssets": []map[string]any{
			{"type": "social", "name": "Facebook Post", "defaultPostingFrequency": 3},
		},
	}, headers)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	tmpl := decode[domain.Template](t, body)

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/clients", map[string]any{
		"name":      "Acme",
		"packageId": pkg.ID,
	}, headers)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	c := decode[domain.Client](t, body)

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/assignments", map[string]any{
		"clientId":   c.ID,
		"templateId": tmpl.ID,
	}, headers)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	a := decode[domain.Assignment](t, body)
	require.Len(t, a.Tasks, 3)
	return seeded{PackageID: pkg.ID, ClientID: c.ID, Tasks: a.Tasks}
}

func TestDistributeAssignsTasksAndNotifies(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	admin := login(t, srv, adminEmail)
	s := seedAssignment(t, srv, admin)
	agentID := userID(t, srv, agentEmail)

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks/distribute", map[string]any{
		"clientId": s.ClientID,
		"assignments": []map[string]string{
			{"taskId": s.Tasks[0].ID, "agentId": agentID},
			{"taskId": s.Tasks[1].ID, "agentId": agentID},
		},
	}, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	out := decode[engine.DistributeResult](t, body)
	assert.Equal(t, "Tasks distributed successfully", out.Message)
	assert.Equal(t, 2, out.AssignedTasks)
	require.Len(t, out.Assignments, 2)
	for _, a := range out.Assignments {
		require.NotNil(t, a.Task.AssignedToID)
		assert.Equal(t, agentID, *a.Task.AssignedToID)
		assert.Equal(t, domain.TaskPending, a.Task.Status)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/clients/"+s.ClientID+"/team", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	team := decode[[]domain.ClientTeamMember](t, body)
	require.Len(t, team, 1)
	assert.Equal(t, 2, team[0].AssignedTasks)

	agent := login(t, srv, agentEmail)
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/notifications?unread=true", nil, agent)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	notes := decode[[]domain.Notification](t, body)
	require.Len(t, notes, 2)
	assert.Equal(t, domain.NotifyTaskAssigned, notes[0].Type)

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/activity?action=task_assigned", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	logs := decode[[]domain.ActivityLog](t, body)
	assert.Len(t, logs, 2)
}

func TestDistributeRejectsBadBatches(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	admin := login(t, srv, adminEmail)
	s := seedAssignment(t, srv, admin)
	agentID := userID(t, srv, agentEmail)

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks/distribute", map[string]any{
		"clientId":    s.ClientID,
		"assignments": []map[string]string{},
	}, admin)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(body))

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks/distribute", map[string]any{
		"assignments": []map[string]string{{"taskId": s.Tasks[0].ID, "agentId": agentID}},
	}, admin)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(body))

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks/distribute", map[string]any{
		"clientId": s.ClientID,
		"assignments": []map[string]string{
			{"taskId": s.Tasks[0].ID, "agentId": agentID},
			{"taskId": "missing-task", "agentId": agentID},
		},
	}, admin)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(body))

	task, err := srv.Engine.Repo.GetTask(context.Background(), s.Tasks[0].ID)
	require.NoError(t, err)
	assert.Nil(t, task.AssignedToID, "failed batch must not reassign")
}

func TestDeletePackageInUseConflicts(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	admin := login(t, srv, adminEmail)
	s := seedAssignment(t, srv, admin)

	res, body := doJSON(t, client, http.MethodDelete, srv.URL+"/api/packages/"+s.PackageID, nil, admin)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(body))
	env := decode[errorEnvelope](t, body)
	assert.Equal(t, "conflict", env.Error.Code)

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/packages/"+s.PackageID, nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/packages", map[string]any{"name": "Unused"}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	unused := decode[domain.Package](t, body)
	res, body = doJSON(t, client, http.MethodDelete, srv.URL+"/api/packages/"+unused.ID, nil, admin)
	assert.Equal(t, http.StatusNoContent, res.StatusCode, string(body))
}

func TestRecentActivityNewestFirst(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	admin := login(t, srv, adminEmail)

	for i := 0; i < 25; i++ {
		res, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/packages", map[string]any{
			"name": fmt.Sprintf("Package %02d", i),
		}, admin)
		require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	}

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/api/activity", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	logs := decode[[]domain.ActivityLog](t, body)
	require.Len(t, logs, 20)
	for i := 1; i < len(logs); i++ {
		assert.Greater(t, logs[i-1].ID, logs[i].ID)
	}
	assert.Equal(t, "package_created", logs[0].Action)
	assert.Equal(t, "Package 24", logs[0].Details["name"])
	assert.Equal(t, "Admin", logs[0].UserName)
	assert.Equal(t, adminEmail, logs[0].UserEmail)
}

func TestUnknownResourceIs404(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, adminEmail)
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/assignments/nope", nil, admin)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(body))
	env := decode[errorEnvelope](t, body)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestSetUserRoleTakesEffectOnNextRequest(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	admin := login(t, srv, adminEmail)
	agent := login(t, srv, agentEmail)
	pkg := map[string]any{"name": "Starter"}

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/packages", pkg, agent)
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(body))

	agentID := userID(t, srv, agentEmail)
	res, body = doJSON(t, client, http.MethodPut, srv.URL+"/api/users/"+agentID+"/role", map[string]any{"role": "nobody"}, admin)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(body))

	res, body = doJSON(t, client, http.MethodPut, srv.URL+"/api/users/"+agentID+"/role", map[string]any{"role": "manager"}, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	u := decode[domain.User](t, body)
	assert.Equal(t, "manager", u.RoleName)

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/packages", pkg, agent)
	assert.Equal(t, http.StatusCreated, res.StatusCode, string(body))

	res, body = doJSON(t, client, http.MethodPut, srv.URL+"/api/users/"+agentID+"/role", map[string]any{"role": "agent"}, agent)
	assert.Equal(t, http.StatusForbidden, res.StatusCode, string(body))
}
