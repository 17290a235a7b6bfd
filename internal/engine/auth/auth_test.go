package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencyops/internal/app"
	"agencyops/internal/config"
	"agencyops/internal/db"
	"agencyops/internal/domain"
	"agencyops/internal/engine/auth"
	"agencyops/internal/migrate"
	"agencyops/internal/repo"
)

func newService(t *testing.T) (auth.Service, repo.Repo) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	r := repo.Repo{DB: conn}
	require.NoError(t, app.SeedRBAC(context.Background(), r, config.Default()))
	return auth.Service{DB: conn}, r
}

func insertUser(t *testing.T, s auth.Service, r repo.Repo, role, status string) string {
	t.Helper()
	ctx := context.Background()
	roleID, err := s.ResolveRoleID(ctx, nil, role)
	require.NoError(t, err)
	now := time.Now().UTC().Format(time.RFC3339)
	u := domain.User{
		ID: uuid.NewString(), Name: role, Email: uuid.NewString() + "@agency.test",
		RoleID: &roleID, Status: status, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, r.InsertUser(ctx, nil, u))
	return u.ID
}

func TestHasPermissionFollowsRole(t *testing.T) {
	s, r := newService(t)
	ctx := context.Background()
	agent := insertUser(t, s, r, "agent", "active")
	admin := insertUser(t, s, r, "admin", "active")
	disabled := insertUser(t, s, r, "admin", "disabled")

	cases := []struct {
		user, perm string
		want       bool
	}{
		{agent, "task.update", true},
		{agent, "task.distribute", false},
		{admin, "task.distribute", true},
		{admin, "no.such.permission", false},
		{disabled, "task.distribute", false},
		{"unknown-user", "task.update", false},
	}
	for _, tc := range cases {
		ok, err := s.HasPermission(ctx, tc.user, tc.perm)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "%s/%s", tc.user, tc.perm)
	}

	err := s.Require(ctx, agent, "task.distribute")
	var fe auth.ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "task.distribute", fe.Permission)
	assert.NoError(t, s.Require(ctx, admin, "rbac.manage"))
}

func TestHasPermissionSeesGrantsImmediately(t *testing.T) {
	s, r := newService(t)
	ctx := context.Background()
	agent := insertUser(t, s, r, "agent", "active")

	ok, err := s.HasPermission(ctx, agent, "client.create")
	require.NoError(t, err)
	require.False(t, ok)

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	role, err := r.GetRoleByNameTx(ctx, tx, "agent")
	require.NoError(t, err)
	perm, err := r.GetPermissionByNameTx(ctx, tx, "client.create")
	require.NoError(t, err)
	require.NoError(t, r.AddRolePermission(ctx, tx, role.ID, perm.ID))
	require.NoError(t, tx.Commit())

	ok, err = s.HasPermission(ctx, agent, "client.create")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolveRoleID(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	id, err := s.ResolveRoleID(ctx, nil, " manager ")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = s.ResolveRoleID(ctx, nil, "wizard")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = s.ResolveRoleID(ctx, nil, "")
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	_, err := auth.HashPassword("short")
	require.Error(t, err)

	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)
	assert.NoError(t, auth.CheckPassword(hash, "correct-horse"))
	assert.ErrorIs(t, auth.CheckPassword(hash, "battery-staple"), auth.ErrBadCredentials)
	assert.ErrorIs(t, auth.CheckPassword("", "correct-horse"), auth.ErrBadCredentials)
}

func TestNewTokenIsRandomHex(t *testing.T) {
	a, err := auth.NewToken()
	require.NoError(t, err)
	b, err := auth.NewToken()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
