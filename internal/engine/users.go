package engine

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"agencyops/internal/activity"
	"agencyops/internal/domain"
	"agencyops/internal/engine/auth"
	"agencyops/internal/repo"
)

type UserCreateOptions struct {
	Name     string
	Email    string
	Password string
	RoleName string
	ActorID  string
}

// CreateUser stores a user. The role name is resolved to its id before the insert.
func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	name, err := requireText("name", opts.Name)
	if err != nil {
		return domain.User{}, err
	}
	email, err := requireText("email", opts.Email)
	if err != nil {
		return domain.User{}, err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, domain.Invalidf("email %q is not valid", email)
	}
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return domain.User{}, domain.Invalidf("%s", err.Error())
	}
	roleName := strings.TrimSpace(opts.RoleName)
	if roleName == "" {
		roleName = "agent"
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	roleID, err := e.Auth.ResolveRoleID(ctx, tx, roleName)
	if err != nil {
		return domain.User{}, err
	}
	now := e.stamp()
	u := domain.User{
		ID:           newID(),
		Name:         name,
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		RoleID:       &roleID,
		RoleName:     roleName,
		Status:       "active",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.Conflictf("user %s already exists", u.Email)
		}
		return domain.User{}, err
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "user", EntityID: u.ID, UserID: opts.ActorID, Action: "user_created",
		Details: activity.Details{"email": u.Email, "role": roleName},
	}); err != nil {
		return domain.User{}, err
	}
	return u, tx.Commit()
}

// SetUserRole moves a user to the named role. Permissions follow on the next check.
func (e Engine) SetUserRole(ctx context.Context, userID, roleName, actorID string) (domain.User, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	u, err := e.Repo.GetUserTx(ctx, tx, userID)
	if err != nil {
		return domain.User{}, err
	}
	roleID, err := e.Auth.ResolveRoleID(ctx, tx, roleName)
	if err != nil {
		return domain.User{}, err
	}
	if err := e.Repo.SetUserRole(ctx, tx, u.ID, roleID, e.stamp()); err != nil {
		return domain.User{}, err
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "user", EntityID: u.ID, UserID: actorID, Action: "user_role_changed",
		Details: activity.Details{"from": u.RoleName, "to": strings.TrimSpace(roleName)},
	}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, u.ID)
}

// Login checks credentials and opens a session valid for server.session_ttl.
func (e Engine) Login(ctx context.Context, email, password string) (domain.Session, domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Session{}, domain.User{}, auth.ErrBadCredentials
	}
	if err != nil {
		return domain.Session{}, domain.User{}, err
	}
	if u.Status != "active" {
		return domain.Session{}, domain.User{}, auth.ErrBadCredentials
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return domain.Session{}, domain.User{}, err
	}
	ttl, err := e.cfg().SessionTTL()
	if err != nil {
		return domain.Session{}, domain.User{}, err
	}
	token, err := auth.NewToken()
	if err != nil {
		return domain.Session{}, domain.User{}, err
	}
	now := e.now().UTC()
	s := domain.Session{
		Token:     token,
		UserID:    u.ID,
		ExpiresAt: now.Add(ttl).Format(time.RFC3339),
		CreatedAt: now.Format(time.RFC3339),
	}
	if err := e.Repo.InsertSession(ctx, s); err != nil {
		return domain.Session{}, domain.User{}, err
	}
	e.logger().Info("login", zap.String("user", u.ID))
	return s, u, nil
}

// SessionUser resolves a session token to its user. Unknown and expired tokens yield
// ErrUnauthenticated; expired rows are removed on sight.
func (e Engine) SessionUser(ctx context.Context, token string) (domain.User, domain.Session, error) {
	if strings.TrimSpace(token) == "" {
		return domain.User{}, domain.Session{}, domain.ErrUnauthenticated
	}
	s, err := e.Repo.GetSession(ctx, token)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, domain.Session{}, domain.ErrUnauthenticated
	}
	if err != nil {
		return domain.User{}, domain.Session{}, err
	}
	exp, err := time.Parse(time.RFC3339, s.ExpiresAt)
	if err != nil || !e.now().Before(exp) {
		_ = e.Repo.DeleteSession(ctx, token)
		return domain.User{}, domain.Session{}, domain.ErrUnauthenticated
	}
	u, err := e.Repo.GetUser(ctx, s.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, domain.Session{}, domain.ErrUnauthenticated
	}
	if err != nil {
		return domain.User{}, domain.Session{}, err
	}
	if u.Status != "active" {
		return domain.User{}, domain.Session{}, domain.ErrUnauthenticated
	}
	return u, s, nil
}

func (e Engine) Logout(ctx context.Context, token string) error {
	return e.Repo.DeleteSession(ctx, token)
}

// PurgeExpiredSessions deletes sessions past their expiry.
func (e Engine) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return e.Repo.DeleteExpiredSessions(ctx, e.stamp())
}

// CreateAPIKey mints a key for userID. The plain key is returned once; only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (string, domain.APIKey, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return "", domain.APIKey{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}
	plain, err := auth.NewToken()
	if err != nil {
		return "", domain.APIKey{}, err
	}
	key := domain.APIKey{
		ID:        newID(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return plain, key, nil
}

// APIKeyUser resolves a presented API key to its active owner.
func (e Engine) APIKeyUser(ctx context.Context, plain string) (domain.User, error) {
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, domain.ErrUnauthenticated
	}
	if err != nil {
		return domain.User{}, err
	}
	u, err := e.Repo.GetUser(ctx, key.UserID)
	if err != nil {
		return domain.User{}, err
	}
	if u.Status != "active" {
		return domain.User{}, domain.ErrUnauthenticated
	}
	return u, nil
}

func (e Engine) CreateRole(ctx context.Context, name, description string) (domain.Role, error) {
	name, err := requireText("name", name)
	if err != nil {
		return domain.Role{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Role{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetRoleByNameTx(ctx, tx, name); err == nil {
		return domain.Role{}, domain.Conflictf("role %s already exists", name)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Role{}, err
	}
	role := domain.Role{ID: newID(), Name: name, Description: strings.TrimSpace(description)}
	if err := e.Repo.InsertRole(ctx, tx, role, e.stamp()); err != nil {
		return domain.Role{}, err
	}
	return role, tx.Commit()
}

func (e Engine) CreatePermission(ctx context.Context, name, description string) (domain.Permission, error) {
	name, err := requireText("name", name)
	if err != nil {
		return domain.Permission{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Permission{}, err
	}
	defer tx.Rollback()
	if existing, err := e.Repo.GetPermissionByNameTx(ctx, tx, name); err == nil {
		return existing, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Permission{}, err
	}
	p := domain.Permission{ID: newID(), Name: name, Description: strings.TrimSpace(description)}
	if err := e.Repo.InsertPermission(ctx, tx, p, e.stamp()); err != nil {
		return domain.Permission{}, err
	}
	return p, tx.Commit()
}

// GrantPermission adds a permission edge to a role. Granting twice is a no-op.
func (e Engine) GrantPermission(ctx context.Context, roleID, permission, actorID string) (domain.Role, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Role{}, err
	}
	defer tx.Rollback()
	role, err := e.Repo.GetRoleTx(ctx, tx, roleID)
	if err != nil {
		return domain.Role{}, err
	}
	p, err := e.Repo.GetPermissionByNameTx(ctx, tx, strings.TrimSpace(permission))
	if err != nil {
		return domain.Role{}, err
	}
	if err := e.Repo.AddRolePermission(ctx, tx, role.ID, p.ID); err != nil {
		return domain.Role{}, err
	}
	if err := e.logActivity(ctx, tx, activity.Entry{
		EntityType: "role", EntityID: role.ID, UserID: actorID, Action: "role_permission_granted",
		Details: activity.Details{"permission": p.Name},
	}); err != nil {
		return domain.Role{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Role{}, err
	}
	role.Permissions, err = e.Repo.RolePermissionNames(ctx, role.ID)
	return role, err
}
