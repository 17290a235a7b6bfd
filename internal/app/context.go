package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agencyops/internal/config"
	"agencyops/internal/db"
	"agencyops/internal/domain"
	"agencyops/internal/engine"
	"agencyops/internal/migrate"
	"agencyops/internal/repo"
)

// Context bundles the opened database and the engine built on it.
type Context struct {
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
}

func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// Open loads workspace config (falling back to defaults), opens and migrates the database and
// seeds RBAC from config.
func Open(ctx context.Context, workspace string, logger *zap.Logger) (*Context, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	busy, _ := cfg.BusyTimeout()
	conn, err := db.Open(db.Config{Workspace: workspace, File: cfg.Database.File, BusyTimeout: busy})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := SeedRBAC(ctx, repo.Repo{DB: conn}, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	eng := engine.New(conn, cfg)
	if logger != nil {
		eng.Logger = logger
	}
	return &Context{Config: cfg, DB: conn, Engine: eng}, nil
}

// SeedRBAC makes sure every role and permission named in config exists with at least the
// configured grants. Existing rows and extra grants are kept.
func SeedRBAC(ctx context.Context, r repo.Repo, cfg *config.Config) error {
	if cfg == nil {
		cfg = config.Default()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, name := range cfg.Permissions() {
		if err := r.InsertPermission(ctx, tx, domain.Permission{ID: uuid.NewString(), Name: name}, now); err != nil {
			return fmt.Errorf("seed permission %s: %w", name, err)
		}
	}
	for _, name := range cfg.RoleNames() {
		rc := cfg.RBAC.Roles[name]
		if err := r.InsertRole(ctx, tx, domain.Role{ID: uuid.NewString(), Name: name, Description: rc.Description}, now); err != nil {
			return fmt.Errorf("seed role %s: %w", name, err)
		}
		role, err := r.GetRoleByNameTx(ctx, tx, name)
		if err != nil {
			return err
		}
		for _, perm := range rc.Permissions {
			p, err := r.GetPermissionByNameTx(ctx, tx, perm)
			if err != nil {
				return err
			}
			if err := r.AddRolePermission(ctx, tx, role.ID, p.ID); err != nil {
				return fmt.Errorf("grant %s to %s: %w", perm, name, err)
			}
		}
	}
	return tx.Commit()
}

// EnsureAdmin creates the first admin user unless a user with email already exists.
// It reports whether a user was created.
func EnsureAdmin(ctx context.Context, eng engine.Engine, name, email, password string) (domain.User, bool, error) {
	u, err := eng.Repo.GetUserByEmail(ctx, email)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, false, err
	}
	u, err = eng.CreateUser(ctx, engine.UserCreateOptions{
		Name:     name,
		Email:    email,
		Password: password,
		RoleName: "admin",
	})
	if err != nil {
		return domain.User{}, false, err
	}
	return u, true, nil
}
