package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"agencyops/internal/domain"
	"agencyops/internal/engine"
	"agencyops/internal/engine/auth"
	"agencyops/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"permission task.distribute required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the portal API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// request validation failures are reported as 400
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine))
	hcfg := huma.DefaultConfig("Agency Ops API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerSession(group, cfg.Engine, cfg.Auth)
	registerPackages(group, cfg.Engine)
	registerTemplates(group, cfg.Engine)
	registerClients(group, cfg.Engine)
	registerAssignments(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerActivity(group, cfg.Engine)
	registerRBAC(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerNotifications(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			l.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	switch {
	case errors.Is(err, auth.ErrBadCredentials):
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	case errors.Is(err, domain.ErrUnauthenticated):
		return newAPIError(http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrValidation):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, domain.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// requirePermission resolves the caller and checks perm against the database on every call.
func requirePermission(ctx context.Context, e engine.Engine, perm string) (string, error) {
	userID, authErr := userIDFromContext(ctx)
	if authErr != nil {
		return "", authErr
	}
	if err := e.Auth.Require(ctx, userID, perm); err != nil {
		return "", handleError(err)
	}
	return userID, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["sessionCookie"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "cookie",
		Name: SessionCookie,
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"sessionCookie": {}},
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):     true,
		path.Join("/", basePath, "auth/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Agency Ops API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Sign in with POST /auth/login, or send Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSession(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Sign in and receive a session cookie",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		SetCookie http.Cookie   `header:"Set-Cookie"`
		Body      LoginResponse `json:"body"`
	}, error) {
		s, u, err := e.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		expires, _ := time.Parse(time.RFC3339, s.ExpiresAt)
		return &struct {
			SetCookie http.Cookie   `header:"Set-Cookie"`
			Body      LoginResponse `json:"body"`
		}{
			SetCookie: sessionCookie(s.Token, expires, authCfg.SecureCookies),
			Body:      LoginResponse{User: u, ExpiresAt: s.ExpiresAt},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/auth/logout",
		Summary:     "End the current session",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		SetCookie http.Cookie     `header:"Set-Cookie"`
		Body      MessageResponse `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if p.SessionToken != "" {
			if err := e.Logout(ctx, p.SessionToken); err != nil {
				return nil, handleError(err)
			}
		}
		return &struct {
			SetCookie http.Cookie     `header:"Set-Cookie"`
			Body      MessageResponse `json:"body"`
		}{
			SetCookie: clearedSessionCookie(authCfg.SecureCookies),
			Body:      MessageResponse{Message: "Logged out"},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "issue-token",
		Method:      http.MethodPost,
		Path:        "/auth/token",
		Summary:     "Mint a bearer token for the current user",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ttl := authCfg.TokenTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		now := time.Now().UTC()
		token, err := signToken(authCfg.JWTSecret, userID, ttl, now)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token, ExpiresAt: now.Add(ttl).Format(time.RFC3339)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		perms, err := e.Auth.UserPermissions(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{User: u, Permissions: nonNilSlice(perms)}}, nil
	})
}

type idPath struct {
	ID string `path:"id"`
}

func registerPackages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-packages",
		Method:      http.MethodGet,
		Path:        "/packages",
		Summary:     "List packages",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Package `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListPackages(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Package `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-package",
		Method:        http.MethodPost,
		Path:          "/packages",
		Summary:       "Create package",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreatePackageRequest `json:"body"`
	}) (*struct {
		Body domain.Package `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, e, "package.create")
		if err != nil {
			return nil, err
		}
		p, err := e.CreatePackage(ctx, engine.PackageInput{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Price:       input.Body.Price,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Package `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-package",
		Method:      http.MethodGet,
		Path:        "/packages/{id}",
		Summary:     "Get package with templates",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body domain.Package `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.GetPackage(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Package `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-package",
		Method:      http.MethodPatch,
		Path:        "/packages/{id}",
		Summary:     "Update package",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdatePackageRequest `json:"body"`
	}) (*struct {
		Body domain.Package `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, e, "package.update")
		if err != nil {
			return nil, err
		}
		p, err := e.UpdatePackage(ctx, input.ID, engine.PackageUpdate{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Price:       input.Body.Price,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Package `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-package",
		Method:        http.MethodDelete,
		Path:          "/packages/{id}",
		Summary:       "Delete package",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		actorID, err := requirePermission(ctx, e, "package.delete")
		if err != nil {
			return nil, err
		}
		if err := e.DeletePackage(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTemplates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List templates",
	}, func(ctx context.Context, input *struct {
		PackageID string `query:"packageId"`
	}) (*struct {
		Body []domain.Template `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListTemplates(ctx, input.PackageID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Template `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-template",
		Method:        http.MethodPost,
		Path:          "/templates",
		Summary:       "Create template with site assets",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateTemplateRequest `json:"body"`
	}) (*struct {
		Body domain.Template `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, e, "template.create")
		if err != nil {
			return nil, err
		}
		t, err := e.CreateTemplate(ctx, engine.TemplateCreateOptions{
			PackageID:   input.Body.PackageID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			SiteAssets:  siteAssetInputs(input.Body.SiteAssets),
			TeamMembers: teamMembers(input.Body.TeamMembers),
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Template `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/templates/{id}",
		Summary:     "Get template with site assets and team",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body domain.Template `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		t, err := e.Repo.GetTemplate(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Template `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-template",
		Method:        http.MethodDelete,
		Path:          "/templates/{id}",
		Summary:       "Delete template",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		actorID, err := requirePermission(ctx, e, "template.delete")
		if err != nil {
			return nil, err
		}
		if err := e.DeleteTemplate(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-site-asset",
		Method:        http.MethodPost,
		Path:          "/templates/{id}/site-assets",
		Summary:       "Add site asset",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SiteAssetRequest `json:"body"`
	}) (*struct {
		Body domain.TemplateSiteAsset `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, e, "template.update")
		if err != nil {
			return nil, err
		}
		a, err := e.AddSiteAsset(ctx, input.ID, siteAssetInput(input.Body), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TemplateSiteAsset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-site-asset",
		Method:        http.MethodDelete,
		Path:          "/templates/{id}/site-assets/{assetId}",
		Summary:       "Delete site asset",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		AssetID string `path:"assetId"`
	}) (*struct{}, error) {
		actorID, err := requirePermission(ctx, e, "template.update")
		if err != nil {
			return nil, err
		}
		if err := e.DeleteSiteAsset(ctx, input.ID, input.AssetID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-template-team",
		Method:      http.MethodPut,
		Path:        "/templates/{id}/team-members",
		Summary:     "Replace template team roster",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body SetTeamRequest `json:"body"`
	}) (*struct {
		Body domain.Template `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, e, "template.update")
		if err != nil {
			return nil, err
		}
		t, err := e.SetTemplateTeam(ctx, input.ID, teamMembers(input.Body.TeamMembers), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Template `json:"body"`
		}{Body: t}, nil
	})
}

func registerClients(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-clients",
		Method:      http.MethodGet,
		Path:        "/clients",
		Summary:     "List clients",
	}, func(ctx context.Context, input *struct {
		Status    string `query:"status"`
		PackageID string `query:"packageId"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []domain.Client `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListClients(ctx, repo.ClientFilters{Status: input.Status, PackageID: input.PackageID, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Client `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-client",
		Method:        http.MethodPost,
		Path:          "/clients",
		Summary:       "Create client",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateClientRequest `json:"body"`
	}) (*struct {
		Body domain.Client `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, e, "client.create")
		if err != nil {
			return nil, err
		}
		c, err := e.CreateClient(ctx, engine.ClientInput{
			Name:        input.Body.Name,
			Company:     input.Body.Company,
			Email:       input.Body.Email,
			PackageID:   input.Body.PackageID,
			Status:      input.Body.Status,
			SocialLinks: socialLinkInputs(input.Body.SocialLinks),
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Client `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-client",
		Method:      http.MethodGet,
		Path:        "/clients/{id}",
		Summary:     "Get client",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body domain.Client `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		c, err := e.Repo.GetClient(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Client `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-client",
		Method:      http.MethodPatch,
		Path:        "/clients/{id}",
		Summary:     "Update client",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateClientRequest `json:"body"`
	}) (*struct {
		Body domain.Client `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, e, "client.update")
		if err != nil {
			return nil, err
		}
		c, err := e.UpdateClient(ctx, input.ID, engine.ClientUpdate{
			Name:        input.Body.Name,
			Company:     input.Body.Company,
			Email:       input.Body.Email,
			PackageID:   input.Body.PackageID,
			Status:      input.Body.Status,
			SocialLinks: socialLinkInputs(input.Body.SocialLinks),
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Client `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-client",
		Method:        http.MethodDelete,
		Path:          "/clients/{id}",
		Summary:       "Delete client",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		actorID, err := requirePermission(ctx, e, "client.delete")
		if err != nil {
			return nil, err
		}
		if err := e.DeleteClient(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "client-overview",
		Method:      http.MethodGet,
		Path:        "/clients/{id}/overview",
		Summary:     "Client dashboard: team counters, task counts and assignments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body engine.Overview `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		ov, err := e.ClientOverview(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		ov.Team = nonNilSlice(ov.Team)
		ov.Assignments = nonNilSlice(ov.Assignments)
		return &struct {
			Body engine.Overview `json:"body"`
		}{Body: ov}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "client-team",
		Method:      http.MethodGet,
		Path:        "/clients/{id}/team",
		Summary:     "Client team members with workload counters",
	}, func(ctx context.Context, input *idPath) (*struct {
		Body []domain.ClientTeamMember `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		team, err := e.Repo.ListClientTeam(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ClientTeamMember `json:"body"`
		}{Body: nonNilSlice(team)}, nil
	})
}

func registerAssignments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-assignment",
		Method:        http.MethodPost,
		Path:          "/assignments",
		Summary:       "Create assignment and generate its tasks",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateAssignmentRequest `json:"body"`
	}) (*struct {
		Body domain.Assignment `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, e, "assignment.create")
		if err != nil {
			return nil, err
		}
		a, err := e.CreateAssignment(ctx, engine.AssignmentCreateOptions{
			ClientID:   input.Body.ClientID,
			TemplateID: input.Body.TemplateID,
			Status:     input.Body.Status,
			AgentIDs:   input.Body.AgentIDs,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		a.Tasks = nonNilSlice(a.Tasks)
		return &struct {
			Body domain.Assignment `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assignments",
		Method:      http.MethodGet,
		Path:        "/assignments",
		Summary:     "List assignments",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"clientId"`
	}) (*struct {
		Body []domain.Assignment `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAssignments(ctx, input.ClientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Assignment `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-assignment",
		Method:      http.MethodGet,
		Path:        "/assignments/{id}",
		Summary:     "Get assignment with template and tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body domain.Assignment `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.GetAssignment(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Assignment `json:"body"`
		}{Body: a}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "distribute-tasks",
		Method:      http.MethodPost,
		Path:        "/tasks/distribute",
		Summary:     "Assign tasks to agents in one batch",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DistributeRequest `json:"body"`
	}) (*struct {
		Body engine.DistributeResult `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, e, "task.distribute")
		if err != nil {
			return nil, err
		}
		res, err := e.Distribute(ctx, engine.DistributeOptions{
			ClientID:    input.Body.ClientID,
			Assignments: input.Body.Assignments,
			ActorID:     actorID,
		})
		if err != nil {
			var ne *engine.NotificationError
			if errors.As(err, &ne) {
				return nil, newAPIError(http.StatusInternalServerError, "notification_failed", ne.Error(),
					map[string]any{"assignedTasks": res.AssignedTasks, "notified": ne.Delivered})
			}
			return nil, handleError(err)
		}
		return &struct {
			Body engine.DistributeResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		ClientID     string `query:"clientId"`
		AssignmentID string `query:"assignmentId"`
		AssignedToID string `query:"assignedToId"`
		Status       string `query:"status"`
		Limit        int    `query:"limit"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			ClientID:     input.ClientID,
			AssignmentID: input.AssignmentID,
			AssignedToID: input.AssignedToID,
			Status:       input.Status,
			Limit:        input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		t, err := e.Repo.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task status and performance fields",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, e, "task.update")
		if err != nil {
			return nil, err
		}
		t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:                    input.ID,
			Status:                input.Body.Status,
			Priority:              input.Body.Priority,
			DueDate:               input.Body.DueDate,
			CategoryID:            input.Body.CategoryID,
			ActualDurationMinutes: input.Body.ActualDurationMinutes,
			PerformanceRating:     input.Body.PerformanceRating,
			CompletionLink:        input.Body.CompletionLink,
			ActorID:               actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-categories",
		Method:      http.MethodGet,
		Path:        "/categories",
		Summary:     "List task categories",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.TaskCategory `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListCategories(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TaskCategory `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-category",
		Method:        http.MethodPost,
		Path:          "/categories",
		Summary:       "Create task category",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateCategoryRequest `json:"body"`
	}) (*struct {
		Body domain.TaskCategory `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, "task.update"); err != nil {
			return nil, err
		}
		c, err := e.CreateCategory(ctx, input.Body.Name, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskCategory `json:"body"`
		}{Body: c}, nil
	})
}

func registerActivity(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "recent-activity",
		Method:      http.MethodGet,
		Path:        "/activity",
		Summary:     "Most recent activity, newest first",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		EntityType string `query:"entityType"`
		EntityID   string `query:"entityId"`
		Action     string `query:"action"`
	}) (*struct {
		Body []domain.ActivityLog `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.RecentActivity(ctx, repo.ActivityFilters{
			EntityType: input.EntityType,
			EntityID:   input.EntityID,
			Action:     input.Action,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ActivityLog `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func registerRBAC(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-roles",
		Method:      http.MethodGet,
		Path:        "/roles",
		Summary:     "List roles with permissions",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Role `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, "rbac.manage"); err != nil {
			return nil, err
		}
		roles, err := e.Repo.ListRoles(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Role `json:"body"`
		}{Body: nonNilSlice(roles)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-role",
		Method:        http.MethodPost,
		Path:          "/roles",
		Summary:       "Create role",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateRoleRequest `json:"body"`
	}) (*struct {
		Body domain.Role `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, "rbac.manage"); err != nil {
			return nil, err
		}
		role, err := e.CreateRole(ctx, input.Body.Name, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Role `json:"body"`
		}{Body: role}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-permissions",
		Method:      http.MethodGet,
		Path:        "/permissions",
		Summary:     "List permissions",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Permission `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, "rbac.manage"); err != nil {
			return nil, err
		}
		perms, err := e.Repo.ListPermissions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Permission `json:"body"`
		}{Body: nonNilSlice(perms)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-permission",
		Method:        http.MethodPost,
		Path:          "/permissions",
		Summary:       "Create permission",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreatePermissionRequest `json:"body"`
	}) (*struct {
		Body domain.Permission `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, "rbac.manage"); err != nil {
			return nil, err
		}
		p, err := e.CreatePermission(ctx, input.Body.Name, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Permission `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-permission",
		Method:      http.MethodPost,
		Path:        "/roles/{id}/permissions",
		Summary:     "Grant a permission to a role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body GrantPermissionRequest `json:"body"`
	}) (*struct {
		Body domain.Role `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, e, "rbac.manage")
		if err != nil {
			return nil, err
		}
		role, err := e.GrantPermission(ctx, input.ID, input.Body.Permission, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Role `json:"body"`
		}{Body: role}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Role string `query:"role"`
	}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, "user.manage"); err != nil {
			return nil, err
		}
		users, err := e.Repo.ListUsers(ctx, input.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: nonNilSlice(users)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, e, "user.manage")
		if err != nil {
			return nil, err
		}
		u, err := e.CreateUser(ctx, engine.UserCreateOptions{
			Name:     input.Body.Name,
			Email:    input.Body.Email,
			Password: input.Body.Password,
			RoleName: input.Body.Role,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-user-role",
		Method:      http.MethodPut,
		Path:        "/users/{id}/role",
		Summary:     "Change a user's role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body SetRoleRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, e, "user.manage")
		if err != nil {
			return nil, err
		}
		u, err := e.SetUserRole(ctx, input.ID, input.Body.Role, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Current user's notifications",
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
		Limit  int  `query:"limit"`
	}) (*struct {
		Body []domain.Notification `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListNotifications(ctx, userID, input.Unread, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Notification `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "mark-notification-read",
		Method:        http.MethodPost,
		Path:          "/notifications/{id}/read",
		Summary:       "Mark notification read",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.MarkNotificationRead(ctx, userID, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
