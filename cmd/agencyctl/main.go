package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"agencyops/internal/app"
	"agencyops/internal/config"
	"agencyops/internal/db"
	"agencyops/internal/domain"
	"agencyops/internal/engine"
	"agencyops/internal/logging"
	"agencyops/internal/migrate"
	"agencyops/internal/repo"
	"agencyops/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "agencyctl",
	Short: "Agency operations portal CLI",
	Long: `agencyctl runs and administers the agency operations portal.
- Packages group templates; templates list recurring site assets (a Facebook post, a blog link).
- An assignment binds a client to a template and expands it into dated tasks.
- Distribution hands tasks to agents in one batch, bumps their workload counters and notifies them.
- Everything that changes data lands in the activity log ('agencyctl activity tail').`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("AGENCY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "email of the user recorded as actor in the activity log")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(bootstrapCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(packageCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(assignmentCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			actx, err := app.Open(ctx, workspace, logger)
			if err != nil {
				return err
			}
			defer actx.Close()
			if n, err := actx.Engine.PurgeExpiredSessions(ctx); err != nil {
				logger.Warn("purge expired sessions", zap.Error(err))
			} else if n > 0 {
				logger.Info("purged expired sessions", zap.Int64("count", n))
			}

			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			ttl, _ := cfg.SessionTTL()
			authCfg := server.AuthConfig{
				JWTSecret:     viper.GetString("jwt_secret"),
				TokenTTL:      time.Hour,
				SecureCookies: cfg.Server.SecureCookies,
				Logger:        logger,
			}
			if authCfg.JWTSecret == "" {
				logger.Warn("AGENCY_JWT_SECRET not set; bearer tokens are disabled")
			}
			handler, err := server.New(server.Config{Engine: actx.Engine, BasePath: basePath, Auth: authCfg, Logger: logger})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			if v, dirty, err := migrate.Version(actx.DB); err == nil {
				logger.Info("schema", zap.Uint("version", v), zap.Bool("dirty", dirty))
			}
			logger.Info("serving agency API",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.Duration("session_ttl", ttl))
			fmt.Printf("Serving agency API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	return cmd
}

func bootstrapCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Seed roles and permissions and create the first admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = viper.GetString("admin_password")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, created, err := app.EnsureAdmin(ctx, e, name, email, password)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"user": u, "created": created})
				}
				if created {
					fmt.Printf("Created admin %s (%s)\n", u.Email, u.ID)
				} else {
					fmt.Printf("Admin %s already exists\n", u.Email)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "Administrator", "admin display name")
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password (or AGENCY_ADMIN_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage users"}
	usr.AddCommand(userCreateCmd())
	usr.AddCommand(userListCmd())
	usr.AddCommand(userRoleCmd())
	return usr
}

func userRoleCmd() *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Move a user to another role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := actorID(ctx, e)
				if err != nil {
					return err
				}
				u, err := e.Repo.GetUserByEmail(ctx, email)
				if err != nil {
					return err
				}
				u, err = e.SetUserRole(ctx, u.ID, role, actorID)
				if err != nil {
					return err
				}
				return printUsers([]domain.User{u})
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&role, "role", "", "role name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func userCreateCmd() *cobra.Command {
	var name, email, password, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := actorID(ctx, e)
				if err != nil {
					return err
				}
				u, err := e.CreateUser(ctx, engine.UserCreateOptions{
					Name: name, Email: email, Password: password, RoleName: role, ActorID: actorID,
				})
				if err != nil {
					return err
				}
				return printUsers([]domain.User{u})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&role, "role", "agent", "role name")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.Repo.ListUsers(ctx, role)
				if err != nil {
					return err
				}
				return printUsers(users)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "filter by role name")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var email, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Repo.GetUserByEmail(ctx, email)
				if err != nil {
					return err
				}
				plain, key, err := e.CreateAPIKey(ctx, u.ID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": plain, "apiKey": key})
				}
				fmt.Printf("API key %s for %s:\n%s\n", key.ID, u.Email, plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "owner email")
	create.Flags().StringVar(&name, "name", "cli", "key label")
	_ = create.MarkFlagRequired("email")
	keys.AddCommand(create)

	var owner string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				userID := ""
				if owner != "" {
					u, err := e.Repo.GetUserByEmail(ctx, owner)
					if err != nil {
						return err
					}
					userID = u.ID
				}
				items, err := e.Repo.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Name", "User", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.Name, k.UserID, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&owner, "email", "", "only keys owned by this user")
	keys.AddCommand(list)

	keys.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Revoked API key %s\n", args[0])
				return nil
			})
		},
	})
	return keys
}

func packageCmd() *cobra.Command {
	pkg := &cobra.Command{Use: "package", Short: "Manage packages"}
	pkg.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListPackages(ctx)
				if err != nil {
					return err
				}
				return printPackages(items)
			})
		},
	})

	var name, desc string
	var price float64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a package",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := actorID(ctx, e)
				if err != nil {
					return err
				}
				in := engine.PackageInput{Name: name, Description: desc}
				if cmd.Flags().Changed("price") {
					in.Price = &price
				}
				p, err := e.CreatePackage(ctx, in, actorID)
				if err != nil {
					return err
				}
				return printPackages([]domain.Package{p})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "package name")
	create.Flags().StringVar(&desc, "description", "", "description")
	create.Flags().Float64Var(&price, "price", 0, "monthly price")
	_ = create.MarkFlagRequired("name")
	pkg.AddCommand(create)

	pkg.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a package no client uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := actorID(ctx, e)
				if err != nil {
					return err
				}
				if err := e.DeletePackage(ctx, args[0], actorID); err != nil {
					return err
				}
				fmt.Printf("Deleted package %s\n", args[0])
				return nil
			})
		},
	})
	return pkg
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{Use: "template", Short: "Inspect templates"}
	var packageID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListTemplates(ctx, packageID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Name", "Package", "Status"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Name, t.PackageID, t.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&packageID, "package", "", "filter by package id")
	tpl.AddCommand(list)

	tpl.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a template with its site assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTemplate(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("Template: %s (%s)\n", t.Name, t.ID)
				tw := newTable(table.Row{"Asset", "Type", "Per week", "Ideal min"})
				for _, a := range t.SiteAssets {
					ideal := "-"
					if a.DefaultIdealDurationMinutes != nil {
						ideal = fmt.Sprint(*a.DefaultIdealDurationMinutes)
					}
					tw.AppendRow(table.Row{a.Name, a.Type, a.DefaultPostingFrequency, ideal})
				}
				tw.Render()
				return nil
			})
		},
	})
	return tpl
}

func clientCmd() *cobra.Command {
	cl := &cobra.Command{Use: "client", Short: "Manage clients"}
	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListClients(ctx, repo.ClientFilters{Status: status})
				if err != nil {
					return err
				}
				return printClients(items)
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status")
	cl.AddCommand(list)

	var in engine.ClientInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := actorID(ctx, e)
				if err != nil {
					return err
				}
				c, err := e.CreateClient(ctx, in, actorID)
				if err != nil {
					return err
				}
				return printClients([]domain.Client{c})
			})
		},
	}
	create.Flags().StringVar(&in.Name, "name", "", "client name")
	create.Flags().StringVar(&in.Company, "company", "", "company")
	create.Flags().StringVar(&in.Email, "email", "", "contact email")
	create.Flags().StringVar(&in.PackageID, "package", "", "package id")
	create.Flags().StringVar(&in.Status, "status", "", "active, inactive or onboarding")
	_ = create.MarkFlagRequired("name")
	cl.AddCommand(create)
	return cl
}

func assignmentCmd() *cobra.Command {
	asg := &cobra.Command{Use: "assignment", Short: "Manage assignments"}
	var opts engine.AssignmentCreateOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Bind a client to a template and generate its tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := actorID(ctx, e)
				if err != nil {
					return err
				}
				opts.ActorID = actorID
				a, err := e.CreateAssignment(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("Assignment %s created with %d task(s)\n", a.ID, len(a.Tasks))
				return printTasks(a.Tasks)
			})
		},
	}
	create.Flags().StringVar(&opts.ClientID, "client", "", "client id")
	create.Flags().StringVar(&opts.TemplateID, "template", "", "template id")
	create.Flags().StringVar(&opts.Status, "status", "", "assignment status")
	create.Flags().StringSliceVar(&opts.AgentIDs, "agent", nil, "agent user id (repeatable)")
	_ = create.MarkFlagRequired("client")
	asg.AddCommand(create)
	return asg
}

func taskCmd() *cobra.Command {
	tsk := &cobra.Command{Use: "task", Short: "Manage tasks"}
	var f repo.TaskFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				return printTasks(items)
			})
		},
	}
	list.Flags().StringVar(&f.ClientID, "client", "", "client id")
	list.Flags().StringVar(&f.AssignmentID, "assignment", "", "assignment id")
	list.Flags().StringVar(&f.AssignedToID, "agent", "", "assigned agent id")
	list.Flags().StringVar(&f.Status, "status", "", "status")
	list.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	tsk.AddCommand(list)

	var clientID string
	var pairs []string
	distribute := &cobra.Command{
		Use:   "distribute",
		Short: "Assign tasks to agents in one batch",
		Example: `  agencyctl task distribute --client c1 --assign t1=agentA --assign t2=agentB`,
		RunE: func(cmd *cobra.Command, args []string) error {
			assignments, err := parseAssignments(pairs)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := actorID(ctx, e)
				if err != nil {
					return err
				}
				res, err := e.Distribute(ctx, engine.DistributeOptions{
					ClientID: clientID, Assignments: assignments, ActorID: actorID,
				})
				var ne *engine.NotificationError
				if errors.As(err, &ne) {
					fmt.Fprintf(os.Stderr, "warning: %d task(s) assigned but notifications failed: %v\n", res.AssignedTasks, ne.Err)
					err = nil
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s: %d task(s)\n", res.Message, res.AssignedTasks)
				return nil
			})
		},
	}
	distribute.Flags().StringVar(&clientID, "client", "", "client id")
	distribute.Flags().StringArrayVar(&pairs, "assign", nil, "taskId=agentId (repeatable)")
	_ = distribute.MarkFlagRequired("client")
	tsk.AddCommand(distribute)
	return tsk
}

func parseAssignments(pairs []string) ([]engine.TaskAgent, error) {
	out := make([]engine.TaskAgent, 0, len(pairs))
	for _, p := range pairs {
		taskID, agentID, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(taskID) == "" || strings.TrimSpace(agentID) == "" {
			return nil, fmt.Errorf("--assign %q: want taskId=agentId", p)
		}
		out = append(out, engine.TaskAgent{TaskID: strings.TrimSpace(taskID), AgentID: strings.TrimSpace(agentID)})
	}
	return out, nil
}

func activityCmd() *cobra.Command {
	act := &cobra.Command{Use: "activity", Short: "Read the activity log"}
	var n int
	var f repo.ActivityFilters
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent activity, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var items []domain.ActivityLog
				var err error
				if n > 0 {
					items, err = e.Repo.RecentActivity(ctx, n, f)
				} else {
					items, err = e.RecentActivity(ctx, f)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"When", "Action", "Entity", "User"})
				for _, a := range items {
					who := a.UserEmail
					if who == "" {
						who = "system"
					}
					tw.AppendRow(table.Row{a.Timestamp, a.Action, a.EntityType + ":" + a.EntityID, who})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 0, "number of entries (default activity.recent_limit)")
	tail.Flags().StringVar(&f.EntityType, "entity-type", "", "entity type")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	tail.Flags().StringVar(&f.Action, "action", "", "action")
	act.AddCommand(tail)
	return act
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default agency.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate agency.yml or agency.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cfgCmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	actx, err := app.Open(ctx, viper.GetString("workspace"), nil)
	if err != nil {
		return err
	}
	defer actx.Close()
	return fn(ctx, actx.Engine)
}

// actorID resolves --actor to a user id. An empty flag records the change as a system action.
func actorID(ctx context.Context, e engine.Engine) (string, error) {
	email := strings.TrimSpace(viper.GetString("actor"))
	if email == "" {
		return "", nil
	}
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("--actor %s: %w", email, err)
	}
	return u.ID, nil
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPackages(items []domain.Package) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Name", "Price"})
	for _, p := range items {
		price := "-"
		if p.Price != nil {
			price = fmt.Sprintf("%.2f", *p.Price)
		}
		tw.AppendRow(table.Row{p.ID, p.Name, price})
	}
	tw.Render()
	return nil
}

func printClients(items []domain.Client) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Name", "Company", "Status", "Package"})
	for _, c := range items {
		tw.AppendRow(table.Row{c.ID, c.Name, c.Company, c.Status, deref(c.PackageID)})
	}
	tw.Render()
	return nil
}

func printTasks(items []domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Name", "Status", "Assignee", "Due"})
	for _, t := range items {
		tw.AppendRow(table.Row{t.ID, t.Name, t.Status, deref(t.AssignedToID), deref(t.DueDate)})
	}
	tw.Render()
	return nil
}

func printUsers(items []domain.User) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Name", "Email", "Role", "Status"})
	for _, u := range items {
		tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.RoleName, u.Status})
	}
	tw.Render()
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
