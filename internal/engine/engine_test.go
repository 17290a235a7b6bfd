package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencyops/internal/app"
	"agencyops/internal/config"
	"agencyops/internal/db"
	"agencyops/internal/domain"
	"agencyops/internal/engine"
	"agencyops/internal/migrate"
	"agencyops/internal/repo"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	cfg := config.Default()
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return epoch }
	ctx := context.Background()
	require.NoError(t, app.SeedRBAC(ctx, eng.Repo, cfg))
	return &testEnv{Engine: eng, Ctx: ctx}
}

func (env *testEnv) user(t *testing.T, name, role string) domain.User {
	t.Helper()
	u, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{
		Name:     name,
		Email:    fmt.Sprintf("%s@agency.test", name),
		Password: "correct-horse",
		RoleName: role,
	})
	require.NoError(t, err)
	return u
}

type blogPromo struct {
	Package  domain.Package
	Template domain.Template
	Client   domain.Client
}

// seedBlogPromo creates the Starter package with a "Blog Promo" template holding one
// Facebook Post asset posted three times a week, and a client on that package.
func (env *testEnv) seedBlogPromo(t *testing.T) blogPromo {
	t.Helper()
	pkg, err := env.Engine.CreatePackage(env.Ctx, engine.PackageInput{Name: "Starter"}, "")
	require.NoError(t, err)
	tmpl, err := env.Engine.CreateTemplate(env.Ctx, engine.TemplateCreateOptions{
		PackageID: pkg.ID,
		Name:      "Blog Promo",
		SiteAssets: []engine.SiteAssetInput{
			{Type: domain.AssetSocial, Name: "Facebook Post", DefaultPostingFrequency: 3},
		},
	})
	require.NoError(t, err)
	c, err := env.Engine.CreateClient(env.Ctx, engine.ClientInput{Name: "Acme", PackageID: pkg.ID}, "")
	require.NoError(t, err)
	return blogPromo{Package: pkg, Template: tmpl, Client: c}
}

func intPtr(v int) *int { return &v }

func TestPlanAssetTasksCountsEveryOccurrence(t *testing.T) {
	a := domain.Assignment{ID: "a1", ClientID: "c1"}
	cases := []struct {
		name  string
		freqs []int
		want  int
	}{
		{"none", nil, 0},
		{"single", []int{1}, 1},
		{"mixed", []int{3, 2, 1}, 6},
		{"zero counts as one", []int{0, 4}, 5},
		{"negative counts as one", []int{-2}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var assets []domain.TemplateSiteAsset
			for i, f := range tc.freqs {
				assets = append(assets, domain.TemplateSiteAsset{ID: fmt.Sprintf("s%d", i), Name: fmt.Sprintf("Asset %d", i), DefaultPostingFrequency: f})
			}
			tasks := engine.PlanAssetTasks(config.Generation{}, a, assets, epoch)
			assert.Len(t, tasks, tc.want)
			for _, task := range tasks {
				assert.Equal(t, domain.TaskPending, task.Status)
				assert.Nil(t, task.AssignedToID)
				assert.Equal(t, "c1", task.ClientID)
			}
		})
	}
}

func TestPlanAssetTasksIdealDuration(t *testing.T) {
	a := domain.Assignment{ID: "a1", ClientID: "c1"}
	assets := []domain.TemplateSiteAsset{
		{ID: "s1", Name: "Blog", DefaultPostingFrequency: 1, DefaultIdealDurationMinutes: intPtr(45)},
		{ID: "s2", Name: "Tweet", DefaultPostingFrequency: 1},
	}
	tasks := engine.PlanAssetTasks(config.Generation{}, a, assets, epoch)
	require.Len(t, tasks, 2)
	assert.Equal(t, 45, *tasks[0].IdealDurationMinutes)
	assert.Equal(t, 30, *tasks[1].IdealDurationMinutes)
}

func TestCreateAssignmentGeneratesWeeklyTasks(t *testing.T) {
	env := newTestEnv(t)
	s := env.seedBlogPromo(t)

	a, err := env.Engine.CreateAssignment(env.Ctx, engine.AssignmentCreateOptions{
		ClientID:   s.Client.ID,
		TemplateID: s.Template.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "pending", a.Status)
	require.Len(t, a.Tasks, 3)
	wantDue := []string{"2024-01-08T00:00:00Z", "2024-01-15T00:00:00Z", "2024-01-22T00:00:00Z"}
	for i, task := range a.Tasks {
		assert.Equal(t, fmt.Sprintf("Facebook Post Task %d", i+1), task.Name)
		require.NotNil(t, task.DueDate)
		assert.Equal(t, wantDue[i], *task.DueDate)
		assert.Equal(t, 30, *task.IdealDurationMinutes)
		assert.Equal(t, "medium", task.Priority)
		require.NotNil(t, task.TemplateSiteAssetID)
		assert.Equal(t, s.Template.SiteAssets[0].ID, *task.TemplateSiteAssetID)
	}

	stored, err := env.Engine.Repo.ListTasks(env.Ctx, repo.TaskFilters{ClientID: s.Client.ID})
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	got, err := env.Engine.GetAssignment(env.Ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Template)
	assert.Equal(t, "Blog Promo", got.Template.Name)
	assert.Len(t, got.Tasks, 3)

	n, err := env.Engine.Repo.CountActivity(env.Ctx, "assignment_created", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateAssignmentAgentTasksAndTeam(t *testing.T) {
	env := newTestEnv(t)
	s := env.seedBlogPromo(t)
	ava := env.user(t, "ava", "agent")
	ben := env.user(t, "ben", "agent")

	a, err := env.Engine.CreateAssignment(env.Ctx, engine.AssignmentCreateOptions{
		ClientID: s.Client.ID,
		AgentIDs: []string{ava.ID, ben.ID},
	})
	require.NoError(t, err)
	require.Len(t, a.Tasks, 2)
	assert.Equal(t, "Task for ava", a.Tasks[0].Name)
	require.NotNil(t, a.Tasks[0].AssignedToID)
	assert.Equal(t, ava.ID, *a.Tasks[0].AssignedToID)
	assert.Equal(t, "2024-01-08T00:00:00Z", *a.Tasks[0].DueDate)
	assert.Equal(t, 30, *a.Tasks[0].IdealDurationMinutes)

	team, err := env.Engine.Repo.ListClientTeam(env.Ctx, s.Client.ID)
	require.NoError(t, err)
	require.Len(t, team, 2)
	for _, m := range team {
		assert.Equal(t, "agent", m.Role)
		assert.True(t, m.IsActive)
		assert.Equal(t, 0, m.AssignedTasks)
	}

	// a second assignment with the same agent keeps one membership row
	_, err = env.Engine.CreateAssignment(env.Ctx, engine.AssignmentCreateOptions{
		ClientID:   s.Client.ID,
		TemplateID: s.Template.ID,
		AgentIDs:   []string{ava.ID},
	})
	require.NoError(t, err)
	rows, err := env.Engine.Repo.CountClientTeamRows(env.Ctx, s.Client.ID, ava.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
}

func TestCreateAssignmentRollsBackOnUnknownAgent(t *testing.T) {
	env := newTestEnv(t)
	s := env.seedBlogPromo(t)
	ava := env.user(t, "ava", "agent")

	_, err := env.Engine.CreateAssignment(env.Ctx, engine.AssignmentCreateOptions{
		ClientID:   s.Client.ID,
		TemplateID: s.Template.ID,
		AgentIDs:   []string{ava.ID, "ghost"},
	})
	require.ErrorIs(t, err, repo.ErrNotFound)

	assignments, err := env.Engine.Repo.ListAssignments(env.Ctx, s.Client.ID)
	require.NoError(t, err)
	assert.Empty(t, assignments)
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, repo.TaskFilters{ClientID: s.Client.ID})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	team, err := env.Engine.Repo.ListClientTeam(env.Ctx, s.Client.ID)
	require.NoError(t, err)
	assert.Empty(t, team)
}

func TestCreateAssignmentValidation(t *testing.T) {
	env := newTestEnv(t)
	s := env.seedBlogPromo(t)

	_, err := env.Engine.CreateAssignment(env.Ctx, engine.AssignmentCreateOptions{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.CreateAssignment(env.Ctx, engine.AssignmentCreateOptions{ClientID: s.Client.ID, Status: "paused"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.CreateAssignment(env.Ctx, engine.AssignmentCreateOptions{ClientID: "nope"})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.CreateAssignment(env.Ctx, engine.AssignmentCreateOptions{ClientID: s.Client.ID, TemplateID: "nope"})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

// distributionFixture returns a client with three generated tasks and one agent whose
// membership counter starts at five.
func distributionFixture(t *testing.T, env *testEnv) (blogPromo, []domain.Task, domain.User) {
	t.Helper()
	s := env.seedBlogPromo(t)
	agent := env.user(t, "ava", "agent")
	a, err := env.Engine.CreateAssignment(env.Ctx, engine.AssignmentCreateOptions{
		ClientID:   s.Client.ID,
		TemplateID: s.Template.ID,
		AgentIDs:   []string{agent.ID},
	})
	require.NoError(t, err)
	require.NoError(t, env.Engine.Repo.SetAssignedTasks(env.Ctx, s.Client.ID, agent.ID, 5))
	var assetTasks []domain.Task
	for _, task := range a.Tasks {
		if task.TemplateSiteAssetID != nil {
			assetTasks = append(assetTasks, task)
		}
	}
	require.Len(t, assetTasks, 3)
	return s, assetTasks, agent
}

func assignedCounter(t *testing.T, env *testEnv, clientID, agentID string) int {
	t.Helper()
	m, err := env.Engine.Repo.GetClientTeamMember(env.Ctx, clientID, agentID)
	require.NoError(t, err)
	return m.AssignedTasks
}

func TestDistributeAssignsAndCounts(t *testing.T) {
	env := newTestEnv(t)
	s, tasks, agent := distributionFixture(t, env)
	// put one task in progress so the reset to pending is observable
	status := domain.TaskInProgress
	_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: tasks[0].ID, Status: &status})
	require.NoError(t, err)

	res, err := env.Engine.Distribute(env.Ctx, engine.DistributeOptions{
		ClientID: s.Client.ID,
		Assignments: []engine.TaskAgent{
			{TaskID: tasks[0].ID, AgentID: agent.ID},
			{TaskID: tasks[1].ID, AgentID: agent.ID},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Tasks distributed successfully", res.Message)
	assert.Equal(t, 2, res.AssignedTasks)
	require.Len(t, res.Assignments, 2)
	for _, d := range res.Assignments {
		assert.Equal(t, agent.ID, *d.Task.AssignedToID)
		assert.Equal(t, domain.TaskPending, d.Task.Status)
	}
	assert.Equal(t, 7, assignedCounter(t, env, s.Client.ID, agent.ID))

	n, err := env.Engine.Repo.CountActivity(env.Ctx, domain.ActionTaskAssigned, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	logs, err := env.Engine.RecentActivity(env.Ctx, repo.ActivityFilters{Action: domain.ActionTaskAssigned})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, s.Client.ID, logs[0].Details["clientId"])
	assert.Equal(t, agent.ID, logs[0].Details["agentId"])
	assert.Equal(t, "2024-01-01T00:00:00Z", logs[0].Details["timestamp"])

	notes, err := env.Engine.Repo.ListNotifications(env.Ctx, agent.ID, true, 0)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, domain.NotifyTaskAssigned, notes[0].Type)
	assert.NotNil(t, notes[0].TaskID)
}

func TestDistributeTwiceCountsTwice(t *testing.T) {
	env := newTestEnv(t)
	s, tasks, agent := distributionFixture(t, env)
	batch := engine.DistributeOptions{
		ClientID:    s.Client.ID,
		Assignments: []engine.TaskAgent{{TaskID: tasks[0].ID, AgentID: agent.ID}},
	}
	_, err := env.Engine.Distribute(env.Ctx, batch)
	require.NoError(t, err)
	_, err = env.Engine.Distribute(env.Ctx, batch)
	require.NoError(t, err)

	assert.Equal(t, 7, assignedCounter(t, env, s.Client.ID, agent.ID))
	n, err := env.Engine.Repo.CountActivity(env.Ctx, domain.ActionTaskAssigned, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDistributeCreatesMissingMembership(t *testing.T) {
	env := newTestEnv(t)
	s, tasks, _ := distributionFixture(t, env)
	ben := env.user(t, "ben", "agent")

	_, err := env.Engine.Distribute(env.Ctx, engine.DistributeOptions{
		ClientID: s.Client.ID,
		Assignments: []engine.TaskAgent{
			{TaskID: tasks[0].ID, AgentID: ben.ID},
			{TaskID: tasks[1].ID, AgentID: ben.ID},
			{TaskID: tasks[2].ID, AgentID: ben.ID},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, assignedCounter(t, env, s.Client.ID, ben.ID))
}

func TestDistributeIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	s, tasks, agent := distributionFixture(t, env)

	_, err := env.Engine.Distribute(env.Ctx, engine.DistributeOptions{
		ClientID: s.Client.ID,
		Assignments: []engine.TaskAgent{
			{TaskID: tasks[0].ID, AgentID: agent.ID},
			{TaskID: "missing", AgentID: agent.ID},
		},
	})
	require.ErrorIs(t, err, repo.ErrNotFound)

	task, err := env.Engine.Repo.GetTask(env.Ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Nil(t, task.AssignedToID)
	assert.Equal(t, 5, assignedCounter(t, env, s.Client.ID, agent.ID))
	n, err := env.Engine.Repo.CountActivity(env.Ctx, domain.ActionTaskAssigned, "")
	require.NoError(t, err)
	assert.Zero(t, n)
	notes, err := env.Engine.Repo.ListNotifications(env.Ctx, agent.ID, false, 0)
	require.NoError(t, err)
	assert.Empty(t, notes)

	_, err = env.Engine.Distribute(env.Ctx, engine.DistributeOptions{
		ClientID:    s.Client.ID,
		Assignments: []engine.TaskAgent{{TaskID: tasks[0].ID, AgentID: "ghost"}},
	})
	require.ErrorIs(t, err, repo.ErrNotFound)
	assert.Equal(t, 5, assignedCounter(t, env, s.Client.ID, agent.ID))
}

func TestDistributeValidation(t *testing.T) {
	env := newTestEnv(t)
	s, tasks, agent := distributionFixture(t, env)

	_, err := env.Engine.Distribute(env.Ctx, engine.DistributeOptions{ClientID: s.Client.ID})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.Distribute(env.Ctx, engine.DistributeOptions{
		Assignments: []engine.TaskAgent{{TaskID: tasks[0].ID, AgentID: agent.ID}},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.Distribute(env.Ctx, engine.DistributeOptions{
		ClientID:    s.Client.ID,
		Assignments: []engine.TaskAgent{{TaskID: tasks[0].ID}},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

type failingNotifier struct {
	calls int
}

func (f *failingNotifier) Notify(ctx context.Context, n domain.Notification) error {
	f.calls++
	return errors.New("mailer down")
}

func TestDistributeNotificationFailureKeepsCommit(t *testing.T) {
	env := newTestEnv(t)
	s, tasks, agent := distributionFixture(t, env)
	notifier := &failingNotifier{}
	env.Engine.Notifier = notifier

	res, err := env.Engine.Distribute(env.Ctx, engine.DistributeOptions{
		ClientID: s.Client.ID,
		Assignments: []engine.TaskAgent{
			{TaskID: tasks[0].ID, AgentID: agent.ID},
			{TaskID: tasks[1].ID, AgentID: agent.ID},
		},
	})
	var ne *engine.NotificationError
	require.True(t, errors.As(err, &ne), "got %v", err)
	assert.Equal(t, 0, ne.Delivered)
	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, 2, res.AssignedTasks)

	task, err := env.Engine.Repo.GetTask(env.Ctx, tasks[0].ID)
	require.NoError(t, err)
	require.NotNil(t, task.AssignedToID)
	assert.Equal(t, agent.ID, *task.AssignedToID)
	assert.Equal(t, 7, assignedCounter(t, env, s.Client.ID, agent.ID))
}

func TestDeletePackageInUse(t *testing.T) {
	env := newTestEnv(t)
	s := env.seedBlogPromo(t)

	err := env.Engine.DeletePackage(env.Ctx, s.Package.ID, "")
	require.ErrorIs(t, err, domain.ErrConflict)
	_, err = env.Engine.GetPackage(env.Ctx, s.Package.ID)
	require.NoError(t, err)

	spare, err := env.Engine.CreatePackage(env.Ctx, engine.PackageInput{Name: "Spare"}, "")
	require.NoError(t, err)
	require.NoError(t, env.Engine.DeletePackage(env.Ctx, spare.ID, ""))
	_, err = env.Engine.GetPackage(env.Ctx, spare.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.CreatePackage(env.Ctx, engine.PackageInput{Name: "Starter"}, "")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestTemplateSiteAssetFrequencyClamp(t *testing.T) {
	env := newTestEnv(t)
	pkg, err := env.Engine.CreatePackage(env.Ctx, engine.PackageInput{Name: "Basic"}, "")
	require.NoError(t, err)
	tmpl, err := env.Engine.CreateTemplate(env.Ctx, engine.TemplateCreateOptions{
		PackageID:  pkg.ID,
		Name:       "Zero",
		SiteAssets: []engine.SiteAssetInput{{Name: "Forum post", DefaultPostingFrequency: 0}},
	})
	require.NoError(t, err)
	require.Len(t, tmpl.SiteAssets, 1)
	assert.Equal(t, 1, tmpl.SiteAssets[0].DefaultPostingFrequency)
	assert.Equal(t, domain.AssetOther, tmpl.SiteAssets[0].Type)

	_, err = env.Engine.AddSiteAsset(env.Ctx, tmpl.ID, engine.SiteAssetInput{Name: "Bad", DefaultIdealDurationMinutes: intPtr(0)}, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateTaskStampsCompletion(t *testing.T) {
	env := newTestEnv(t)
	_, tasks, _ := distributionFixture(t, env)

	done := domain.TaskCompleted
	link := "https://facebook.com/acme/posts/1"
	task, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID:                    tasks[0].ID,
		Status:                &done,
		CompletionLink:        &link,
		ActualDurationMinutes: intPtr(25),
	})
	require.NoError(t, err)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, "2024-01-01T00:00:00Z", *task.CompletedAt)
	assert.Equal(t, link, *task.CompletionLink)

	// a later edit keeps the first completion time
	env.Engine.Now = func() time.Time { return epoch.Add(48 * time.Hour) }
	task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: tasks[0].ID, Status: &done})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", *task.CompletedAt)

	bad := "archived"
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: tasks[0].ID, Status: &bad})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestClientOverview(t *testing.T) {
	env := newTestEnv(t)
	s, tasks, agent := distributionFixture(t, env)
	_, err := env.Engine.Distribute(env.Ctx, engine.DistributeOptions{
		ClientID:    s.Client.ID,
		Assignments: []engine.TaskAgent{{TaskID: tasks[0].ID, AgentID: agent.ID}},
	})
	require.NoError(t, err)

	ov, err := env.Engine.ClientOverview(env.Ctx, s.Client.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", ov.Client.Name)
	require.Len(t, ov.Team, 1)
	assert.Equal(t, 6, ov.Team[0].AssignedTasks)
	assert.Equal(t, 4, ov.TaskCounts[domain.TaskPending])
	assert.Len(t, ov.Assignments, 1)

	_, err = env.Engine.ClientOverview(env.Ctx, "nope")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestLoginAndSessionExpiry(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "ava", "agent")

	_, _, err := env.Engine.Login(env.Ctx, "ava@agency.test", "wrong-password")
	require.Error(t, err)

	s, got, err := env.Engine.Login(env.Ctx, "ava@agency.test", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "2024-01-08T00:00:00Z", s.ExpiresAt)

	who, _, err := env.Engine.SessionUser(env.Ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, who.ID)

	env.Engine.Now = func() time.Time { return epoch.Add(169 * time.Hour) }
	_, _, err = env.Engine.SessionUser(env.Ctx, s.Token)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	_, err = env.Engine.Repo.GetSession(env.Ctx, s.Token)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, _, err = env.Engine.SessionUser(env.Ctx, "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestCreateUserResolvesRole(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "mia", "manager")
	require.NotNil(t, u.RoleID)

	ok, err := env.Engine.Auth.HasPermission(env.Ctx, u.ID, "task.distribute")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.Engine.Auth.HasPermission(env.Ctx, u.ID, "rbac.manage")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Name: "x", Email: "x@agency.test", Password: "correct-horse", RoleName: "wizard"})
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Name: "m2", Email: "mia@agency.test", Password: "correct-horse"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Name: "s", Email: "s@agency.test", Password: "short"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRecentActivityCapsAtConfiguredLimit(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 23; i++ {
		_, err := env.Engine.CreatePackage(env.Ctx, engine.PackageInput{Name: fmt.Sprintf("P%02d", i)}, "")
		require.NoError(t, err)
	}
	logs, err := env.Engine.RecentActivity(env.Ctx, repo.ActivityFilters{})
	require.NoError(t, err)
	require.Len(t, logs, 20)
	assert.Equal(t, "P22", logs[0].Details["name"])
	assert.Equal(t, "P03", logs[19].Details["name"])
}
