package domain

const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskOverdue    = "overdue"
	TaskCancelled  = "cancelled"
)

// TaskStatuses lists every accepted task status. Transitions between them are not enforced.
var TaskStatuses = []string{TaskPending, TaskInProgress, TaskCompleted, TaskOverdue, TaskCancelled}

const (
	AssetSocial = "social"
	AssetWeb2   = "web2"
	AssetOther  = "other"
)

const (
	ActionTaskAssigned = "task_assigned"
	NotifyTaskAssigned = "task_assigned"
)

type Package struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Price       *float64   `json:"price,omitempty"`
	CreatedAt   string     `json:"createdAt" format:"date-time"`
	UpdatedAt   string     `json:"updatedAt" format:"date-time"`
	Templates   []Template `json:"templates,omitempty"`
}

type Template struct {
	ID          string               `json:"id"`
	PackageID   string               `json:"packageId"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Status      string               `json:"status" enum:"active,archived"`
	CreatedAt   string               `json:"createdAt" format:"date-time"`
	UpdatedAt   string               `json:"updatedAt" format:"date-time"`
	SiteAssets  []TemplateSiteAsset  `json:"siteAssets,omitempty"`
	TeamMembers []TemplateTeamMember `json:"teamMembers,omitempty"`
}

type TemplateSiteAsset struct {
	ID                          string `json:"id"`
	TemplateID                  string `json:"templateId"`
	Type                        string `json:"type" enum:"social,web2,other"`
	Name                        string `json:"name"`
	URL                         string `json:"url,omitempty"`
	Description                 string `json:"description,omitempty"`
	DefaultPostingFrequency     int    `json:"defaultPostingFrequency"`
	DefaultIdealDurationMinutes *int   `json:"defaultIdealDurationMinutes,omitempty"`
	CreatedAt                   string `json:"createdAt" format:"date-time"`
}

type TemplateTeamMember struct {
	TemplateID string  `json:"templateId"`
	AgentID    string  `json:"agentId"`
	Role       string  `json:"role"`
	TeamID     *string `json:"teamId,omitempty"`
}

type Client struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Company     string       `json:"company,omitempty"`
	Email       string       `json:"email,omitempty"`
	PackageID   *string      `json:"packageId,omitempty"`
	Status      string       `json:"status" enum:"active,inactive,onboarding"`
	CreatedAt   string       `json:"createdAt" format:"date-time"`
	UpdatedAt   string       `json:"updatedAt" format:"date-time"`
	SocialLinks []SocialLink `json:"socialLinks,omitempty"`
}

type SocialLink struct {
	ID        string `json:"id"`
	ClientID  string `json:"clientId"`
	Platform  string `json:"platform"`
	URL       string `json:"url"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

type Assignment struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"clientId"`
	TemplateID *string   `json:"templateId,omitempty"`
	Status     string    `json:"status" enum:"pending,active,in_progress,completed,cancelled"`
	AssignedAt string    `json:"assignedAt" format:"date-time"`
	CreatedAt  string    `json:"createdAt" format:"date-time"`
	UpdatedAt  string    `json:"updatedAt" format:"date-time"`
	Template   *Template `json:"template,omitempty"`
	Tasks      []Task    `json:"tasks,omitempty"`
}

type TaskCategory struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt" format:"date-time"`
}

type Task struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	Description           string  `json:"description,omitempty"`
	ClientID              string  `json:"clientId"`
	AssignmentID          *string `json:"assignmentId,omitempty"`
	TemplateSiteAssetID   *string `json:"templateSiteAssetId,omitempty"`
	CategoryID            *string `json:"categoryId,omitempty"`
	AssignedToID          *string `json:"assignedToId,omitempty"`
	Status                string  `json:"status" enum:"pending,in_progress,completed,overdue,cancelled"`
	Priority              string  `json:"priority" enum:"low,medium,high"`
	DueDate               *string `json:"dueDate,omitempty" format:"date-time"`
	IdealDurationMinutes  *int    `json:"idealDurationMinutes,omitempty"`
	ActualDurationMinutes *int    `json:"actualDurationMinutes,omitempty"`
	PerformanceRating     *string `json:"performanceRating,omitempty" enum:"excellent,good,average,poor"`
	CompletionLink        *string `json:"completionLink,omitempty"`
	CompletedAt           *string `json:"completedAt,omitempty" format:"date-time"`
	CreatedAt             string  `json:"createdAt" format:"date-time"`
	UpdatedAt             string  `json:"updatedAt" format:"date-time"`
}

// ClientTeamMember carries per (client, agent) workload counters. They are only ever
// incremented and are not reconciled against task rows.
type ClientTeamMember struct {
	ClientID       string `json:"clientId"`
	AgentID        string `json:"agentId"`
	AgentName      string `json:"agentName,omitempty"`
	Role           string `json:"role"`
	AssignedDate   string `json:"assignedDate" format:"date-time"`
	AssignedTasks  int    `json:"assignedTasks"`
	CompletedTasks int    `json:"completedTasks"`
	LateTasks      int    `json:"lateTasks"`
	IsActive       bool   `json:"isActive"`
}

type ActivityLog struct {
	ID         int64          `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	UserID     string         `json:"userId,omitempty"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  string         `json:"timestamp" format:"date-time"`
	UserName   string         `json:"userName,omitempty"`
	UserEmail  string         `json:"userEmail,omitempty"`
}

type Notification struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	TaskID    *string `json:"taskId,omitempty"`
	IsRead    bool    `json:"isRead"`
	CreatedAt string  `json:"createdAt" format:"date-time"`
}

type User struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	PasswordHash string  `json:"-"`
	RoleID       *string `json:"roleId,omitempty"`
	RoleName     string  `json:"roleName,omitempty"`
	Status       string  `json:"status" enum:"active,disabled"`
	CreatedAt    string  `json:"createdAt" format:"date-time"`
	UpdatedAt    string  `json:"updatedAt" format:"date-time"`
}

type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

type Permission struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Session struct {
	Token     string `json:"-"`
	UserID    string `json:"userId"`
	ExpiresAt string `json:"expiresAt" format:"date-time"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}
