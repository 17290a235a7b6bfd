package server

import (
	"agencyops/internal/domain"
	"agencyops/internal/engine"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type CreatePackageRequest struct {
	Name        string   `json:"name" minLength:"1"`
	Description string   `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
}

type UpdatePackageRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
}

type SiteAssetRequest struct {
	Type                        string `json:"type,omitempty" enum:"social,web2,other"`
	Name                        string `json:"name" minLength:"1"`
	URL                         string `json:"url,omitempty"`
	Description                 string `json:"description,omitempty"`
	DefaultPostingFrequency     int    `json:"defaultPostingFrequency,omitempty"`
	DefaultIdealDurationMinutes *int   `json:"defaultIdealDurationMinutes,omitempty"`
}

type TeamMemberRequest struct {
	AgentID string  `json:"agentId"`
	Role    string  `json:"role,omitempty"`
	TeamID  *string `json:"teamId,omitempty"`
}

type CreateTemplateRequest struct {
	PackageID   string              `json:"packageId"`
	Name        string              `json:"name" minLength:"1"`
	Description string              `json:"description,omitempty"`
	SiteAssets  []SiteAssetRequest  `json:"siteAssets,omitempty"`
	TeamMembers []TeamMemberRequest `json:"teamMembers,omitempty"`
}

type SetTeamRequest struct {
	TeamMembers []TeamMemberRequest `json:"teamMembers"`
}

type SocialLinkRequest struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

type CreateClientRequest struct {
	Name        string              `json:"name" minLength:"1"`
	Company     string              `json:"company,omitempty"`
	Email       string              `json:"email,omitempty"`
	PackageID   string              `json:"packageId,omitempty"`
	Status      string              `json:"status,omitempty" enum:"active,inactive,onboarding"`
	SocialLinks []SocialLinkRequest `json:"socialLinks,omitempty"`
}

type UpdateClientRequest struct {
	Name        *string             `json:"name,omitempty"`
	Company     *string             `json:"company,omitempty"`
	Email       *string             `json:"email,omitempty"`
	PackageID   *string             `json:"packageId,omitempty"`
	Status      *string             `json:"status,omitempty" enum:"active,inactive,onboarding"`
	SocialLinks []SocialLinkRequest `json:"socialLinks,omitempty"`
}

type CreateAssignmentRequest struct {
	ClientID   string   `json:"clientId"`
	TemplateID string   `json:"templateId,omitempty"`
	Status     string   `json:"status,omitempty" enum:"pending,active,in_progress,completed,cancelled"`
	AgentIDs   []string `json:"agentIds,omitempty"`
}

type DistributeRequest struct {
	ClientID    string             `json:"clientId"`
	Assignments []engine.TaskAgent `json:"assignments"`
}

type UpdateTaskRequest struct {
	Status                *string `json:"status,omitempty" enum:"pending,in_progress,completed,overdue,cancelled"`
	Priority              *string `json:"priority,omitempty" enum:"low,medium,high"`
	DueDate               *string `json:"dueDate,omitempty"`
	CategoryID            *string `json:"categoryId,omitempty"`
	ActualDurationMinutes *int    `json:"actualDurationMinutes,omitempty"`
	PerformanceRating     *string `json:"performanceRating,omitempty"`
	CompletionLink        *string `json:"completionLink,omitempty"`
}

type CreateCategoryRequest struct {
	Name        string `json:"name" minLength:"1"`
	Description string `json:"description,omitempty"`
}

type CreateRoleRequest struct {
	Name        string `json:"name" minLength:"1"`
	Description string `json:"description,omitempty"`
}

type GrantPermissionRequest struct {
	Permission string `json:"permission" minLength:"1"`
}

type CreatePermissionRequest struct {
	Name        string `json:"name" minLength:"1"`
	Description string `json:"description,omitempty"`
}

type SetRoleRequest struct {
	Role string `json:"role" minLength:"1"`
}

type CreateUserRequest struct {
	Name     string `json:"name" minLength:"1"`
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"8"`
	Role     string `json:"role,omitempty"`
}

// Responses

type MessageResponse struct {
	Message string `json:"message"`
}

type LoginResponse struct {
	User      domain.User `json:"user"`
	ExpiresAt string      `json:"expiresAt" format:"date-time"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt" format:"date-time"`
}

type MeResponse struct {
	User        domain.User `json:"user"`
	Permissions []string    `json:"permissions"`
}

func siteAssetInputs(in []SiteAssetRequest) []engine.SiteAssetInput {
	out := make([]engine.SiteAssetInput, 0, len(in))
	for _, a := range in {
		out = append(out, siteAssetInput(a))
	}
	return out
}

func siteAssetInput(a SiteAssetRequest) engine.SiteAssetInput {
	return engine.SiteAssetInput{
		Type:                        a.Type,
		Name:                        a.Name,
		URL:                         a.URL,
		Description:                 a.Description,
		DefaultPostingFrequency:     a.DefaultPostingFrequency,
		DefaultIdealDurationMinutes: a.DefaultIdealDurationMinutes,
	}
}

func teamMembers(in []TeamMemberRequest) []domain.TemplateTeamMember {
	out := make([]domain.TemplateTeamMember, 0, len(in))
	for _, m := range in {
		out = append(out, domain.TemplateTeamMember{AgentID: m.AgentID, Role: m.Role, TeamID: m.TeamID})
	}
	return out
}

func socialLinkInputs(in []SocialLinkRequest) []engine.SocialLinkInput {
	if in == nil {
		return nil
	}
	out := make([]engine.SocialLinkInput, 0, len(in))
	for _, l := range in {
		out = append(out, engine.SocialLinkInput{Platform: l.Platform, URL: l.URL})
	}
	return out
}

func nonNilSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
