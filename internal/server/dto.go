package server

import (
	"syncline/internal/domain"
	"syncline/internal/halo"
)

// Request payloads

type CreateProjectRequest struct {
	ID          *string `json:"id,omitempty"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"planning,in_progress,on_hold,completed"`
	Progress    *int    `json:"progress,omitempty" minimum:"0" maximum:"100"`
	CustomerID  *string `json:"customer_id,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"planning,in_progress,on_hold,completed"`
	Progress    *int    `json:"progress,omitempty" minimum:"0" maximum:"100"`
}

type CreateTaskRequest struct {
	ID           *string `json:"id,omitempty"`
	ProjectID    string  `json:"project_id"`
	Title        string  `json:"title"`
	Description  *string `json:"description,omitempty"`
	Status       *string `json:"status,omitempty"`
	AssignedName *string `json:"assigned_name,omitempty"`
}

type UpdateTaskRequest struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	Status       *string `json:"status,omitempty"`
	AssignedName *string `json:"assigned_name,omitempty"`
}

type CreateCustomerRequest struct {
	ID           *string `json:"id,omitempty"`
	Name         string  `json:"name"`
	HaloClientID *string `json:"halopsa_client_id,omitempty"`
}

type IntegrationSettingsRequest struct {
	HaloAuthURL string `json:"halopsa_auth_url"`
	HaloAPIURL  string `json:"halopsa_api_url"`
}

// SyncRequest is the action-discriminated body of POST /sync.
type SyncRequest struct {
	Action        string  `json:"action" enum:"pushProjectUpdate,pushTaskUpdate,pullTicketUpdate,fullSync,create,link,unlink,addNote,updateTicket,getTicket"`
	ProjectID     string  `json:"projectId,omitempty"`
	TaskID        string  `json:"taskId,omitempty"`
	TicketID      int     `json:"ticketId,omitempty"`
	Summary       string  `json:"summary,omitempty"`
	Details       string  `json:"details,omitempty"`
	ClientID      int     `json:"clientId,omitempty"`
	ClientName    string  `json:"clientName,omitempty"`
	Note          string  `json:"note,omitempty"`
	NoteIsPrivate *bool   `json:"noteIsPrivate,omitempty"`
	Status        *string `json:"status,omitempty"`
	NewSummary    *string `json:"newSummary,omitempty"`
	NewDetails    *string `json:"newDetails,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	Status        string  `json:"status" enum:"planning,in_progress,on_hold,completed"`
	Progress      *int    `json:"progress,omitempty"`
	CustomerID    *string `json:"customer_id,omitempty"`
	HaloTicketID  *string `json:"halopsa_ticket_id,omitempty"`
	HaloTicketURL *string `json:"halopsa_ticket_url,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type TaskResponse struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status"`
	AssignedName string `json:"assigned_name,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type CustomerResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	HaloClientID *string `json:"halopsa_client_id,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type AuditEntryResponse struct {
	ID             string `json:"id"`
	Action         string `json:"action"`
	ActionCategory string `json:"action_category"`
	EntityType     string `json:"entity_type"`
	EntityID       string `json:"entity_id,omitempty"`
	Details        string `json:"details,omitempty"`
	ActorID        string `json:"actor_id"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type IntegrationSettingsResponse struct {
	HaloAuthURL string `json:"halopsa_auth_url"`
	HaloAPIURL  string `json:"halopsa_api_url"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type TicketResponse struct {
	ID       int    `json:"id"`
	Summary  string `json:"summary"`
	Details  string `json:"details"`
	StatusID int    `json:"status_id"`
	ClientID int    `json:"client_id,omitempty"`
}

type ActionResponse struct {
	ID             int    `json:"id,omitempty"`
	TicketID       int    `json:"ticket_id"`
	Note           string `json:"note"`
	Outcome        string `json:"outcome,omitempty"`
	HiddenFromUser bool   `json:"hiddenfromuser"`
}

// SyncResponse is the success envelope of POST /sync. Fields beyond success
// and message depend on the action.
type SyncResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Ticket  *TicketResponse  `json:"ticket,omitempty"`
	Actions []ActionResponse `json:"actions,omitempty"`
	Project *ProjectResponse `json:"project,omitempty"`
}

type paginatedProjects struct {
	Items      []ProjectResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedAuditEntries struct {
	Items      []AuditEntryResponse `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Status:        p.Status,
		Progress:      p.Progress,
		CustomerID:    p.CustomerID,
		HaloTicketID:  p.HaloTicketID,
		HaloTicketURL: p.HaloTicketURL,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		ProjectID:    t.ProjectID,
		Title:        t.Title,
		Description:  t.Description,
		Status:       t.Status,
		AssignedName: t.AssignedName,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func customerResponse(c domain.Customer) CustomerResponse {
	return CustomerResponse{
		ID:           c.ID,
		Name:         c.Name,
		HaloClientID: c.HaloClientID,
		CreatedAt:    c.CreatedAt,
	}
}

func auditEntryResponse(e domain.AuditLogEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:             e.ID,
		Action:         e.Action,
		ActionCategory: e.ActionCategory,
		EntityType:     e.EntityType,
		EntityID:       e.EntityID,
		Details:        e.Details,
		ActorID:        e.ActorID,
		CreatedAt:      e.CreatedAt,
	}
}

func ticketResponse(t halo.Ticket) TicketResponse {
	return TicketResponse{
		ID:       t.ID,
		Summary:  t.Summary,
		Details:  t.Details,
		StatusID: t.StatusID,
		ClientID: t.ClientID,
	}
}

func actionResponses(actions []halo.Action) []ActionResponse {
	res := make([]ActionResponse, 0, len(actions))
	for _, a := range actions {
		res = append(res, ActionResponse{
			ID:             a.ID,
			TicketID:       a.TicketID,
			Note:           a.Note,
			Outcome:        a.Outcome,
			HiddenFromUser: a.HiddenFromUser,
		})
	}
	return res
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
