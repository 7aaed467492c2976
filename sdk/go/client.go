package synclinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Syncline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Status        string `json:"status"`
	Progress      *int   `json:"progress,omitempty"`
	CustomerID    string `json:"customer_id,omitempty"`
	HaloTicketID  string `json:"halopsa_ticket_id,omitempty"`
	HaloTicketURL string `json:"halopsa_ticket_url,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// Task represents the API task model.
type Task struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	AssignedName string `json:"assigned_name,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Ticket represents a HaloPSA ticket as relayed by the API.
type Ticket struct {
	ID       int    `json:"id"`
	Summary  string `json:"summary"`
	Details  string `json:"details"`
	StatusID int    `json:"status_id"`
	ClientID int    `json:"client_id"`
}

// Action represents a HaloPSA ticket action.
type Action struct {
	ID             int    `json:"id"`
	TicketID       int    `json:"ticket_id"`
	Note           string `json:"note"`
	Outcome        string `json:"outcome"`
	HiddenFromUser bool   `json:"hiddenfromuser"`
	Who            string `json:"who,omitempty"`
	DateTime       string `json:"datetime,omitempty"`
}

// AuditEntry represents an audit log row.
type AuditEntry struct {
	ID             string `json:"id"`
	Action         string `json:"action"`
	ActionCategory string `json:"action_category"`
	EntityType     string `json:"entity_type"`
	EntityID       string `json:"entity_id,omitempty"`
	Details        string `json:"details,omitempty"`
	ActorID        string `json:"actor_id"`
	CreatedAt      string `json:"created_at"`
}

// SyncRequest is the action-discriminated body of POST /sync.
type SyncRequest struct {
	Action        string  `json:"action"`
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

// SyncResult is the response of POST /sync.
type SyncResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Ticket  *Ticket  `json:"ticket,omitempty"`
	Actions []Action `json:"actions,omitempty"`
	Project *Project `json:"project,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedProjects wraps project list responses with cursors.
type PaginatedProjects struct {
	Items      []Project `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// PaginatedAuditEntries wraps audit list responses with cursors.
type PaginatedAuditEntries struct {
	Items      []AuditEntry `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name, description string) (Project, error) {
	body := map[string]any{
		"name":        name,
		"description": description,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "v0/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ProjectsPage returns a paginated project listing.
func (c *Client) ProjectsPage(ctx context.Context, limit int, cursor string) (PaginatedProjects, error) {
	endpoint := "v0/projects"
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedProjects
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateTask creates a task under a project.
func (c *Client) CreateTask(ctx context.Context, projectID, title string) (Task, error) {
	body := map[string]any{
		"project_id": projectID,
		"title":      title,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", body, &resp)
	return resp, err
}

// Sync runs one synchronization action.
func (c *Client) Sync(ctx context.Context, req SyncRequest) (SyncResult, error) {
	var resp SyncResult
	err := c.do(ctx, http.MethodPost, "v0/sync", req, &resp)
	return resp, err
}

// PushProject pushes project fields to the linked ticket.
func (c *Client) PushProject(ctx context.Context, projectID string) (SyncResult, error) {
	return c.Sync(ctx, SyncRequest{Action: "pushProjectUpdate", ProjectID: projectID})
}

// PushTask posts a task as a hidden note on the parent ticket.
func (c *Client) PushTask(ctx context.Context, taskID string) (SyncResult, error) {
	return c.Sync(ctx, SyncRequest{Action: "pushTaskUpdate", TaskID: taskID})
}

// PullTicket pulls ticket fields into the linked project.
func (c *Client) PullTicket(ctx context.Context, ticketID int) (SyncResult, error) {
	return c.Sync(ctx, SyncRequest{Action: "pullTicketUpdate", TicketID: ticketID})
}

// FullSync fetches the linked ticket and its actions without writing anything.
func (c *Client) FullSync(ctx context.Context, projectID string) (SyncResult, error) {
	return c.Sync(ctx, SyncRequest{Action: "fullSync", ProjectID: projectID})
}

// LinkTicket links a project to an existing ticket.
func (c *Client) LinkTicket(ctx context.Context, projectID string, ticketID int) (SyncResult, error) {
	return c.Sync(ctx, SyncRequest{Action: "link", ProjectID: projectID, TicketID: ticketID})
}

// UnlinkTicket clears a project's ticket link.
func (c *Client) UnlinkTicket(ctx context.Context, projectID string) (SyncResult, error) {
	return c.Sync(ctx, SyncRequest{Action: "unlink", ProjectID: projectID})
}

// AddNote adds a note to a ticket. Pass nil for isPrivate to keep the
// default (hidden from the end user).
func (c *Client) AddNote(ctx context.Context, ticketID int, note string, isPrivate *bool) (SyncResult, error) {
	return c.Sync(ctx, SyncRequest{Action: "addNote", TicketID: ticketID, Note: note, NoteIsPrivate: isPrivate})
}

// AuditPage returns a paginated audit log listing.
func (c *Client) AuditPage(ctx context.Context, limit int, cursor string) (PaginatedAuditEntries, error) {
	endpoint := "v0/audit"
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedAuditEntries
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
