package domain

type Project struct {
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

// Linked reports whether the project is joined to an external ticket.
func (p Project) Linked() bool {
	return p.HaloTicketID != nil && *p.HaloTicketID != ""
}

type Task struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status"`
	AssignedName string `json:"assigned_name,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type Customer struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	HaloClientID *string `json:"halopsa_client_id,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

// IntegrationSettings is the singleton row (setting_key="main") holding the
// ticketing provider base URLs entered by an admin.
type IntegrationSettings struct {
	SettingKey  string `json:"setting_key"`
	HaloAuthURL string `json:"halopsa_auth_url"`
	HaloAPIURL  string `json:"halopsa_api_url"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// AuditLogEntry records one synchronization attempt. Entries are append-only;
// nothing in this subsystem updates or deletes them.
type AuditLogEntry struct {
	ID             string `json:"id"`
	Action         string `json:"action"`
	ActionCategory string `json:"action_category"`
	EntityType     string `json:"entity_type"`
	EntityID       string `json:"entity_id,omitempty"`
	Details        string `json:"details_json,omitempty"`
	ActorID        string `json:"actor_id"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
