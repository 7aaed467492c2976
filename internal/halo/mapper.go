package halo

import (
	"fmt"
	"strings"

	"syncline/internal/domain"
)

// Status translation tables. The reverse table maps both external 1 (new)
// and 2 (in progress) to planning; the collapse is intentional and covered
// by tests, pending product clarification. Unmapped values on either side
// pass through with the status field omitted rather than failing the sync.
var statusToTicket = map[string]int{
	"planning":  1,
	"on_hold":   23,
	"completed": 9,
}

var statusFromTicket = map[int]string{
	1:  "planning",
	2:  "planning",
	23: "on_hold",
	9:  "completed",
}

// StatusID maps an internal project status to the provider's status_id.
func StatusID(status string) (int, bool) {
	id, ok := statusToTicket[status]
	return id, ok
}

// StatusFromID maps a provider status_id back to an internal status.
func StatusFromID(id int) (string, bool) {
	status, ok := statusFromTicket[id]
	return status, ok
}

// ProjectTicketPayload builds the partial upsert payload for an existing
// linked ticket.
func ProjectTicketPayload(p domain.Project, ticketID int) map[string]any {
	payload := map[string]any{
		"id":      ticketID,
		"summary": p.Name,
		"details": p.Description,
	}
	if id, ok := StatusID(p.Status); ok {
		payload["status_id"] = id
	}
	if p.Progress != nil {
		payload["customfields"] = []map[string]any{
			{"name": "progress", "value": *p.Progress},
		}
	}
	return payload
}

// NewTicketPayload builds the payload for creating a fresh ticket.
func NewTicketPayload(summary, details string, clientID int) map[string]any {
	payload := map[string]any{
		"summary": summary,
		"details": details,
	}
	if clientID > 0 {
		payload["client_id"] = clientID
	}
	return payload
}

// TaskNote composes the note body representing a task update. Tasks never
// get their own ticket; this text is their entire external footprint.
func TaskNote(t domain.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task update: %s\n", t.Title)
	fmt.Fprintf(&b, "Status: %s\n", t.Status)
	if t.AssignedName != "" {
		fmt.Fprintf(&b, "Assigned to: %s\n", t.AssignedName)
	}
	if t.Description != "" {
		b.WriteString("\n")
		b.WriteString(t.Description)
	}
	return b.String()
}

// TaskAction wraps the note into a hidden action on the parent ticket.
func TaskAction(ticketID int, t domain.Task) Action {
	return Action{
		TicketID:       ticketID,
		Note:           TaskNote(t),
		HiddenFromUser: true,
		Outcome:        "note",
	}
}

// ApplyTicket writes the mapped ticket fields onto a project. The project's
// status is left untouched when the external status has no internal mapping.
func ApplyTicket(t Ticket, p domain.Project) domain.Project {
	p.Name = t.Summary
	p.Description = t.Details
	if status, ok := StatusFromID(t.StatusID); ok {
		p.Status = status
	}
	return p
}
