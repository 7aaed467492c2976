package halo

import (
	"strings"
	"testing"

	"syncline/internal/domain"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status string
		id     int
		ok     bool
	}{
		{"planning", 1, true},
		{"on_hold", 23, true},
		{"completed", 9, true},
		{"in_progress", 0, false},
		{"bogus", 0, false},
	}
	for _, c := range cases {
		id, ok := StatusID(c.status)
		if id != c.id || ok != c.ok {
			t.Errorf("StatusID(%q) = (%d, %v), want (%d, %v)", c.status, id, ok, c.id, c.ok)
		}
	}
}

func TestStatusFromIDCollapsesInProgress(t *testing.T) {
	// Both external 1 (new) and 2 (in progress) map back to planning. The
	// round trip is lossy on purpose; pulling an in-progress ticket lands the
	// project in planning.
	for _, id := range []int{1, 2} {
		status, ok := StatusFromID(id)
		if !ok || status != "planning" {
			t.Fatalf("StatusFromID(%d) = (%q, %v), want planning", id, status, ok)
		}
	}
	if status, ok := StatusFromID(23); !ok || status != "on_hold" {
		t.Fatalf("StatusFromID(23) = (%q, %v)", status, ok)
	}
	if _, ok := StatusFromID(999); ok {
		t.Fatalf("expected no mapping for 999")
	}
}

func TestProjectTicketPayload(t *testing.T) {
	progress := 40
	p := domain.Project{
		Name:        "Rollout",
		Description: "Phase one",
		Status:      "on_hold",
		Progress:    &progress,
	}
	payload := ProjectTicketPayload(p, 42)
	if payload["id"] != 42 {
		t.Fatalf("id = %v", payload["id"])
	}
	if payload["summary"] != "Rollout" || payload["details"] != "Phase one" {
		t.Fatalf("summary/details = %v/%v", payload["summary"], payload["details"])
	}
	if payload["status_id"] != 23 {
		t.Fatalf("status_id = %v", payload["status_id"])
	}
	fields, ok := payload["customfields"].([]map[string]any)
	if !ok || len(fields) != 1 || fields[0]["name"] != "progress" || fields[0]["value"] != 40 {
		t.Fatalf("customfields = %v", payload["customfields"])
	}
}

func TestProjectTicketPayloadOmitsUnmappedStatus(t *testing.T) {
	p := domain.Project{Name: "x", Status: "in_progress"}
	payload := ProjectTicketPayload(p, 7)
	if _, present := payload["status_id"]; present {
		t.Fatalf("status_id should be omitted for unmapped status")
	}
	if _, present := payload["customfields"]; present {
		t.Fatalf("customfields should be omitted without progress")
	}
}

func TestNewTicketPayload(t *testing.T) {
	payload := NewTicketPayload("Summary", "Details", 12)
	if payload["client_id"] != 12 {
		t.Fatalf("client_id = %v", payload["client_id"])
	}
	payload = NewTicketPayload("Summary", "Details", 0)
	if _, present := payload["client_id"]; present {
		t.Fatalf("client_id should be omitted when unresolved")
	}
}

func TestTaskNote(t *testing.T) {
	note := TaskNote(domain.Task{
		Title:        "Wire alarm",
		Status:       "in_progress",
		AssignedName: "Sam",
		Description:  "Panel B",
	})
	want := "Task update: Wire alarm\nStatus: in_progress\nAssigned to: Sam\n\nPanel B"
	if note != want {
		t.Fatalf("note = %q, want %q", note, want)
	}

	bare := TaskNote(domain.Task{Title: "Wire alarm", Status: "open"})
	if strings.Contains(bare, "Assigned to") {
		t.Fatalf("assignee line should be omitted: %q", bare)
	}
	if strings.HasSuffix(bare, "\n\n") {
		t.Fatalf("trailing description block should be omitted: %q", bare)
	}
}

func TestTaskActionIsHiddenNote(t *testing.T) {
	a := TaskAction(42, domain.Task{Title: "t", Status: "open"})
	if a.TicketID != 42 || !a.HiddenFromUser || a.Outcome != "note" {
		t.Fatalf("action = %+v", a)
	}
}

func TestApplyTicket(t *testing.T) {
	p := domain.Project{Name: "old", Description: "old", Status: "completed"}
	p = ApplyTicket(Ticket{Summary: "new", Details: "fresh", StatusID: 2}, p)
	if p.Name != "new" || p.Description != "fresh" || p.Status != "planning" {
		t.Fatalf("project = %+v", p)
	}

	// Unmapped external status leaves the local status untouched.
	p = ApplyTicket(Ticket{Summary: "n2", Details: "d2", StatusID: 777}, p)
	if p.Status != "planning" {
		t.Fatalf("status changed on unmapped id: %q", p.Status)
	}
}
