package sync

import (
	"context"
	"errors"
	"strconv"

	"syncline/internal/domain"
	"syncline/internal/halo"
	"syncline/internal/repo"
)

// CreateTicketInput carries the fields for creating and linking a new ticket.
// ClientID pins the provider client directly; otherwise ClientName (or the
// project's customer) feeds the resolution chain.
type CreateTicketInput struct {
	ProjectID  string
	Summary    string
	Details    string
	ClientID   int
	ClientName string
}

// CreateTicket creates an external ticket and, when a project id is given,
// links the project to it. Client attribution is best effort: failing to
// resolve a client creates the ticket without one.
func (s *Syncer) CreateTicket(ctx context.Context, in CreateTicketInput) (t halo.Ticket, err error) {
	if in.ProjectID != "" {
		s.locks.lock("project/" + in.ProjectID)
		defer s.locks.unlock("project/" + in.ProjectID)
	}
	defer func() { s.record(ctx, "create", "project", in.ProjectID, err, nil) }()

	if in.Summary == "" {
		return halo.Ticket{}, &ValidationError{Field: "summary"}
	}
	provider, err := s.Provider(ctx)
	if err != nil {
		return halo.Ticket{}, err
	}

	var project domain.Project
	if in.ProjectID != "" {
		project, err = s.Repo.GetProject(ctx, in.ProjectID)
		if err != nil {
			return halo.Ticket{}, err
		}
	}

	clientID := in.ClientID
	if clientID == 0 {
		name := in.ClientName
		if name == "" && project.CustomerID != nil {
			if customer, cerr := s.Repo.GetCustomer(ctx, *project.CustomerID); cerr == nil {
				name = customer.Name
			}
		}
		id, ok, rerr := s.Resolvers.Resolve(ctx, provider, project, name)
		if rerr != nil {
			return halo.Ticket{}, rerr
		}
		if ok {
			clientID = id
		}
	}

	tickets, err := provider.UpsertTickets(ctx, []map[string]any{halo.NewTicketPayload(in.Summary, in.Details, clientID)})
	if err != nil {
		return halo.Ticket{}, err
	}
	if len(tickets) == 0 {
		return halo.Ticket{}, &halo.APIError{Body: "provider returned no ticket for create"}
	}
	ticket := tickets[0]

	if in.ProjectID != "" {
		idStr := strconv.Itoa(ticket.ID)
		urlStr := provider.TicketURL(ticket.ID)
		update := repo.ProjectUpdate{TicketID: &idStr, TicketURL: &urlStr, UpdatedAt: s.now()}
		if err := s.Repo.UpdateProject(ctx, in.ProjectID, update); err != nil {
			return halo.Ticket{}, err
		}
	}
	return ticket, nil
}

// LinkTicket stores an existing ticket's id and URL on the project. The
// ticket must exist at link time; later external deletion is not reconciled.
func (s *Syncer) LinkTicket(ctx context.Context, projectID string, ticketID int) (t halo.Ticket, err error) {
	s.locks.lock("project/" + projectID)
	defer s.locks.unlock("project/" + projectID)
	defer func() { s.record(ctx, "link", "project", projectID, err, map[string]any{"ticket_id": ticketID}) }()

	if _, err = s.Repo.GetProject(ctx, projectID); err != nil {
		return halo.Ticket{}, err
	}
	provider, err := s.Provider(ctx)
	if err != nil {
		return halo.Ticket{}, err
	}
	ticket, err := provider.GetTicket(ctx, ticketID)
	if err != nil {
		return halo.Ticket{}, err
	}
	idStr := strconv.Itoa(ticket.ID)
	urlStr := provider.TicketURL(ticket.ID)
	update := repo.ProjectUpdate{TicketID: &idStr, TicketURL: &urlStr, UpdatedAt: s.now()}
	if err := s.Repo.UpdateProject(ctx, projectID, update); err != nil {
		return halo.Ticket{}, err
	}
	return ticket, nil
}

// UnlinkTicket clears the project's ticket id and URL. Purely local.
func (s *Syncer) UnlinkTicket(ctx context.Context, projectID string) (err error) {
	s.locks.lock("project/" + projectID)
	defer s.locks.unlock("project/" + projectID)
	defer func() { s.record(ctx, "unlink", "project", projectID, err, nil) }()

	if _, err = s.Repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	return s.Repo.UpdateProject(ctx, projectID, repo.ProjectUpdate{ClearTicket: true, UpdatedAt: s.now()})
}

// AddNoteInput carries the fields for posting a note on a ticket. A nil
// IsPrivate means private; notes are hidden from the end user unless the
// caller explicitly opts out.
type AddNoteInput struct {
	TicketID  int
	Note      string
	IsPrivate *bool
}

func (s *Syncer) AddNote(ctx context.Context, in AddNoteInput) (a halo.Action, err error) {
	key := strconv.Itoa(in.TicketID)
	defer func() { s.record(ctx, "addNote", "ticket", key, err, nil) }()

	if in.Note == "" {
		return halo.Action{}, &ValidationError{Field: "note"}
	}
	hidden := true
	if in.IsPrivate != nil {
		hidden = *in.IsPrivate
	}
	provider, err := s.Provider(ctx)
	if err != nil {
		return halo.Action{}, err
	}
	actions, err := provider.CreateActions(ctx, []halo.Action{{
		TicketID:       in.TicketID,
		Note:           in.Note,
		Outcome:        "note",
		HiddenFromUser: hidden,
	}})
	if err != nil {
		return halo.Action{}, err
	}
	if len(actions) == 0 {
		return halo.Action{}, &halo.APIError{Body: "provider returned no action for note"}
	}
	return actions[0], nil
}

// UpdateTicketInput carries a partial ticket update. Nil fields are left
// untouched; Status uses the internal vocabulary and is mapped before send.
type UpdateTicketInput struct {
	TicketID   int
	NewSummary *string
	NewDetails *string
	Status     *string
}

func (s *Syncer) UpdateTicket(ctx context.Context, in UpdateTicketInput) (t halo.Ticket, err error) {
	key := strconv.Itoa(in.TicketID)
	defer func() { s.record(ctx, "updateTicket", "ticket", key, err, nil) }()

	payload := map[string]any{"id": in.TicketID}
	if in.NewSummary != nil {
		payload["summary"] = *in.NewSummary
	}
	if in.NewDetails != nil {
		payload["details"] = *in.NewDetails
	}
	if in.Status != nil {
		if id, ok := halo.StatusID(*in.Status); ok {
			payload["status_id"] = id
		}
	}
	if len(payload) == 1 {
		return halo.Ticket{}, &ValidationError{Field: "newSummary, newDetails or status"}
	}
	provider, err := s.Provider(ctx)
	if err != nil {
		return halo.Ticket{}, err
	}
	tickets, err := provider.UpsertTickets(ctx, []map[string]any{payload})
	if err != nil {
		return halo.Ticket{}, err
	}
	if len(tickets) == 0 {
		return halo.Ticket{}, &halo.APIError{Body: "provider returned no ticket for update"}
	}
	return tickets[0], nil
}

// GetTicket reads a ticket from the provider.
func (s *Syncer) GetTicket(ctx context.Context, ticketID int) (t halo.Ticket, err error) {
	key := strconv.Itoa(ticketID)
	defer func() { s.record(ctx, "getTicket", "ticket", key, err, nil) }()

	provider, err := s.Provider(ctx)
	if err != nil {
		return halo.Ticket{}, err
	}
	return provider.GetTicket(ctx, ticketID)
}

// StatusHTTP maps an operation error to the HTTP status the API surfaces.
func StatusHTTP(err error) int {
	var (
		configErr     *halo.ConfigError
		authErr       *halo.AuthError
		apiErr        *halo.APIError
		validationErr *ValidationError
	)
	switch {
	case err == nil:
		return 200
	case errors.Is(err, repo.ErrNotFound):
		return 404
	case errors.Is(err, ErrNotLinked):
		return 400
	case errors.As(err, &validationErr):
		return 400
	case errors.As(err, &configErr):
		return 400
	case errors.As(err, &authErr):
		return 401
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == 404 {
			return 404
		}
		return 500
	default:
		return 500
	}
}
