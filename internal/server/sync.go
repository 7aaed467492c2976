package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"syncline/internal/halo"
	"syncline/internal/sync"
)

// registerSync exposes the single action-discriminated synchronization
// endpoint. Each action delegates to the orchestrator; the orchestrator owns
// auditing and locking.
func registerSync(api huma.API, s *sync.Syncer) {
	huma.Register(api, huma.Operation{
		OperationID: "sync",
		Method:      http.MethodPost,
		Path:        "/sync",
		Summary:     "Run a synchronization or ticket-management action",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SyncRequest `json:"body"`
	}) (*struct {
		Body SyncResponse `json:"body"`
	}, error) {
		if principal, ok := principalFromContext(ctx); ok {
			ctx = sync.WithActor(ctx, principal.ActorID)
		}
		resp, err := dispatchSync(ctx, s, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SyncResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func dispatchSync(ctx context.Context, s *sync.Syncer, req SyncRequest) (SyncResponse, error) {
	switch req.Action {
	case "pushProjectUpdate":
		if req.ProjectID == "" {
			return SyncResponse{}, &sync.ValidationError{Field: "projectId"}
		}
		if err := s.PushProjectUpdate(ctx, req.ProjectID); err != nil {
			return SyncResponse{}, err
		}
		return SyncResponse{Success: true, Message: "project pushed to ticket"}, nil

	case "pushTaskUpdate":
		if req.TaskID == "" {
			return SyncResponse{}, &sync.ValidationError{Field: "taskId"}
		}
		if err := s.PushTaskUpdate(ctx, req.TaskID); err != nil {
			return SyncResponse{}, err
		}
		return SyncResponse{Success: true, Message: "task posted as ticket note"}, nil

	case "pullTicketUpdate":
		if req.TicketID == 0 {
			return SyncResponse{}, &sync.ValidationError{Field: "ticketId"}
		}
		project, err := s.PullTicketUpdate(ctx, req.TicketID)
		if err != nil {
			return SyncResponse{}, err
		}
		pr := projectResponse(project)
		return SyncResponse{Success: true, Message: "ticket pulled into project", Project: &pr}, nil

	case "fullSync":
		if req.ProjectID == "" {
			return SyncResponse{}, &sync.ValidationError{Field: "projectId"}
		}
		res, err := s.FullSync(ctx, req.ProjectID)
		if err != nil {
			return SyncResponse{}, err
		}
		tr := ticketResponse(res.Ticket)
		return SyncResponse{
			Success: true,
			Message: fmt.Sprintf("fetched ticket %d with %d actions", res.Ticket.ID, len(res.Actions)),
			Ticket:  &tr,
			Actions: actionResponses(res.Actions),
		}, nil

	case "create":
		ticket, err := s.CreateTicket(ctx, sync.CreateTicketInput{
			ProjectID:  req.ProjectID,
			Summary:    req.Summary,
			Details:    req.Details,
			ClientID:   req.ClientID,
			ClientName: req.ClientName,
		})
		if err != nil {
			return SyncResponse{}, err
		}
		tr := ticketResponse(ticket)
		return SyncResponse{Success: true, Message: fmt.Sprintf("ticket %d created", ticket.ID), Ticket: &tr}, nil

	case "link":
		if req.ProjectID == "" {
			return SyncResponse{}, &sync.ValidationError{Field: "projectId"}
		}
		if req.TicketID == 0 {
			return SyncResponse{}, &sync.ValidationError{Field: "ticketId"}
		}
		ticket, err := s.LinkTicket(ctx, req.ProjectID, req.TicketID)
		if err != nil {
			return SyncResponse{}, err
		}
		tr := ticketResponse(ticket)
		return SyncResponse{Success: true, Message: fmt.Sprintf("project linked to ticket %d", ticket.ID), Ticket: &tr}, nil

	case "unlink":
		if req.ProjectID == "" {
			return SyncResponse{}, &sync.ValidationError{Field: "projectId"}
		}
		if err := s.UnlinkTicket(ctx, req.ProjectID); err != nil {
			return SyncResponse{}, err
		}
		return SyncResponse{Success: true, Message: "project unlinked"}, nil

	case "addNote":
		if req.TicketID == 0 {
			return SyncResponse{}, &sync.ValidationError{Field: "ticketId"}
		}
		action, err := s.AddNote(ctx, sync.AddNoteInput{
			TicketID:  req.TicketID,
			Note:      req.Note,
			IsPrivate: req.NoteIsPrivate,
		})
		if err != nil {
			return SyncResponse{}, err
		}
		return SyncResponse{Success: true, Message: "note added", Actions: actionResponses([]halo.Action{action})}, nil

	case "updateTicket":
		if req.TicketID == 0 {
			return SyncResponse{}, &sync.ValidationError{Field: "ticketId"}
		}
		ticket, err := s.UpdateTicket(ctx, sync.UpdateTicketInput{
			TicketID:   req.TicketID,
			NewSummary: req.NewSummary,
			NewDetails: req.NewDetails,
			Status:     req.Status,
		})
		if err != nil {
			return SyncResponse{}, err
		}
		tr := ticketResponse(ticket)
		return SyncResponse{Success: true, Message: "ticket updated", Ticket: &tr}, nil

	case "getTicket":
		if req.TicketID == 0 {
			return SyncResponse{}, &sync.ValidationError{Field: "ticketId"}
		}
		ticket, err := s.GetTicket(ctx, req.TicketID)
		if err != nil {
			return SyncResponse{}, err
		}
		tr := ticketResponse(ticket)
		return SyncResponse{Success: true, Message: "ticket fetched", Ticket: &tr}, nil

	default:
		return SyncResponse{}, &sync.ValidationError{Field: "action"}
	}
}
