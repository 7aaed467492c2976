// Package sync orchestrates synchronization between local projects and tasks
// and their HaloPSA counterparts. Each operation is one synchronous pass with
// no retries; resilience belongs to the caller. Every attempt leaves exactly
// one audit entry, written through a fire-and-forget queue.
package sync

import (
	"context"
	"errors"
	"strconv"
	"time"

	"syncline/internal/audit"
	"syncline/internal/domain"
	"syncline/internal/halo"
	"syncline/internal/repo"
)

// ErrNotLinked is returned when an operation needs a project's external
// ticket and none is linked.
var ErrNotLinked = errors.New("project is not linked to a halopsa ticket")

// ValidationError signals a missing required input field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "missing required field: " + e.Field
}

// Provider is the slice of the ticket API the orchestrator uses.
// halo.Client satisfies it.
type Provider interface {
	UpsertTickets(ctx context.Context, payloads []map[string]any) ([]halo.Ticket, error)
	GetTicket(ctx context.Context, id int) (halo.Ticket, error)
	ListActions(ctx context.Context, ticketID int) ([]halo.Action, error)
	CreateActions(ctx context.Context, actions []halo.Action) ([]halo.Action, error)
	SearchClients(ctx context.Context, search string) ([]halo.ClientRecord, error)
	TicketURL(id int) string
}

type Syncer struct {
	Repo  repo.Repo
	Audit *audit.Logger

	// Provider builds an authenticated ticket client from current settings.
	// Replaced wholesale in tests.
	Provider  func(ctx context.Context) (Provider, error)
	Resolvers halo.ResolverChain
	Now       func() time.Time

	locks keyedLocks
}

func New(r repo.Repo, auditLogger *audit.Logger, tokens *halo.TokenCache) *Syncer {
	return &Syncer{
		Repo:      r,
		Audit:     auditLogger,
		Provider:  providerFactory(r, tokens),
		Resolvers: halo.DefaultResolverChain(r),
		Now:       time.Now,
	}
}

func providerFactory(r repo.Repo, tokens *halo.TokenCache) func(ctx context.Context) (Provider, error) {
	return func(ctx context.Context) (Provider, error) {
		settings, err := r.GetIntegrationSettings(ctx, repo.MainSettingKey)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, &halo.ConfigError{Reason: "integration settings not set"}
		}
		if err != nil {
			return nil, err
		}
		creds, err := halo.ResolveCredentials(settings)
		if err != nil {
			return nil, err
		}
		return halo.NewClient(creds, tokens), nil
	}
}

type actorKey struct{}

// WithActor tags the context with the identity on whose behalf the operation
// runs. Audit entries carry it; untagged contexts audit as "system".
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func actorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

// record appends the single audit entry for one attempt. The outcome and any
// error message ride in the details payload.
func (s *Syncer) record(ctx context.Context, action, entityType, entityID string, opErr error, extra map[string]any) {
	if s.Audit == nil {
		return
	}
	details := map[string]any{"outcome": "success"}
	for k, v := range extra {
		details[k] = v
	}
	if opErr != nil {
		details["outcome"] = "failure"
		details["error"] = opErr.Error()
	}
	s.Audit.Record(domain.AuditLogEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorFrom(ctx),
		Details:    audit.Detail(details),
	})
}

// linkedTicketID parses the project's stored external ticket id.
func linkedTicketID(p domain.Project) (int, error) {
	if !p.Linked() {
		return 0, ErrNotLinked
	}
	id, err := strconv.Atoi(*p.HaloTicketID)
	if err != nil || id <= 0 {
		return 0, ErrNotLinked
	}
	return id, nil
}

func (s *Syncer) now() string {
	return s.Now().UTC().Format(time.RFC3339)
}

// PushProjectUpdate maps the project onto its linked ticket and upserts it.
// Projects without a linked ticket fail before any external call is made.
func (s *Syncer) PushProjectUpdate(ctx context.Context, projectID string) (err error) {
	s.locks.lock("project/" + projectID)
	defer s.locks.unlock("project/" + projectID)
	defer func() { s.record(ctx, "pushProjectUpdate", "project", projectID, err, nil) }()

	project, err := s.Repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	ticketID, err := linkedTicketID(project)
	if err != nil {
		return err
	}
	provider, err := s.Provider(ctx)
	if err != nil {
		return err
	}
	_, err = provider.UpsertTickets(ctx, []map[string]any{halo.ProjectTicketPayload(project, ticketID)})
	return err
}

// PushTaskUpdate posts the task as a hidden note on the parent project's
// ticket.
func (s *Syncer) PushTaskUpdate(ctx context.Context, taskID string) (err error) {
	s.locks.lock("task/" + taskID)
	defer s.locks.unlock("task/" + taskID)
	defer func() { s.record(ctx, "pushTaskUpdate", "task", taskID, err, nil) }()

	task, err := s.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	project, err := s.Repo.GetProject(ctx, task.ProjectID)
	if err != nil {
		return err
	}
	ticketID, err := linkedTicketID(project)
	if err != nil {
		return err
	}
	provider, err := s.Provider(ctx)
	if err != nil {
		return err
	}
	_, err = provider.CreateActions(ctx, []halo.Action{halo.TaskAction(ticketID, task)})
	return err
}

// PullTicketUpdate fetches the ticket and writes its mapped fields onto the
// linked project.
func (s *Syncer) PullTicketUpdate(ctx context.Context, ticketID int) (p domain.Project, err error) {
	key := strconv.Itoa(ticketID)
	defer func() { s.record(ctx, "pullTicketUpdate", "ticket", key, err, nil) }()

	project, err := s.Repo.GetProjectByTicketID(ctx, key)
	if err != nil {
		return domain.Project{}, err
	}
	s.locks.lock("project/" + project.ID)
	defer s.locks.unlock("project/" + project.ID)

	provider, err := s.Provider(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	ticket, err := provider.GetTicket(ctx, ticketID)
	if err != nil {
		return domain.Project{}, err
	}
	mapped := halo.ApplyTicket(ticket, project)
	update := repo.ProjectUpdate{
		Name:        &mapped.Name,
		Description: &mapped.Description,
		UpdatedAt:   s.now(),
	}
	if mapped.Status != project.Status {
		update.Status = &mapped.Status
	}
	if err := s.Repo.UpdateProject(ctx, project.ID, update); err != nil {
		return domain.Project{}, err
	}
	return s.Repo.GetProject(ctx, project.ID)
}

// FullSyncResult is the read-only snapshot returned by FullSync.
type FullSyncResult struct {
	Ticket  halo.Ticket
	Actions []halo.Action
}

// FullSync fetches the linked ticket and its actions without mutating local
// state. A failed actions fetch degrades to an empty list.
func (s *Syncer) FullSync(ctx context.Context, projectID string) (res FullSyncResult, err error) {
	defer func() { s.record(ctx, "fullSync", "project", projectID, err, nil) }()

	project, err := s.Repo.GetProject(ctx, projectID)
	if err != nil {
		return FullSyncResult{}, err
	}
	ticketID, err := linkedTicketID(project)
	if err != nil {
		return FullSyncResult{}, err
	}
	provider, err := s.Provider(ctx)
	if err != nil {
		return FullSyncResult{}, err
	}
	ticket, err := provider.GetTicket(ctx, ticketID)
	if err != nil {
		return FullSyncResult{}, err
	}
	actions, actionsErr := provider.ListActions(ctx, ticketID)
	if actionsErr != nil {
		actions = []halo.Action{}
	}
	return FullSyncResult{Ticket: ticket, Actions: actions}, nil
}
