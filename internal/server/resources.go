package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"syncline/internal/domain"
	"syncline/internal/repo"
)

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func registerProjects(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "name is required", nil)
		}
		now := nowRFC3339()
		p := domain.Project{
			ID:          stringOrEmpty(input.Body.ID),
			Name:        input.Body.Name,
			Description: stringOrEmpty(input.Body.Description),
			Status:      "planning",
			Progress:    input.Body.Progress,
			CustomerID:  input.Body.CustomerID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if input.Body.Status != nil {
			p.Status = *input.Body.Status
		}
		if err := r.InsertProject(ctx, p); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status"`
		CustomerID string `query:"customer_id"`
		Linked     bool   `query:"linked"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedProjects `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := r.ListProjects(ctx, repo.ProjectFilters{
			Status:          input.Status,
			CustomerID:      input.CustomerID,
			LinkedOnly:      input.Linked,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedProjects{Items: []ProjectResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		resp.Items = mapProjects(items)
		return &struct {
			Body paginatedProjects `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := r.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}",
		Summary:     "Update project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		update := repo.ProjectUpdate{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			Progress:    input.Body.Progress,
			UpdatedAt:   nowRFC3339(),
		}
		if err := r.UpdateProject(ctx, input.ID, update); err != nil {
			return nil, handleError(err)
		}
		p, err := r.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := r.DeleteProject(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "title is required", nil)
		}
		if input.Body.ProjectID == "" {
			return nil, newAPIError(http.StatusBadRequest, "project_id is required", nil)
		}
		if _, err := r.GetProject(ctx, input.Body.ProjectID); err != nil {
			return nil, handleError(err)
		}
		now := nowRFC3339()
		t := domain.Task{
			ID:           stringOrEmpty(input.Body.ID),
			ProjectID:    input.Body.ProjectID,
			Title:        input.Body.Title,
			Description:  stringOrEmpty(input.Body.Description),
			Status:       "open",
			AssignedName: stringOrEmpty(input.Body.AssignedName),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if input.Body.Status != nil {
			t.Status = *input.Body.Status
		}
		if err := r.InsertTask(ctx, t); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		Status    string `query:"status"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := r.ListTasks(ctx, repo.TaskFilters{
			ProjectID:       input.ProjectID,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTasks{Items: []TaskResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		resp.Items = mapTasks(items)
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := r.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		update := repo.TaskUpdate{
			Title:        input.Body.Title,
			Description:  input.Body.Description,
			Status:       input.Body.Status,
			AssignedName: input.Body.AssignedName,
			UpdatedAt:    nowRFC3339(),
		}
		if err := r.UpdateTask(ctx, input.ID, update); err != nil {
			return nil, handleError(err)
		}
		t, err := r.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := r.DeleteTask(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerCustomers(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-customer",
		Method:        http.MethodPost,
		Path:          "/customers",
		Summary:       "Create customer",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateCustomerRequest `json:"body"`
	}) (*struct {
		Body CustomerResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "name is required", nil)
		}
		c := domain.Customer{
			ID:           stringOrEmpty(input.Body.ID),
			Name:         input.Body.Name,
			HaloClientID: input.Body.HaloClientID,
			CreatedAt:    nowRFC3339(),
		}
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if err := r.InsertCustomer(ctx, c); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CustomerResponse `json:"body"`
		}{Body: customerResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-customer",
		Method:      http.MethodGet,
		Path:        "/customers/{id}",
		Summary:     "Get customer",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body CustomerResponse `json:"body"`
	}, error) {
		c, err := r.GetCustomer(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CustomerResponse `json:"body"`
		}{Body: customerResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-customer-halo-client",
		Method:      http.MethodPut,
		Path:        "/customers/{id}/halopsa-client",
		Summary:     "Set customer's HaloPSA client id",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			HaloClientID string `json:"halopsa_client_id"`
		} `json:"body"`
	}) (*struct {
		Body CustomerResponse `json:"body"`
	}, error) {
		if err := r.SetCustomerHaloClientID(ctx, input.ID, input.Body.HaloClientID); err != nil {
			return nil, handleError(err)
		}
		c, err := r.GetCustomer(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CustomerResponse `json:"body"`
		}{Body: customerResponse(c)}, nil
	})
}

func registerAuditLog(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit-entries",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "List audit log entries",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Action     string `query:"action"`
		Category   string `query:"category"`
		EntityType string `query:"entity_type"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedAuditEntries `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := r.ListAuditEntries(ctx, repo.AuditFilters{
			Action:          input.Action,
			Category:        input.Category,
			EntityType:      input.EntityType,
			EntityID:        input.EntityID,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedAuditEntries{Items: []AuditEntryResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		for _, e := range items {
			resp.Items = append(resp.Items, auditEntryResponse(e))
		}
		return &struct {
			Body paginatedAuditEntries `json:"body"`
		}{Body: resp}, nil
	})
}

func registerIntegrationSettings(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "get-integration-settings",
		Method:      http.MethodGet,
		Path:        "/integration",
		Summary:     "Get HaloPSA integration settings",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body IntegrationSettingsResponse `json:"body"`
	}, error) {
		s, err := r.GetIntegrationSettings(ctx, repo.MainSettingKey)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntegrationSettingsResponse `json:"body"`
		}{Body: IntegrationSettingsResponse{
			HaloAuthURL: s.HaloAuthURL,
			HaloAPIURL:  s.HaloAPIURL,
			UpdatedAt:   s.UpdatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-integration-settings",
		Method:      http.MethodPut,
		Path:        "/integration",
		Summary:     "Set HaloPSA integration settings",
		Errors: []int{
			http.StatusBadRequest,
		},
	}, func(ctx context.Context, input *struct {
		Body IntegrationSettingsRequest `json:"body"`
	}) (*struct {
		Body IntegrationSettingsResponse `json:"body"`
	}, error) {
		if input.Body.HaloAuthURL == "" || input.Body.HaloAPIURL == "" {
			return nil, newAPIError(http.StatusBadRequest, "halopsa_auth_url and halopsa_api_url are required", nil)
		}
		s := domain.IntegrationSettings{
			SettingKey:  repo.MainSettingKey,
			HaloAuthURL: input.Body.HaloAuthURL,
			HaloAPIURL:  input.Body.HaloAPIURL,
			UpdatedAt:   nowRFC3339(),
		}
		if err := r.UpsertIntegrationSettings(ctx, s); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntegrationSettingsResponse `json:"body"`
		}{Body: IntegrationSettingsResponse{
			HaloAuthURL: s.HaloAuthURL,
			HaloAPIURL:  s.HaloAPIURL,
			UpdatedAt:   s.UpdatedAt,
		}}, nil
	})
}
