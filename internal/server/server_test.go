package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"syncline/internal/audit"
	"syncline/internal/db"
	"syncline/internal/domain"
	"syncline/internal/halo"
	"syncline/internal/migrate"
	"syncline/internal/repo"
	syncer "syncline/internal/sync"
)

const testJWTSecret = "test-secret"

// fakeHaloServer emulates the ticketing provider: token grants plus the
// Tickets, Actions and Client endpoints.
type fakeHaloServer struct {
	*httptest.Server
	grants  int
	tickets map[int]map[string]any
	actions []map[string]any
	nextID  int
}

func newFakeHaloServer(t *testing.T) *fakeHaloServer {
	t.Helper()
	f := &fakeHaloServer{tickets: map[int]map[string]any{}, nextID: 100}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		f.grants++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok", "token_type": "Bearer", "expires_in": 3600,
		})
	})
	mux.HandleFunc("/api/Tickets", func(w http.ResponseWriter, r *http.Request) {
		var payloads []map[string]any
		json.NewDecoder(r.Body).Decode(&payloads)
		var out []map[string]any
		for _, p := range payloads {
			var id int
			if v, ok := p["id"].(float64); ok {
				id = int(v)
			} else {
				id = f.nextID
				f.nextID++
			}
			tk := f.tickets[id]
			if tk == nil {
				tk = map[string]any{"id": id}
			}
			for k, v := range p {
				tk[k] = v
			}
			tk["id"] = id
			f.tickets[id] = tk
			out = append(out, tk)
		}
		json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/api/Tickets/", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/api/Tickets/"))
		tk, ok := f.tickets[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"no such ticket"}`))
			return
		}
		json.NewEncoder(w).Encode(tk)
	})
	mux.HandleFunc("/api/Actions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var in []map[string]any
			json.NewDecoder(r.Body).Decode(&in)
			for i := range in {
				in[i]["id"] = len(f.actions) + 1
				f.actions = append(f.actions, in[i])
			}
			json.NewEncoder(w).Encode(in)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"actions": f.actions})
	})
	mux.HandleFunc("/api/Client", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"clients": []map[string]any{
			{"id": 5, "name": "Acme Corp"},
		}})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

type testServer struct {
	URL    string
	Repo   repo.Repo
	Halo   *fakeHaloServer
	client *http.Client
	logger *audit.Logger
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	t.Setenv(halo.EnvClientID, "cid")
	t.Setenv(halo.EnvClientSecret, "secret")
	t.Setenv(halo.EnvTenant, "acme")

	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	fh := newFakeHaloServer(t)
	ctx := context.Background()
	if err := r.SeedIntegrationSettings(ctx, fh.URL, fh.URL); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	logger := audit.New(r, log.New(io.Discard, "", 0), 64)
	s := syncer.New(r, logger, halo.NewTokenCache())
	handler, err := New(Config{
		Repo:   r,
		Syncer: s,
		Auth: AuthConfig{
			JWTSecret:              testJWTSecret,
			AllowLegacyActorHeader: true,
			Logger:                 log.New(io.Discard, "", 0),
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	})
	return &testServer{
		URL:    "http://" + ln.Addr().String(),
		Repo:   r,
		Halo:   fh,
		client: &http.Client{},
		logger: logger,
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if _, ok := headers["Authorization"]; !ok {
		if _, ok := headers["X-Api-Key"]; !ok {
			req.Header.Set("X-Actor-Id", "tester")
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func signJWT(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return signed
}

func createProject(t *testing.T, srv *testServer, body map[string]any) ProjectResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", body, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, data)
	}
	var p ProjectResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p
}

func TestHealthNoAuth(t *testing.T) {
	srv := newTestServer(t)
	res, err := http.Get(srv.URL + "/v0/health")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v0/projects", nil)
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", res.StatusCode)
	}
	var envelope map[string]any
	json.NewDecoder(res.Body).Decode(&envelope)
	if envelope["error"] != "authentication required" {
		t.Fatalf("envelope = %v", envelope)
	}
}

func TestJWTAuth(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{
		"Authorization": "Bearer " + signJWT(t, "agent-1"),
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token status %d, want 401", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	key := "plain-secret-key"
	err := srv.Repo.InsertAPIKey(context.Background(), domainAPIKey("key-1", "agent-2", key))
	if err != nil {
		t.Fatalf("insert key: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{
		"X-Api-Key": key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{
		"X-Api-Key": "wrong",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong key status %d", res.StatusCode)
	}
}

func TestProjectCRUD(t *testing.T) {
	srv := newTestServer(t)
	p := createProject(t, srv, map[string]any{"name": "Rollout", "description": "phase one"})
	if p.ID == "" || p.Status != "planning" {
		t.Fatalf("project = %+v", p)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/projects/"+p.ID, map[string]any{
		"status": "on_hold",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, data)
	}
	var updated ProjectResponse
	json.Unmarshal(data, &updated)
	if updated.Status != "on_hold" {
		t.Fatalf("status = %q", updated.Status)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/ghost", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing project status %d: %s", res.StatusCode, data)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/projects/"+p.ID, nil, nil)
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", res.StatusCode)
	}
}

func TestSyncCreateLinkPushPull(t *testing.T) {
	srv := newTestServer(t)
	p := createProject(t, srv, map[string]any{"name": "Rollout", "status": "on_hold"})

	// create a ticket and link the project in one action
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sync", map[string]any{
		"action":    "create",
		"projectId": p.ID,
		"summary":   "Rollout work",
		"details":   "initial",
		"clientId":  5,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create status %d: %s", res.StatusCode, data)
	}
	var created SyncResponse
	json.Unmarshal(data, &created)
	if !created.Success || created.Ticket == nil || created.Ticket.ID == 0 {
		t.Fatalf("response = %+v", created)
	}
	ticketID := created.Ticket.ID

	// the link landed on the project
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/"+p.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get project: %d", res.StatusCode)
	}
	var linked ProjectResponse
	json.Unmarshal(data, &linked)
	if linked.HaloTicketID == nil || *linked.HaloTicketID != strconv.Itoa(ticketID) {
		t.Fatalf("ticket id = %v", linked.HaloTicketID)
	}

	// push the project state
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sync", map[string]any{
		"action":    "pushProjectUpdate",
		"projectId": p.ID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("push status %d: %s", res.StatusCode, data)
	}
	if got := srv.Halo.tickets[ticketID]["status_id"]; got != float64(23) {
		t.Fatalf("pushed status_id = %v, want 23 for on_hold", got)
	}

	// mutate externally, then pull
	srv.Halo.tickets[ticketID]["summary"] = "Renamed remotely"
	srv.Halo.tickets[ticketID]["status_id"] = float64(9)
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sync", map[string]any{
		"action":   "pullTicketUpdate",
		"ticketId": ticketID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pull status %d: %s", res.StatusCode, data)
	}
	var pulled SyncResponse
	json.Unmarshal(data, &pulled)
	if pulled.Project == nil || pulled.Project.Name != "Renamed remotely" || pulled.Project.Status != "completed" {
		t.Fatalf("pulled = %+v", pulled.Project)
	}
}

func TestSyncTaskNoteAndFullSync(t *testing.T) {
	srv := newTestServer(t)
	p := createProject(t, srv, map[string]any{"name": "P"})

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sync", map[string]any{
		"action": "create", "projectId": p.ID, "summary": "s",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create: %d %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"project_id": p.ID, "title": "Wire alarm", "assigned_name": "Sam",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, data)
	}
	var task TaskResponse
	json.Unmarshal(data, &task)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sync", map[string]any{
		"action": "pushTaskUpdate", "taskId": task.ID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("push task: %d %s", res.StatusCode, data)
	}
	if len(srv.Halo.actions) != 1 {
		t.Fatalf("actions = %+v", srv.Halo.actions)
	}
	if srv.Halo.actions[0]["hiddenfromuser"] != true {
		t.Fatalf("task note must be hidden: %+v", srv.Halo.actions[0])
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sync", map[string]any{
		"action": "fullSync", "projectId": p.ID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("full sync: %d %s", res.StatusCode, data)
	}
	var full SyncResponse
	json.Unmarshal(data, &full)
	if full.Ticket == nil || len(full.Actions) != 1 {
		t.Fatalf("full = %+v", full)
	}
}

func TestSyncErrorEnvelopes(t *testing.T) {
	srv := newTestServer(t)
	p := createProject(t, srv, map[string]any{"name": "Loose"})

	// unlinked push -> 400
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sync", map[string]any{
		"action": "pushProjectUpdate", "projectId": p.ID,
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unlinked status %d: %s", res.StatusCode, data)
	}
	var envelope map[string]any
	json.Unmarshal(data, &envelope)
	if _, ok := envelope["error"].(string); !ok {
		t.Fatalf("envelope = %s", data)
	}

	// unknown project -> 404
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sync", map[string]any{
		"action": "pushProjectUpdate", "projectId": "ghost",
	}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing project status %d", res.StatusCode)
	}

	// missing discriminator field -> 400 with field detail
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sync", map[string]any{
		"action": "addNote",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("addNote without ticket status %d: %s", res.StatusCode, data)
	}

	// provider 404 passes through
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sync", map[string]any{
		"action": "getTicket", "ticketId": 9999,
	}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing ticket status %d", res.StatusCode)
	}
}

func TestIntegrationSettingsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/integration", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get settings: %d %s", res.StatusCode, data)
	}
	var settings IntegrationSettingsResponse
	json.Unmarshal(data, &settings)
	if settings.HaloAuthURL != srv.Halo.URL {
		t.Fatalf("auth url = %q", settings.HaloAuthURL)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/integration", map[string]any{
		"halopsa_auth_url": "https://new.halopsa.com/auth",
		"halopsa_api_url":  "https://new.halopsa.com/api",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put settings: %d %s", res.StatusCode, data)
	}
	json.Unmarshal(data, &settings)
	if settings.HaloAPIURL != "https://new.halopsa.com/api" {
		t.Fatalf("api url = %q", settings.HaloAPIURL)
	}
}

func TestAuditEndpoint(t *testing.T) {
	srv := newTestServer(t)
	p := createProject(t, srv, map[string]any{"name": "P"})
	doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sync", map[string]any{
		"action": "pushProjectUpdate", "projectId": p.ID,
	}, nil)
	// Audit writes are async; drain before reading.
	srv.logger.Close()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/audit?action=pushProjectUpdate", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("audit: %d %s", res.StatusCode, data)
	}
	var page paginatedAuditEntries
	json.Unmarshal(data, &page)
	if len(page.Items) != 1 {
		t.Fatalf("items = %+v", page.Items)
	}
	e := page.Items[0]
	if e.Action != "pushProjectUpdate" || e.EntityID != p.ID || !strings.Contains(e.Details, "failure") {
		t.Fatalf("entry = %+v", e)
	}
}

func TestAuditRecordsAuthenticatedActor(t *testing.T) {
	srv := newTestServer(t)
	p := createProject(t, srv, map[string]any{"name": "P"})

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sync", map[string]any{
		"action": "create", "projectId": p.ID, "summary": "s",
	}, map[string]string{"Authorization": "Bearer " + signJWT(t, "alice")})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create status %d: %s", res.StatusCode, data)
	}
	srv.logger.Close()

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/audit?action=create", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("audit: %d %s", res.StatusCode, data)
	}
	var page paginatedAuditEntries
	json.Unmarshal(data, &page)
	if len(page.Items) != 1 {
		t.Fatalf("items = %+v", page.Items)
	}
	if page.Items[0].ActorID != "alice" {
		t.Fatalf("actor = %q, want the JWT subject", page.Items[0].ActorID)
	}
}

func TestOpenAPIAndDocs(t *testing.T) {
	srv := newTestServer(t)
	res, err := http.Get(srv.URL + "/docs")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("docs status %d", res.StatusCode)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var spec map[string]any
	if err := json.Unmarshal(data, &spec); err != nil {
		t.Fatalf("spec: %v", err)
	}
	components, _ := spec["components"].(map[string]any)
	schemes, _ := components["securitySchemes"].(map[string]any)
	if schemes["bearerAuth"] == nil || schemes["apiKeyAuth"] == nil {
		t.Fatalf("security schemes missing: %v", schemes)
	}
}

func domainAPIKey(id, actor, plaintext string) domain.APIKey {
	return domain.APIKey{
		ID:      id,
		ActorID: actor,
		KeyHash: repo.HashAPIKey(plaintext),
	}
}
