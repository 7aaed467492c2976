package halo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Ticket is the subset of the provider's ticket resource the sync engine
// reads and writes.
type Ticket struct {
	ID       int    `json:"id"`
	Summary  string `json:"summary"`
	Details  string `json:"details"`
	StatusID int    `json:"status_id"`
	ClientID int    `json:"client_id,omitempty"`
}

// Action is a note or activity attached to a ticket.
type Action struct {
	ID             int    `json:"id,omitempty"`
	TicketID       int    `json:"ticket_id"`
	Note           string `json:"note"`
	Outcome        string `json:"outcome,omitempty"`
	HiddenFromUser bool   `json:"hiddenfromuser"`
	Who            string `json:"who,omitempty"`
	DateTime       string `json:"datetime,omitempty"`
}

// ClientRecord is a customer account on the provider side.
type ClientRecord struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type actionList struct {
	Actions []Action `json:"actions"`
}

type clientList struct {
	Clients []ClientRecord `json:"clients"`
}

// maxErrorBody caps how much of an error response gets carried in APIError.
const maxErrorBody = 4 << 10

// Client talks to one HaloPSA instance. A zero Client is not usable; build
// one with NewClient.
type Client struct {
	creds  Credentials
	tokens *TokenCache
	http   *http.Client
}

func NewClient(creds Credentials, tokens *TokenCache) *Client {
	return &Client{
		creds:  creds,
		tokens: tokens,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// SetHTTPClient overrides the transport, mainly for tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.http = hc
	c.tokens.HTTPClient = hc
}

// do performs one authenticated request. On 401 the cached token is dropped
// so the next call re-authenticates; the current call still fails, since the
// engine never retries.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	token, err := c.tokens.Get(ctx, c.creds)
	if err != nil {
		return err
	}

	u := c.creds.APIBaseURL + "/api" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate(c.creds)
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &AuthError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Body: "decode response: " + err.Error()}
	}
	return nil
}

// TicketURL builds the agent-facing URL for a ticket, stored alongside the
// ticket id when a project is linked.
func (c *Client) TicketURL(id int) string {
	return c.creds.APIBaseURL + "/tickets?id=" + strconv.Itoa(id)
}

// UpsertTickets posts a batch of ticket payloads. Entries carrying an id
// update that ticket; entries without one create a new ticket. The provider
// echoes the resulting tickets back in order.
func (c *Client) UpsertTickets(ctx context.Context, payloads []map[string]any) ([]Ticket, error) {
	var out []Ticket
	if err := c.do(ctx, http.MethodPost, "/Tickets", nil, payloads, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTicket fetches a single ticket by id.
func (c *Client) GetTicket(ctx context.Context, id int) (Ticket, error) {
	var out Ticket
	if err := c.do(ctx, http.MethodGet, "/Tickets/"+strconv.Itoa(id), nil, nil, &out); err != nil {
		return Ticket{}, err
	}
	return out, nil
}

// ListActions returns the actions recorded on a ticket.
func (c *Client) ListActions(ctx context.Context, ticketID int) ([]Action, error) {
	q := url.Values{"ticket_id": {strconv.Itoa(ticketID)}}
	var out actionList
	if err := c.do(ctx, http.MethodGet, "/Actions", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Actions, nil
}

// CreateActions posts a batch of actions.
func (c *Client) CreateActions(ctx context.Context, actions []Action) ([]Action, error) {
	var out []Action
	if err := c.do(ctx, http.MethodPost, "/Actions", nil, actions, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchClients looks up customer accounts by name.
func (c *Client) SearchClients(ctx context.Context, search string) ([]ClientRecord, error) {
	q := url.Values{"search": {search}}
	var out clientList
	if err := c.do(ctx, http.MethodGet, "/Client", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Clients, nil
}
