package halo

import (
	"context"
	"errors"
	"testing"

	"syncline/internal/domain"
)

type fakeSearcher struct {
	records []ClientRecord
	err     error
	calls   int
}

func (f *fakeSearcher) SearchClients(ctx context.Context, search string) ([]ClientRecord, error) {
	f.calls++
	return f.records, f.err
}

type fakeCustomers map[string]domain.Customer

func (f fakeCustomers) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	c, ok := f[id]
	if !ok {
		return domain.Customer{}, errors.New("not found")
	}
	return c, nil
}

func strptr(s string) *string { return &s }

func TestExplicitIDResolver(t *testing.T) {
	var r ExplicitIDResolver
	id, ok, err := r.ResolveClient(context.Background(), nil, domain.Project{}, "halo_17")
	if err != nil || !ok || id != 17 {
		t.Fatalf("got (%d, %v, %v)", id, ok, err)
	}
	for _, name := range []string{"Acme", "halo_", "halo_x", "halo_0", "halo_-3"} {
		if _, ok, _ := r.ResolveClient(context.Background(), nil, domain.Project{}, name); ok {
			t.Errorf("%q should not resolve", name)
		}
	}
}

func TestStoredMappingResolver(t *testing.T) {
	customers := fakeCustomers{
		"cust-1": {ID: "cust-1", Name: "Acme", HaloClientID: strptr("9")},
		"cust-2": {ID: "cust-2", Name: "NoMap"},
	}
	r := StoredMappingResolver{Customers: customers}
	ctx := context.Background()

	id, ok, err := r.ResolveClient(ctx, nil, domain.Project{CustomerID: strptr("cust-1")}, "")
	if err != nil || !ok || id != 9 {
		t.Fatalf("got (%d, %v, %v)", id, ok, err)
	}

	// Missing mapping or missing customer passes to the next strategy.
	if _, ok, err := r.ResolveClient(ctx, nil, domain.Project{CustomerID: strptr("cust-2")}, ""); ok || err != nil {
		t.Fatalf("unmapped customer should pass through")
	}
	if _, ok, err := r.ResolveClient(ctx, nil, domain.Project{CustomerID: strptr("ghost")}, ""); ok || err != nil {
		t.Fatalf("unknown customer should pass through")
	}
	if _, ok, err := r.ResolveClient(ctx, nil, domain.Project{}, ""); ok || err != nil {
		t.Fatalf("project without customer should pass through")
	}
}

func TestSearchResolverExactMatchWins(t *testing.T) {
	api := &fakeSearcher{records: []ClientRecord{
		{ID: 1, Name: "Acme Corp"},
		{ID: 2, Name: "ACME"},
	}}
	var r SearchResolver
	id, ok, err := r.ResolveClient(context.Background(), api, domain.Project{}, "acme")
	if err != nil || !ok || id != 2 {
		t.Fatalf("got (%d, %v, %v), want exact match id 2", id, ok, err)
	}
}

func TestSearchResolverFallsBackToFirst(t *testing.T) {
	api := &fakeSearcher{records: []ClientRecord{
		{ID: 1, Name: "Acme Corp"},
		{ID: 2, Name: "Acme Ltd"},
	}}
	var r SearchResolver
	id, ok, err := r.ResolveClient(context.Background(), api, domain.Project{}, "Acme")
	if err != nil || !ok || id != 1 {
		t.Fatalf("got (%d, %v, %v), want first result", id, ok, err)
	}
}

func TestSearchResolverNoResults(t *testing.T) {
	api := &fakeSearcher{}
	var r SearchResolver
	if _, ok, err := r.ResolveClient(context.Background(), api, domain.Project{}, "Acme"); ok || err != nil {
		t.Fatalf("empty search should pass through")
	}
	if _, ok, _ := r.ResolveClient(context.Background(), api, domain.Project{}, ""); ok {
		t.Fatalf("blank name should pass through without searching")
	}
}

func TestResolverChainOrder(t *testing.T) {
	customers := fakeCustomers{
		"cust-1": {ID: "cust-1", Name: "Acme", HaloClientID: strptr("9")},
	}
	api := &fakeSearcher{records: []ClientRecord{{ID: 1, Name: "Acme"}}}
	chain := DefaultResolverChain(customers)
	ctx := context.Background()

	// Explicit id beats everything.
	id, ok, err := chain.Resolve(ctx, api, domain.Project{CustomerID: strptr("cust-1")}, "halo_3")
	if err != nil || !ok || id != 3 {
		t.Fatalf("explicit: (%d, %v, %v)", id, ok, err)
	}
	if api.calls != 0 {
		t.Fatalf("search should not run when explicit id matches")
	}

	// Stored mapping beats search.
	id, ok, err = chain.Resolve(ctx, api, domain.Project{CustomerID: strptr("cust-1")}, "Acme")
	if err != nil || !ok || id != 9 {
		t.Fatalf("stored: (%d, %v, %v)", id, ok, err)
	}
	if api.calls != 0 {
		t.Fatalf("search should not run when a mapping exists")
	}

	// Search is the last resort.
	id, ok, err = chain.Resolve(ctx, api, domain.Project{}, "Acme")
	if err != nil || !ok || id != 1 {
		t.Fatalf("search: (%d, %v, %v)", id, ok, err)
	}
}

func TestResolverChainSearchErrorAborts(t *testing.T) {
	api := &fakeSearcher{err: errors.New("boom")}
	chain := DefaultResolverChain(fakeCustomers{})
	if _, _, err := chain.Resolve(context.Background(), api, domain.Project{}, "Acme"); err == nil {
		t.Fatalf("expected search error to abort resolution")
	}
}

func TestResolverChainExhausted(t *testing.T) {
	api := &fakeSearcher{}
	chain := DefaultResolverChain(fakeCustomers{})
	id, ok, err := chain.Resolve(context.Background(), api, domain.Project{}, "Nobody")
	if err != nil || ok || id != 0 {
		t.Fatalf("exhausted chain should return (0, false, nil), got (%d, %v, %v)", id, ok, err)
	}
}
