package halo

import (
	"context"
	"strconv"
	"strings"

	"syncline/internal/domain"
)

// ClientSearcher is the slice of the ticket client the resolvers need.
type ClientSearcher interface {
	SearchClients(ctx context.Context, search string) ([]ClientRecord, error)
}

// CustomerLookup reads the local customer record for a project. repo.Repo
// satisfies it.
type CustomerLookup interface {
	GetCustomer(ctx context.Context, id string) (domain.Customer, error)
}

// ClientResolver maps a project's customer to a provider client id. Returning
// (0, false, nil) passes resolution to the next strategy in the chain.
type ClientResolver interface {
	ResolveClient(ctx context.Context, api ClientSearcher, p domain.Project, customerName string) (int, bool, error)
}

// ExplicitIDResolver recognizes customer names of the form "halo_<n>" as a
// direct client id reference.
type ExplicitIDResolver struct{}

func (ExplicitIDResolver) ResolveClient(ctx context.Context, api ClientSearcher, p domain.Project, customerName string) (int, bool, error) {
	rest, ok := strings.CutPrefix(customerName, "halo_")
	if !ok {
		return 0, false, nil
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id <= 0 {
		return 0, false, nil
	}
	return id, true, nil
}

// StoredMappingResolver uses the halo client id persisted on the local
// customer record, when the project has one.
type StoredMappingResolver struct {
	Customers CustomerLookup
}

func (r StoredMappingResolver) ResolveClient(ctx context.Context, api ClientSearcher, p domain.Project, customerName string) (int, bool, error) {
	if p.CustomerID == nil || *p.CustomerID == "" {
		return 0, false, nil
	}
	customer, err := r.Customers.GetCustomer(ctx, *p.CustomerID)
	if err != nil {
		return 0, false, nil
	}
	if customer.HaloClientID == nil || *customer.HaloClientID == "" {
		return 0, false, nil
	}
	id, err := strconv.Atoi(*customer.HaloClientID)
	if err != nil || id <= 0 {
		return 0, false, nil
	}
	return id, true, nil
}

// SearchResolver queries the provider by customer name. A case-insensitive
// exact match wins; otherwise the first result is taken on the assumption
// that the provider ranks by relevance.
type SearchResolver struct{}

func (SearchResolver) ResolveClient(ctx context.Context, api ClientSearcher, p domain.Project, customerName string) (int, bool, error) {
	if customerName == "" {
		return 0, false, nil
	}
	records, err := api.SearchClients(ctx, customerName)
	if err != nil {
		return 0, false, err
	}
	if len(records) == 0 {
		return 0, false, nil
	}
	for _, rec := range records {
		if strings.EqualFold(rec.Name, customerName) {
			return rec.ID, true, nil
		}
	}
	return records[0].ID, true, nil
}

// ResolverChain tries each strategy in order.
type ResolverChain []ClientResolver

// DefaultResolverChain is the production resolution order: explicit id,
// stored mapping, then provider search.
func DefaultResolverChain(customers CustomerLookup) ResolverChain {
	return ResolverChain{
		ExplicitIDResolver{},
		StoredMappingResolver{Customers: customers},
		SearchResolver{},
	}
}

// Resolve runs the chain. A resolver error aborts; exhausting the chain
// without a match returns (0, false, nil) and the caller creates the ticket
// without a client.
func (rc ResolverChain) Resolve(ctx context.Context, api ClientSearcher, p domain.Project, customerName string) (int, bool, error) {
	for _, r := range rc {
		id, ok, err := r.ResolveClient(ctx, api, p, customerName)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return id, true, nil
		}
	}
	return 0, false, nil
}
