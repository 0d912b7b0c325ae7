package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/econlens/econlens/internal/core"
)

// searchHitLimit caps the hits a single search returns.
const searchHitLimit = 50

// Client is the interface all provider clients implement.
type Client interface {
	// Series fetches observations for one series request.
	Series(ctx context.Context, req core.SeriesRequest) (*core.Series, error)

	// Search queries the provider's series catalog.
	Search(ctx context.Context, query string) (*core.SearchResult, error)

	// Source returns the logical source id.
	Source() string
}

// Registry maps source ids to constructed clients.
type Registry struct {
	clients map[string]Client
}

// NewRegistry builds a registry keyed by each client's Source().
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for _, client := range clients {
		if client == nil {
			continue
		}
		r.clients[strings.ToLower(strings.TrimSpace(client.Source()))] = client
	}
	return r
}

// For returns the client registered for source.
func (r *Registry) For(source string) (Client, error) {
	key := strings.ToLower(strings.TrimSpace(source))
	if r == nil || r.clients[key] == nil {
		return nil, fmt.Errorf("unknown source %q", source)
	}
	return r.clients[key], nil
}

// Sources returns the registered source ids, sorted.
func (r *Registry) Sources() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
