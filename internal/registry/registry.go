// Package registry resolves configured dedicated servers for a guild by
// name and feeds the sync loops their working set each cycle.
package registry

import (
	"fmt"
	"strings"

	"sebridge/internal/storage"
)

// Registry reads server and tenant configuration from storage. It holds no
// cache of its own: each polling cycle sees the current configuration, so
// servers added or removed between cycles take effect immediately.
type Registry struct {
	repo *storage.Repository
}

// New creates a registry over the configuration store.
func New(repo *storage.Repository) *Registry {
	return &Registry{repo: repo}
}

// Servers returns every configured server across all guilds.
func (r *Registry) Servers() ([]*storage.Server, error) {
	return r.repo.GetAllServers()
}

// ServersForGuild returns the servers configured in one guild.
func (r *Registry) ServersForGuild(guildID string) ([]*storage.Server, error) {
	return r.repo.GetServersByGuild(guildID)
}

// Tenants returns every guild with tenant configuration.
func (r *Registry) Tenants() ([]*storage.Tenant, error) {
	return r.repo.GetAllTenants()
}

// SetStatusMessageID writes back the live status message id for a guild.
func (r *Registry) SetStatusMessageID(guildID, messageID string) error {
	return r.repo.SetStatusMessageID(guildID, messageID)
}

// Lookup finds a server in a guild by name: case-insensitive exact match
// first, then unique prefix, then unique substring. Duplicate names are
// tolerated in configuration; an exact match on a duplicated name returns
// the first configured server, while an ambiguous prefix or substring
// match is refused with the candidate names.
func (r *Registry) Lookup(guildID, name string) (*storage.Server, error) {
	servers, err := r.repo.GetServersByGuild(guildID)
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("no servers are configured in this guild")
	}

	query := strings.ToLower(strings.TrimSpace(name))

	for _, s := range servers {
		if strings.ToLower(s.Name) == query {
			return s, nil
		}
	}

	matches := matchBy(servers, func(n string) bool { return strings.HasPrefix(n, query) })
	if len(matches) == 0 {
		matches = matchBy(servers, func(n string) bool { return strings.Contains(n, query) })
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no server named %q", name)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		return nil, fmt.Errorf("%q is ambiguous, could be: %s", name, strings.Join(names, ", "))
	}
}

func matchBy(servers []*storage.Server, match func(string) bool) []*storage.Server {
	var out []*storage.Server
	for _, s := range servers {
		if match(strings.ToLower(s.Name)) {
			out = append(out, s)
		}
	}
	return out
}
