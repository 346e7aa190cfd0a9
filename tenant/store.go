// Package tenant holds the per-tenant API credentials used to reach the remote system.
package tenant

import (
	"fmt"
	"sort"
)

// Credentials identify and authenticate one tenant.
type Credentials struct {
	ID     string `json:"id" mapstructure:"id"`
	Name   string `json:"name" mapstructure:"name"`
	APIKey string `json:"apiKey" mapstructure:"apiKey"`
	Token  string `json:"token" mapstructure:"token"`
}

// String masks the secrets so credentials are safe to log.
func (c Credentials) String() string {
	return fmt.Sprintf("id=%v; name=%v; apiKey=%v; token=****", c.ID, c.Name, mask(c.APIKey))
}

func (c Credentials) complete() bool {
	return c.ID != "" && c.APIKey != "" && c.Token != ""
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

// Store is an immutable, ordered set of tenant credentials.
// It is built once at start-up and shared read-only by concurrent extractions.
type Store struct {
	tenants []Credentials
	byID    map[string]int
}

// NewStore keeps the first credentials seen for each tenant id, in the order given.
// Incomplete credentials are dropped.
func NewStore(creds ...Credentials) *Store {
	s := &Store{tenants: make([]Credentials, 0, len(creds)), byID: make(map[string]int, len(creds))}
	for _, c := range creds {
		if !c.complete() {
			continue
		}
		if _, ok := s.byID[c.ID]; ok {
			continue
		}
		s.byID[c.ID] = len(s.tenants)
		s.tenants = append(s.tenants, c)
	}
	return s
}

// All returns a copy of every tenant in store order.
func (s *Store) All() []Credentials {
	retval := make([]Credentials, len(s.tenants))
	copy(retval, s.tenants)
	return retval
}

// Len returns the number of tenants.
func (s *Store) Len() int {
	return len(s.tenants)
}

// IDs returns the tenant ids in store order.
func (s *Store) IDs() []string {
	retval := make([]string, len(s.tenants))
	for idx, t := range s.tenants {
		retval[idx] = t.ID
	}
	return retval
}

// Get looks up a tenant by id.
func (s *Store) Get(id string) (Credentials, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return Credentials{}, false
	}
	return s.tenants[idx], true
}

// Select returns the requested tenants in store order together with any ids we don't know.
// No ids selects everything.
func (s *Store) Select(ids []string) (selected []Credentials, missing []string) {
	if len(ids) == 0 {
		return s.All(), nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
		if _, ok := s.byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	for _, t := range s.tenants {
		if want[t.ID] {
			selected = append(selected, t)
		}
	}
	sort.Strings(missing)
	return selected, missing
}
