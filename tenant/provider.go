package tenant

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/fieldpipe/config"
	"github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/helper"
	"github.com/relloyd/fieldpipe/logger"
)

// Provider supplies tenant credentials from somewhere.
type Provider interface {
	Tenants() ([]Credentials, error)
}

// EnvProvider reads PESTROUTES_OFFICE_<N>_{API_KEY,TOKEN,NAME} for N in 1..MaxTenantSlots.
// Slots missing a key or token are skipped with a warning.
type EnvProvider struct {
	Log    logger.Logger
	Getenv func(string) string
}

func (p *EnvProvider) Tenants() ([]Credentials, error) {
	getenv := p.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	retval := make([]Credentials, 0)
	for slot := 1; slot <= constants.MaxTenantSlots; slot++ {
		key := getenv(helper.GetTenantEnvVarName(slot, "api_key"))
		token := getenv(helper.GetTenantEnvVarName(slot, "token"))
		if key == "" && token == "" { // if the slot is unused...
			continue
		}
		if key == "" || token == "" {
			if p.Log != nil {
				p.Log.Warn(fmt.Sprintf("skipping tenant slot %v: both %v and %v are required", slot,
					helper.GetTenantEnvVarName(slot, "api_key"), helper.GetTenantEnvVarName(slot, "token")))
			}
			continue
		}
		name := getenv(helper.GetTenantEnvVarName(slot, "name"))
		if name == "" {
			name = fmt.Sprintf("Office %v", slot)
		}
		retval = append(retval, Credentials{
			ID:     constants.TenantIDPrefix + strconv.Itoa(slot),
			Name:   name,
			APIKey: key,
			Token:  token,
		})
	}
	return retval, nil
}

// FileProvider reads the "tenants" list from the encrypted credentials file.
type FileProvider struct {
	File *config.File
}

func (p *FileProvider) Tenants() ([]Credentials, error) {
	retval := make([]Credentials, 0)
	if err := p.File.Get(config.CredentialsKeyTenants, &retval); err != nil {
		if config.IsKeyNotFound(err) {
			return []Credentials{}, nil
		}
		return nil, errors.Wrap(err, "error reading tenants from credentials file")
	}
	return retval, nil
}

// AddTenant saves c into the credentials file, replacing any tenant with the same id.
func (p *FileProvider) AddTenant(c Credentials) error {
	if !c.complete() {
		return fmt.Errorf("tenant id, api key and token are required")
	}
	existing, err := p.Tenants()
	if err != nil {
		return err
	}
	replaced := false
	for idx := range existing {
		if existing[idx].ID == c.ID {
			existing[idx] = c
			replaced = true
		}
	}
	if !replaced {
		existing = append(existing, c)
	}
	return p.File.Set(config.CredentialsKeyTenants, toMaps(existing))
}

// RemoveTenant deletes the tenant with the given id from the credentials file.
func (p *FileProvider) RemoveTenant(id string) error {
	existing, err := p.Tenants()
	if err != nil {
		return err
	}
	kept := make([]Credentials, 0, len(existing))
	for _, t := range existing {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(existing) {
		return fmt.Errorf("tenant %q not found", id)
	}
	return p.File.Set(config.CredentialsKeyTenants, toMaps(kept))
}

func toMaps(creds []Credentials) []map[string]string {
	retval := make([]map[string]string, len(creds))
	for idx, c := range creds {
		retval[idx] = map[string]string{"id": c.ID, "name": c.Name, "apiKey": c.APIKey, "token": c.Token}
	}
	return retval
}

// ChainProvider merges providers in order; the first provider to name a tenant id wins.
type ChainProvider []Provider

func (p ChainProvider) Tenants() ([]Credentials, error) {
	retval := make([]Credentials, 0)
	seen := make(map[string]bool)
	for _, provider := range p {
		creds, err := provider.Tenants()
		if err != nil {
			return nil, err
		}
		for _, c := range creds {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			retval = append(retval, c)
		}
	}
	return retval, nil
}

// LoadStore builds a Store from the provider and sorts tenants by slot number so
// "office_2" comes before "office_10".
func LoadStore(p Provider) (*Store, error) {
	creds, err := p.Tenants()
	if err != nil {
		return nil, err
	}
	sortBySlot(creds)
	return NewStore(creds...), nil
}

func sortBySlot(creds []Credentials) {
	slot := func(id string) int {
		n, err := strconv.Atoi(strings.TrimPrefix(id, constants.TenantIDPrefix))
		if err != nil || !strings.HasPrefix(id, constants.TenantIDPrefix) {
			return math.MaxInt32 // non-slot ids go last, in provider order
		}
		return n
	}
	sort.SliceStable(creds, func(i, j int) bool {
		return slot(creds[i].ID) < slot(creds[j].ID)
	})
}
