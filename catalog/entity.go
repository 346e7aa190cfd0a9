package catalog

import (
	"fmt"
)

// Staging describes the typed table an entity is merged into.
type Staging struct {
	Key         string      `json:"key"`
	LastUpdated string      `json:"lastUpdated"`
	Columns     []Column    `json:"columns"`
	Statistics  []Statistic `json:"statistics,omitempty"`
}

// Entity is the static description of one remote entity type.
type Entity struct {
	Name         string   `json:"name"`
	TenantScoped bool     `json:"tenantScoped"`
	DateFields   []string `json:"dateFields"`
	IDField      string   `json:"idField"`
	IDListField  string   `json:"idListField"`
	IDsKey       string   `json:"idsKey,omitempty"`     // search response key; default <name>IDs
	RecordsKey   string   `json:"recordsKey,omitempty"` // detail response key; default <name>s
	Table        string   `json:"table"`
	Staging      Staging  `json:"staging"`
}

// SearchPath is the relative path of the search endpoint.
func (e Entity) SearchPath() string {
	return e.Name + "/search"
}

// GetPath is the relative path of the detail endpoint.
func (e Entity) GetPath() string {
	return e.Name + "/get"
}

func (e Entity) SearchResponseKey() string {
	if e.IDsKey != "" {
		return e.IDsKey
	}
	return e.Name + "IDs"
}

func (e Entity) GetResponseKey() string {
	if e.RecordsKey != "" {
		return e.RecordsKey
	}
	return e.Name + "s"
}

// KeyColumn returns the staging column holding the business key.
func (e Entity) KeyColumn() Column {
	c, _ := e.column(e.Staging.Key)
	return c
}

// LastUpdatedColumn returns the staging column used for latest-wins ordering.
func (e Entity) LastUpdatedColumn() Column {
	c, _ := e.column(e.Staging.LastUpdated)
	return c
}

// ColumnNames returns staging column names in declaration order.
func (e Entity) ColumnNames() []string {
	retval := make([]string, len(e.Staging.Columns))
	for idx, c := range e.Staging.Columns {
		retval[idx] = c.Name
	}
	return retval
}

func (e Entity) column(name string) (Column, bool) {
	for _, c := range e.Staging.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (e Entity) validate() error {
	if e.Name == "" {
		return fmt.Errorf("entity name is empty")
	}
	if e.IDField == "" || e.IDListField == "" {
		return fmt.Errorf("entity %v: idField and idListField are required", e.Name)
	}
	if e.Table == "" {
		return fmt.Errorf("entity %v: table is required", e.Name)
	}
	if len(e.Staging.Columns) == 0 {
		return fmt.Errorf("entity %v: no staging columns", e.Name)
	}
	seen := make(map[string]bool, len(e.Staging.Columns))
	for _, c := range e.Staging.Columns {
		if c.Name == "" || c.Path == "" || c.Type == "" {
			return fmt.Errorf("entity %v: column %q needs name, path and type", e.Name, c.Name)
		}
		if !c.Kind.valid() {
			return fmt.Errorf("entity %v: column %v has unsupported kind %q", e.Name, c.Name, c.Kind)
		}
		if seen[c.Name] {
			return fmt.Errorf("entity %v: duplicate column %v", e.Name, c.Name)
		}
		seen[c.Name] = true
	}
	if _, ok := e.column(e.Staging.Key); !ok {
		return fmt.Errorf("entity %v: key column %q is not a staging column", e.Name, e.Staging.Key)
	}
	if _, ok := e.column(e.Staging.LastUpdated); !ok {
		return fmt.Errorf("entity %v: last-updated column %q is not a staging column", e.Name, e.Staging.LastUpdated)
	}
	for _, f := range e.DateFields {
		if f == "" {
			return fmt.Errorf("entity %v: empty date field", e.Name)
		}
	}
	return nil
}
