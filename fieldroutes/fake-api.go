package fieldroutes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/relloyd/fieldpipe/catalog"
)

// FakeAPI is an in-process stand-in for the remote API, used by tests across packages.
// Tenants are told apart by the authenticationKey header.
type FakeAPI struct {
	Server   *httptest.Server
	PageSize int
	mu       sync.Mutex
	tenants  map[string]*FakeTenant
}

// FakeTenant holds the data and failure switches for one tenant.
type FakeTenant struct {
	Token         string
	Records       map[string][]map[string]interface{} // entity name to records
	FailSearch    map[string]bool                     // entity name to search failure (success=false)
	FailSearchN   map[string]int                      // entity name to number of searches that fail before recovering
	FailGetBatch  map[string]int                      // entity name to 1-based detail call that fails
	HTTPStatus    int                                 // non-zero forces this status on every call
	SearchQueries []map[string]Filter
	getCalls      map[string]int
}

// NewFakeAPI starts the fake. Call Close when done.
func NewFakeAPI(pageSize int) *FakeAPI {
	f := &FakeAPI{PageSize: pageSize, tenants: make(map[string]*FakeTenant)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// URL is the base URL to hand to NewClient.
func (f *FakeAPI) URL() string {
	return f.Server.URL
}

func (f *FakeAPI) Close() {
	f.Server.Close()
}

// AddTenant registers a tenant by api key and returns it for further set up.
func (f *FakeAPI) AddTenant(apiKey, token string) *FakeTenant {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &FakeTenant{
		Token:        token,
		Records:      make(map[string][]map[string]interface{}),
		FailSearch:   make(map[string]bool),
		FailSearchN:  make(map[string]int),
		FailGetBatch: make(map[string]int),
		getCalls:     make(map[string]int),
	}
	f.tenants[apiKey] = t
	return t
}

// Queries returns a copy of the search filters received by the tenant.
func (f *FakeAPI) Queries(apiKey string) []map[string]Filter {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tenants[apiKey]
	retval := make([]map[string]Filter, len(t.SearchQueries))
	copy(retval, t.SearchQueries)
	return retval
}

func (f *FakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[r.Header.Get("authenticationKey")]
	if !ok || t.Token != r.Header.Get("authenticationToken") {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "errorMessage": "authentication failed"})
		return
	}
	if t.HTTPStatus != 0 {
		w.WriteHeader(t.HTTPStatus)
		_, _ = w.Write([]byte("unavailable"))
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	entity, op := parts[0], parts[1]
	switch {
	case op == "search" && r.Method == http.MethodGet:
		f.search(w, r, t, entity)
	case op == "get" && r.Method == http.MethodPost:
		f.get(w, r, t, entity)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *FakeAPI) search(w http.ResponseWriter, r *http.Request, t *FakeTenant, entity string) {
	filters := make(map[string]Filter)
	for k := range r.URL.Query() {
		var flt Filter
		if err := json.Unmarshal([]byte(r.URL.Query().Get(k)), &flt); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "errorMessage": err.Error()})
			return
		}
		filters[k] = flt
	}
	t.SearchQueries = append(t.SearchQueries, filters)
	if t.FailSearchN[entity] > 0 {
		t.FailSearchN[entity]--
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "errorMessage": "search unavailable"})
		return
	}
	if t.FailSearch[entity] {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "errorMessage": "search unavailable"})
		return
	}
	e := fakeEntity(entity)
	ids := make([]ID, 0)
	for _, rec := range t.Records[entity] {
		if matches(rec, filters) {
			ids = append(ids, ID(fmt.Sprint(rec[e.IDField])))
		}
	}
	SortIDs(ids)
	if f.PageSize > 0 && len(ids) > f.PageSize {
		ids = ids[:f.PageSize]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, e.SearchResponseKey(): ids})
}

func (f *FakeAPI) get(w http.ResponseWriter, r *http.Request, t *FakeTenant, entity string) {
	t.getCalls[entity]++
	if n := t.FailGetBatch[entity]; n > 0 && n == t.getCalls[entity] {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "errorMessage": "detail unavailable"})
		return
	}
	body := make(map[string][]ID)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "errorMessage": err.Error()})
		return
	}
	e := fakeEntity(entity)
	want := make(map[string]bool)
	for _, id := range body[e.IDListField] {
		want[string(id)] = true
	}
	out := make([]map[string]interface{}, 0)
	for _, rec := range t.Records[entity] {
		if want[fmt.Sprint(rec[e.IDField])] {
			out = append(out, rec)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, e.GetResponseKey(): out})
}

// fakeEntity resolves wire names from the default catalog, falling back to the naming convention.
func fakeEntity(name string) catalog.Entity {
	if e, err := catalog.Default().Get(name); err == nil {
		return e
	}
	return catalog.Entity{Name: name, IDField: name + "ID", IDListField: name + "IDs"}
}

// matches applies BETWEEN on date prefixes and > on numeric ids.
func matches(rec map[string]interface{}, filters map[string]Filter) bool {
	for field, flt := range filters {
		v := fmt.Sprint(rec[field])
		switch flt.Operator {
		case "BETWEEN":
			bounds, ok := flt.Value.([]interface{})
			if !ok || len(bounds) != 2 || rec[field] == nil {
				return false
			}
			day := v
			if len(day) > 10 {
				day = day[:10]
			}
			if day < fmt.Sprint(bounds[0]) || day > fmt.Sprint(bounds[1]) {
				return false
			}
		case ">":
			if !ID(fmt.Sprint(flt.Value)).Less(ID(v)) {
				return false
			}
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// FakeRecords builds n records for entity with ids starting at firstID and the given date field values.
func FakeRecords(entity catalog.Entity, firstID, n int, dates map[string]string) []map[string]interface{} {
	retval := make([]map[string]interface{}, n)
	for i := 0; i < n; i++ {
		rec := map[string]interface{}{entity.IDField: firstID + i, "label": "rec-" + strconv.Itoa(firstID+i)}
		for k, v := range dates {
			rec[k] = v
		}
		retval[i] = rec
	}
	return retval
}
