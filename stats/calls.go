package stats

import (
	"sync/atomic"
)

// Endpoint kinds counted by CallCounter.
const (
	EndpointSearch = "search"
	EndpointGet    = "get"
)

// Calls is a snapshot of remote API call accounting.
type Calls struct {
	SearchCalls int64 `json:"search_calls"`
	GetCalls    int64 `json:"get_calls"`
	TotalCalls  int64 `json:"total_calls"`
	FailedCalls int64 `json:"failed_calls"`
}

// Add returns the field-wise sum of c and o.
func (c Calls) Add(o Calls) Calls {
	return Calls{
		SearchCalls: c.SearchCalls + o.SearchCalls,
		GetCalls:    c.GetCalls + o.GetCalls,
		TotalCalls:  c.TotalCalls + o.TotalCalls,
		FailedCalls: c.FailedCalls + o.FailedCalls,
	}
}

// CallCounter accumulates call accounting for one API client.
// It is safe for concurrent use.
type CallCounter struct {
	search int64
	get    int64
	total  int64
	failed int64
}

// Observe records one call to the given endpoint kind.
func (c *CallCounter) Observe(endpoint string, failed bool) {
	switch endpoint {
	case EndpointSearch:
		atomic.AddInt64(&c.search, 1)
	case EndpointGet:
		atomic.AddInt64(&c.get, 1)
	}
	atomic.AddInt64(&c.total, 1)
	if failed {
		atomic.AddInt64(&c.failed, 1)
	}
}

// Snapshot returns the counts so far.
func (c *CallCounter) Snapshot() Calls {
	return Calls{
		SearchCalls: atomic.LoadInt64(&c.search),
		GetCalls:    atomic.LoadInt64(&c.get),
		TotalCalls:  atomic.LoadInt64(&c.total),
		FailedCalls: atomic.LoadInt64(&c.failed),
	}
}
