package actions

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/relloyd/fieldpipe/staging"
	"github.com/rs/xid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
)

type RunKind string

const (
	RunKindFull        RunKind = "full"
	RunKindIncremental RunKind = "incremental"
	RunKindEntity      RunKind = "entity"
	RunKindMerge       RunKind = "merge"
)

// RunInfo describes a run launched over HTTP.
type RunInfo struct {
	RunID      string           `json:"runId"`
	Kind       RunKind          `json:"kind"`
	Entities   []string         `json:"entities"`
	Status     RunStatus        `json:"status"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
	Error      string           `json:"error,omitempty"`
	Pipeline   *PipelineResult  `json:"pipelineResult,omitempty"`
	Staging    *staging.Summary `json:"stagingResult,omitempty"`
}

// EntityBusyError is returned when a launch names an entity that another run is still writing.
type EntityBusyError struct {
	Entity string
	RunID  string
}

func (e EntityBusyError) Error() string {
	return fmt.Sprintf("entity %v is already being processed by run %v", e.Entity, e.RunID)
}

// RunRegistry tracks launched runs and allows one in-flight run per entity table.
type RunRegistry struct {
	sync.RWMutex
	runs     map[string]*RunInfo
	inFlight map[string]string // entity name to run id
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*RunInfo), inFlight: make(map[string]string)}
}

// Start registers a run for entities, or fails with EntityBusyError without registering anything.
func (r *RunRegistry) Start(kind RunKind, entities []string) (RunInfo, error) {
	r.Lock()
	defer r.Unlock()
	for _, e := range entities {
		if id, ok := r.inFlight[e]; ok {
			return RunInfo{}, EntityBusyError{Entity: e, RunID: id}
		}
	}
	info := &RunInfo{
		RunID:     xid.New().String(),
		Kind:      kind,
		Entities:  append([]string(nil), entities...),
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
	for _, e := range entities {
		r.inFlight[e] = info.RunID
	}
	r.runs[info.RunID] = info
	return *info, nil
}

// Finish records the outcome of run id and releases its entities.
func (r *RunRegistry) Finish(id string, p *PipelineResult, s *staging.Summary, err error) {
	r.Lock()
	defer r.Unlock()
	info, ok := r.runs[id]
	if !ok {
		return
	}
	now := time.Now()
	info.FinishedAt = &now
	info.Pipeline = p
	info.Staging = s
	switch {
	case err != nil:
		info.Status = RunStatusFailed
		info.Error = err.Error()
	case p != nil && !p.Success:
		info.Status = RunStatusFailed
	case s != nil && !s.Success:
		info.Status = RunStatusFailed
	default:
		info.Status = RunStatusSucceeded
	}
	for _, e := range info.Entities {
		if r.inFlight[e] == id {
			delete(r.inFlight, e)
		}
	}
}

func (r *RunRegistry) Get(id string) (RunInfo, bool) {
	r.RLock()
	defer r.RUnlock()
	info, ok := r.runs[id]
	if !ok {
		return RunInfo{}, false
	}
	return *info, true
}

// List returns every run, oldest first.
func (r *RunRegistry) List() []RunInfo {
	r.RLock()
	defer r.RUnlock()
	retval := make([]RunInfo, 0, len(r.runs))
	for _, info := range r.runs {
		retval = append(retval, *info)
	}
	sort.Slice(retval, func(i, j int) bool {
		return retval[i].RunID < retval[j].RunID // xids sort by creation
	})
	return retval
}

// Running reports the number of runs still in flight.
func (r *RunRegistry) Running() int {
	r.RLock()
	defer r.RUnlock()
	n := 0
	for _, info := range r.runs {
		if info.Status == RunStatusRunning {
			n++
		}
	}
	return n
}
