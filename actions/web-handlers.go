package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/relloyd/fieldpipe/catalog"
	"github.com/relloyd/fieldpipe/extract"
	"github.com/relloyd/fieldpipe/logger"
	"github.com/relloyd/fieldpipe/staging"
)

type WebServerResponse uint32

const (
	Okay WebServerResponse = iota + 1
	Error
)

func (w WebServerResponse) MarshalJSON() ([]byte, error) {
	var retval string
	switch w {
	case Okay:
		retval = "ok"
	case Error:
		retval = "error"
	default:
		err := fmt.Errorf("unhandled WebServerResponse value in MarshalJSON() conversion")
		return nil, err
	}
	return json.Marshal(retval)
}

func (w *WebServerResponse) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "ok":
		*w = Okay
	case "error":
		*w = Error
	default:
		return fmt.Errorf("unexpected WebServerResponse value %q", s)
	}
	return nil
}

type ResponseSimple struct {
	ServerStatus WebServerResponse `json:"status"`
}

type ResponseEntityList struct {
	Status   WebServerResponse `json:"status"`
	Entities []EntityListItem  `json:"entities"`
}

type EntityListItem struct {
	Name         string `json:"name"`
	Table        string `json:"table"`
	TenantScoped bool   `json:"tenantScoped"`
}

type ResponseRunList struct {
	Status WebServerResponse `json:"status"`
	Runs   []RunInfo         `json:"runs"`
}

type ResponseRunStatus struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	Run     *RunInfo          `json:"run,omitempty"`
}

type ResponseRunLaunch struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	RunID   string            `json:"runId,omitempty"`
}

// MergeRequest is the body of POST /staging/merge.
type MergeRequest struct {
	Entities []string `json:"entities,omitempty"`
	BatchID  string   `json:"batch_id,omitempty"`
}

func GetHandlerHealth(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithStatus(log, w, http.StatusOK, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerStopServer(log logger.Logger, chanStop chan string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case chanStop <- "stop":
			log.Info("Stop signal sent")
		default: // already stopping
		}
		respondWithStatus(log, w, http.StatusOK, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerEntityList(log logger.Logger, cat *catalog.Catalog) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		entities := cat.Entities()
		items := make([]EntityListItem, 0, len(entities))
		for _, e := range entities {
			items = append(items, EntityListItem{Name: e.Name, Table: e.Table, TenantScoped: e.TenantScoped})
		}
		respondWithStatus(log, w, http.StatusOK, ResponseEntityList{Status: Okay, Entities: items})
	}
}

func GetHandlerRunList(log logger.Logger, runs *RunRegistry) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithStatus(log, w, http.StatusOK, ResponseRunList{Status: Okay, Runs: runs.List()})
	}
}

func GetHandlerRunStatus(log logger.Logger, runs *RunRegistry) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["runId"]
		info, ok := runs.Get(id)
		if !ok {
			log.Info("HTTP request for status of run ", id, " that doesn't exist.")
			respondWithStatus(log, w, http.StatusNotFound, ResponseRunStatus{Status: Error, Message: fmt.Sprintf("run %v does not exist", id)})
			return
		}
		respondWithStatus(log, w, http.StatusOK, ResponseRunStatus{Status: Okay, Run: &info})
	}
}

func (s *webServer) handleLaunchFull(w http.ResponseWriter, r *http.Request) {
	req := PipelineRequest{}
	if err := decodeBody(r, &req); err != nil {
		logAndRespond(s.log, err, w, http.StatusBadRequest)
		return
	}
	if err := extract.ValidateDateRange(req.StartDate, req.EndDate); err != nil {
		logAndRespond(s.log, err, w, http.StatusBadRequest)
		return
	}
	s.launchEntities(w, RunKindFull, req.Entities, func(ctx context.Context) (*PipelineResult, *staging.Summary, error) {
		res, err := RunFullPipeline(ctx, s.cfg, req)
		return &res, nil, err
	})
}

func (s *webServer) handleLaunchIncremental(w http.ResponseWriter, r *http.Request) {
	req := IncrementalRequest{}
	if err := decodeBody(r, &req); err != nil {
		logAndRespond(s.log, err, w, http.StatusBadRequest)
		return
	}
	s.launchEntities(w, RunKindIncremental, req.Entities, func(ctx context.Context) (*PipelineResult, *staging.Summary, error) {
		res, err := RunIncrementalPipeline(ctx, s.cfg, req)
		return &res, nil, err
	})
}

func (s *webServer) handleLaunchEntity(w http.ResponseWriter, r *http.Request) {
	entity := mux.Vars(r)["entity"]
	req := PipelineRequest{}
	if err := decodeBody(r, &req); err != nil {
		logAndRespond(s.log, err, w, http.StatusBadRequest)
		return
	}
	if err := extract.ValidateDateRange(req.StartDate, req.EndDate); err != nil {
		logAndRespond(s.log, err, w, http.StatusBadRequest)
		return
	}
	s.launchEntities(w, RunKindEntity, []string{entity}, func(ctx context.Context) (*PipelineResult, *staging.Summary, error) {
		res, err := RunSingleEntityPipeline(ctx, s.cfg, entity, req)
		return &res, nil, err
	})
}

func (s *webServer) handleLaunchMerge(w http.ResponseWriter, r *http.Request) {
	req := MergeRequest{}
	if err := decodeBody(r, &req); err != nil {
		logAndRespond(s.log, err, w, http.StatusBadRequest)
		return
	}
	s.launchEntities(w, RunKindMerge, req.Entities, func(ctx context.Context) (*PipelineResult, *staging.Summary, error) {
		sum, err := RunStaging(ctx, s.cfg, req.Entities, req.BatchID)
		return nil, &sum, err
	})
}

// launchEntities resolves names against the catalog (all entities when empty), takes the entity
// locks and starts fn. Unknown entities are a 400 and busy entities a 409.
func (s *webServer) launchEntities(w http.ResponseWriter, kind RunKind, names []string, fn func(ctx context.Context) (*PipelineResult, *staging.Summary, error)) {
	entities, err := s.cfg.Catalog.Select(names)
	if err != nil {
		logAndRespond(s.log, err, w, http.StatusBadRequest)
		return
	}
	resolved := make([]string, 0, len(entities))
	for _, e := range entities {
		resolved = append(resolved, e.Name)
	}
	info, err := s.launch(kind, resolved, fn)
	if err != nil {
		code := http.StatusInternalServerError
		var busy EntityBusyError
		if errors.As(err, &busy) {
			code = http.StatusConflict
		}
		logAndRespond(s.log, err, w, code)
		return
	}
	respondWithStatus(s.log, w, http.StatusAccepted, ResponseRunLaunch{Status: Okay, Message: fmt.Sprintf("%v run launched", kind), RunID: info.RunID})
}

// decodeBody unmarshals the request body into out. An empty body leaves out untouched.
func decodeBody(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(out)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "error unmarshalling JSON")
	}
	return nil
}

// logAndRespond will log the error and write it to w with the given status code.
func logAndRespond(log logger.Logger, err error, w http.ResponseWriter, code int) {
	log.Error(err)
	respondWithStatus(log, w, code, ResponseRunLaunch{Status: Error, Message: err.Error()})
}

func respondWithStatus(log logger.Logger, w http.ResponseWriter, code int, i interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	respond(log, w, i)
}

// respond will marshal i to a string and write it to w.
func respond(log logger.Logger, w http.ResponseWriter, i interface{}) {
	j, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		log.Panic(err)
	}
	_, err = fmt.Fprint(w, string(j))
	if err != nil {
		log.Error(err)
	}
}
