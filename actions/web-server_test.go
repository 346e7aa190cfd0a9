package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/gomega"
)

func serve(s *webServer, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)
	return w
}

func TestHandlerHealthAndEntities(t *testing.T) {
	g := NewGomegaWithT(t)
	cfg, fake, _ := testPipeline(t)
	defer fake.Close()
	s := newWebServer(context.Background(), testLog, cfg)

	w := serve(s, http.MethodGet, "/health", "")
	g.Expect(w.Code).To(Equal(http.StatusOK))
	g.Expect(w.Body.String()).To(MatchJSON(`{"status":"ok"}`))

	w = serve(s, http.MethodGet, "/entities", "")
	g.Expect(w.Code).To(Equal(http.StatusOK))
	resp := ResponseEntityList{}
	g.Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
	g.Expect(resp.Status).To(Equal(Okay))
	g.Expect(resp.Entities).To(HaveLen(27))
	g.Expect(resp.Entities).To(ContainElement(EntityListItem{Name: "customer", Table: "CUSTOMER_FACT", TenantScoped: true}))

	w = serve(s, http.MethodGet, "/metrics", "")
	g.Expect(w.Code).To(Equal(http.StatusOK))
}

func TestHandlerLaunchRejectsBadInput(t *testing.T) {
	g := NewGomegaWithT(t)
	cfg, fake, db := testPipeline(t)
	defer fake.Close()
	s := newWebServer(context.Background(), testLog, cfg)

	w := serve(s, http.MethodPost, "/runs/full", `{"start_date":"2025-06-08","end_date":"2025-06-01"}`)
	g.Expect(w.Code).To(Equal(http.StatusBadRequest))

	w = serve(s, http.MethodPost, "/runs/full", `{not json`)
	g.Expect(w.Code).To(Equal(http.StatusBadRequest))

	w = serve(s, http.MethodPost, "/runs/entity/nope", `{"start_date":"2025-06-01","end_date":"2025-06-08"}`)
	g.Expect(w.Code).To(Equal(http.StatusBadRequest))
	g.Expect(w.Body.String()).To(ContainSubstring("nope"))

	w = serve(s, http.MethodGet, "/staging/merge", "")
	g.Expect(w.Code).To(Equal(http.StatusMethodNotAllowed))

	g.Expect(s.runs.List()).To(BeEmpty())
	g.Expect(db.Statements()).To(BeEmpty())
}

func TestHandlerRejectsEntityInFlight(t *testing.T) {
	g := NewGomegaWithT(t)
	cfg, fake, _ := testPipeline(t)
	defer fake.Close()
	s := newWebServer(context.Background(), testLog, cfg)
	busy, err := s.runs.Start(RunKindFull, []string{"customer"})
	g.Expect(err).ToNot(HaveOccurred())

	w := serve(s, http.MethodPost, "/runs/entity/customer", `{"start_date":"2025-06-01","end_date":"2025-06-08"}`)
	g.Expect(w.Code).To(Equal(http.StatusConflict))
	g.Expect(w.Body.String()).To(ContainSubstring(busy.RunID))

	w = serve(s, http.MethodPost, "/staging/merge", `{"entities":["appointment","customer"]}`)
	g.Expect(w.Code).To(Equal(http.StatusConflict))
	g.Expect(s.runs.List()).To(HaveLen(1))
}

func TestHandlerMergeRunLifecycle(t *testing.T) {
	g := NewGomegaWithT(t)
	cfg, fake, db := testPipeline(t)
	defer fake.Close()
	s := newWebServer(context.Background(), testLog, cfg)

	w := serve(s, http.MethodPost, "/staging/merge", `{"entities":["customer"],"batch_id":"b1"}`)
	g.Expect(w.Code).To(Equal(http.StatusAccepted))
	launch := ResponseRunLaunch{}
	g.Expect(json.Unmarshal(w.Body.Bytes(), &launch)).To(Succeed())
	g.Expect(launch.RunID).ToNot(BeEmpty())

	g.Eventually(func() RunStatus {
		info, _ := s.runs.Get(launch.RunID)
		return info.Status
	}, 5*time.Second, 10*time.Millisecond).Should(Equal(RunStatusSucceeded))
	s.wg.Wait()

	w = serve(s, http.MethodGet, "/runs/"+launch.RunID, "")
	g.Expect(w.Code).To(Equal(http.StatusOK))
	status := ResponseRunStatus{}
	g.Expect(json.Unmarshal(w.Body.Bytes(), &status)).To(Succeed())
	g.Expect(status.Run.Kind).To(Equal(RunKindMerge))
	g.Expect(status.Run.Entities).To(Equal([]string{"customer"}))
	g.Expect(status.Run.Staging.RowsInserted).To(Equal(int64(5)))
	g.Expect(status.Run.FinishedAt).ToNot(BeNil())

	merges := db.StatementsContaining("MERGE INTO STAGING_DB_DEV.FIELDROUTES.CUSTOMER_FACT")
	g.Expect(merges).To(HaveLen(1))
	g.Expect(merges[0].Args).To(Equal([]interface{}{"b1"}))

	w = serve(s, http.MethodGet, "/runs", "")
	list := ResponseRunList{}
	g.Expect(json.Unmarshal(w.Body.Bytes(), &list)).To(Succeed())
	g.Expect(list.Runs).To(HaveLen(1))

	// The entity lock is released once the run finishes.
	w = serve(s, http.MethodPost, "/staging/merge", `{"entities":["customer"]}`)
	g.Expect(w.Code).To(Equal(http.StatusAccepted))
	s.wg.Wait()

	w = serve(s, http.MethodGet, "/runs/missing", "")
	g.Expect(w.Code).To(Equal(http.StatusNotFound))
}

func TestHandlerEntityRun(t *testing.T) {
	g := NewGomegaWithT(t)
	cfg, fake, _ := testPipeline(t)
	defer fake.Close()
	s := newWebServer(context.Background(), testLog, cfg)

	w := serve(s, http.MethodPost, "/runs/entity/appointment", `{"start_date":"2025-06-01","end_date":"2025-06-08"}`)
	g.Expect(w.Code).To(Equal(http.StatusAccepted))
	launch := ResponseRunLaunch{}
	g.Expect(json.Unmarshal(w.Body.Bytes(), &launch)).To(Succeed())
	s.wg.Wait()

	info, ok := s.runs.Get(launch.RunID)
	g.Expect(ok).To(BeTrue())
	g.Expect(info.Status).To(Equal(RunStatusFailed)) // office_1 cannot search appointments
	g.Expect(info.Pipeline).ToNot(BeNil())
	g.Expect(info.Pipeline.Summary.FailedEntities).To(Equal(1))
}

func TestRunRegistry(t *testing.T) {
	g := NewGomegaWithT(t)
	r := NewRunRegistry()
	a, err := r.Start(RunKindFull, []string{"customer", "appointment"})
	g.Expect(err).ToNot(HaveOccurred())
	_, err = r.Start(RunKindEntity, []string{"route", "appointment"})
	g.Expect(err).To(MatchError(EntityBusyError{Entity: "appointment", RunID: a.RunID}))
	b, err := r.Start(RunKindEntity, []string{"route"})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(r.Running()).To(Equal(2))

	r.Finish(a.RunID, &PipelineResult{Success: true}, nil, nil)
	got, _ := r.Get(a.RunID)
	g.Expect(got.Status).To(Equal(RunStatusSucceeded))
	_, err = r.Start(RunKindEntity, []string{"appointment"})
	g.Expect(err).ToNot(HaveOccurred())

	g.Expect(r.List()[0].RunID).To(Equal(a.RunID))
	g.Expect(r.List()[1].RunID).To(Equal(b.RunID))
}
