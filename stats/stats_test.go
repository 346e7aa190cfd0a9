package stats

import (
	"sync"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/relloyd/fieldpipe/logger"
)

func TestCallCounter(t *testing.T) {
	g := NewGomegaWithT(t)
	c := &CallCounter{}
	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Observe(EndpointSearch, false)
			c.Observe(EndpointGet, i%5 == 0)
		}(i)
	}
	wg.Wait()
	g.Expect(c.Snapshot()).To(Equal(Calls{SearchCalls: 10, GetCalls: 10, TotalCalls: 20, FailedCalls: 2}))
	sum := c.Snapshot().Add(Calls{SearchCalls: 1, TotalCalls: 1})
	g.Expect(sum.SearchCalls).To(Equal(int64(11)))
	g.Expect(sum.TotalCalls).To(Equal(int64(21)))
}

func TestObserveAPICall(t *testing.T) {
	g := NewGomegaWithT(t)
	before := testutil.ToFloat64(apiCalls.WithLabelValues("ticket", "office_7", EndpointGet, "true"))
	ObserveAPICall("ticket", "office_7", EndpointGet, true)
	after := testutil.ToFloat64(apiCalls.WithLabelValues("ticket", "office_7", EndpointGet, "true"))
	g.Expect(after - before).To(Equal(1.0))

	ObserveMerge("ticket", 3, 2)
	g.Expect(testutil.ToFloat64(mergeRows.WithLabelValues("ticket", "updated"))).To(BeNumerically(">=", 2))
}

func TestProgressManager(t *testing.T) {
	g := NewGomegaWithT(t)
	log := logger.NewLogger("fieldpipe", "error", false)
	p := NewProgressManager(log, SetProgressDumpFrequency(0))
	w := p.AddUnitWatcher("customer/office_1")
	w.AddIDs(7)
	w.AddFetched(3)
	w.AddFetched(4)
	w.Finish()
	p.StartDumping() // disabled so a no-op
	p.StopDumping()
	progress := p.GetProgress()
	g.Expect(progress).To(HaveLen(1))
	g.Expect(progress[0].Unit).To(Equal("customer/office_1"))
	g.Expect(progress[0].IDsFound).To(Equal(int64(7)))
	g.Expect(progress[0].RecordsFetched).To(Equal(int64(7)))
	g.Expect(progress[0].Finished).To(BeTrue())

	w.Reset()
	g.Expect(w.Render().IDsFound).To(BeZero())
	g.Expect(w.Render().RecordsFetched).To(BeZero())

	var nilWatcher *UnitWatcher
	nilWatcher.Reset()
	nilWatcher.AddIDs(1) // must not panic
	nilWatcher.Finish()
}
