package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cevaris/ordered_map"
	"github.com/relloyd/fieldpipe/logger"
)

var DefaultProgressDumpFrequencySeconds = 5 // may be overridden by options in the constructor below

// ProgressReporter is what extraction code needs to report progress.
type ProgressReporter interface {
	AddUnitWatcher(unitName string) *UnitWatcher
	StartDumping()
	StopDumping()
}

// ProgressManager periodically logs the progress of every registered extraction unit.
type ProgressManager struct {
	ticker              *time.Ticker
	tickerDone          chan struct{}
	tickerIsRunningFlag int32
	tickerFrequency     int
	mu                  sync.Mutex
	log                 logger.Logger
	mapUnits            *ordered_map.OrderedMap // unit name to *UnitWatcher, in registration order
}

// SetProgressDumpFrequency returns an option for NewProgressManager.
// Zero disables periodic dumping.
func SetProgressDumpFrequency(seconds int) func(p *ProgressManager) {
	return func(p *ProgressManager) {
		p.tickerFrequency = seconds
	}
}

// NewProgressManager creates a ProgressManager.
func NewProgressManager(log logger.Logger, options ...func(p *ProgressManager)) *ProgressManager {
	p := &ProgressManager{log: log, tickerFrequency: DefaultProgressDumpFrequencySeconds}
	for _, option := range options {
		option(p)
	}
	p.tickerDone = make(chan struct{})
	p.mapUnits = ordered_map.NewOrderedMap()
	return p
}

// AddUnitWatcher registers a watcher for one (entity, tenant) unit.
func (p *ProgressManager) AddUnitWatcher(unitName string) *UnitWatcher {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := &UnitWatcher{name: unitName, startTime: time.Now()}
	p.mapUnits.Set(unitName, w)
	return w
}

func (p *ProgressManager) StartDumping() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if atomic.LoadInt32(&p.tickerIsRunningFlag) == 1 {
		p.log.Debug("progress dumper ticker already running")
		return
	}
	if p.tickerFrequency <= 0 {
		p.log.Debug("progress dumper disabled")
		return
	}
	p.ticker = time.NewTicker(time.Second * time.Duration(p.tickerFrequency))
	atomic.StoreInt32(&p.tickerIsRunningFlag, 1)
	go func() {
		for {
			select {
			case <-p.tickerDone:
				return
			case <-p.ticker.C:
				p.logProgress()
			}
		}
	}()
}

// StopDumping stops the ticker and logs the final progress,
// only if the ticker was started by StartDumping().
func (p *ProgressManager) StopDumping() {
	p.mu.Lock()
	running := atomic.LoadInt32(&p.tickerIsRunningFlag) == 1
	if running {
		atomic.StoreInt32(&p.tickerIsRunningFlag, 0)
		p.ticker.Stop()
		p.tickerDone <- struct{}{}
	}
	p.mu.Unlock()
	if running {
		p.logProgress()
	}
}

// GetProgress returns the progress of all units in registration order.
func (p *ProgressManager) GetProgress() []Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	retval := make([]Progress, 0, p.mapUnits.Len())
	iter := p.mapUnits.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		retval = append(retval, kv.Value.(*UnitWatcher).Render())
	}
	return retval
}

func (p *ProgressManager) logProgress() {
	for _, s := range p.GetProgress() {
		p.log.Info(s.String())
	}
}

// UnitWatcher counts progress for one extraction unit.
type UnitWatcher struct {
	name       string
	startTime  time.Time
	idsFound   int64
	fetched    int64
	isFinished int32
}

// Progress is a point-in-time view of a UnitWatcher.
type Progress struct {
	Unit           string `json:"unit"`
	IDsFound       int64  `json:"idsFound"`
	RecordsFetched int64  `json:"recordsFetched"`
	ElapsedTimeSec int    `json:"elapsedTimeSec"`
	Finished       bool   `json:"finished"`
}

func (p Progress) String() string {
	return fmt.Sprintf("%v: ids=%v; fetched=%v; elapsed=%vs; finished=%v",
		p.Unit, p.IDsFound, p.RecordsFetched, p.ElapsedTimeSec, p.Finished)
}

// AddIDs and the methods below accept a nil receiver so callers need not check for a watcher.
func (w *UnitWatcher) AddIDs(n int) {
	if w != nil {
		atomic.AddInt64(&w.idsFound, int64(n))
	}
}

func (w *UnitWatcher) AddFetched(n int) {
	if w != nil {
		atomic.AddInt64(&w.fetched, int64(n))
	}
}

// Reset zeroes the counts, e.g. before a unit is retried.
func (w *UnitWatcher) Reset() {
	if w != nil {
		atomic.StoreInt64(&w.idsFound, 0)
		atomic.StoreInt64(&w.fetched, 0)
	}
}

func (w *UnitWatcher) Finish() {
	if w != nil {
		atomic.StoreInt32(&w.isFinished, 1)
	}
}

func (w *UnitWatcher) Render() Progress {
	return Progress{
		Unit:           w.name,
		IDsFound:       atomic.LoadInt64(&w.idsFound),
		RecordsFetched: atomic.LoadInt64(&w.fetched),
		ElapsedTimeSec: int(time.Since(w.startTime).Seconds()),
		Finished:       atomic.LoadInt32(&w.isFinished) == 1,
	}
}

// MockProgressManager discards progress.
type MockProgressManager struct{}

func (m *MockProgressManager) AddUnitWatcher(unitName string) *UnitWatcher {
	return nil
}

func (m *MockProgressManager) StartDumping() {}

func (m *MockProgressManager) StopDumping() {}
