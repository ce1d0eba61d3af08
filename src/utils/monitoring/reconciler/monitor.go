package monitor_reconciler

import (
	"math"
	"net/http"
	"time"

	"github.com/donation-platform/ledger-worker/src/utils/monitoring/report"
	"github.com/donation-platform/ledger-worker/src/utils/task"

	"github.com/gammazero/deque"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Stores and computes monitor counters
type Monitor struct {
	*task.Task

	Report report.Report

	historySize int

	// Reconciler is considered stuck after this long without a successful cycle
	maxIdleTime time.Duration

	collector *Collector

	// Processing speed
	LogCounts   *deque.Deque[uint64]
	CycleCounts *deque.Deque[uint64]
}

func NewMonitor() (self *Monitor) {
	self = new(Monitor)

	self.Report = report.Report{
		Run:        &report.RunReport{},
		Reconciler: &report.ReconcilerReport{},
		Publisher:  &report.PublisherReport{},
		Notifier:   &report.NotifierReport{},
	}

	// Initialization
	self.Report.Run.State.StartTimestamp.Store(time.Now().Unix())
	self.maxIdleTime = 5 * time.Minute

	self.collector = NewCollector().WithMonitor(self)

	self.Task = task.NewTask(nil, "monitor").
		WithPeriodicSubtaskFunc(time.Minute, self.monitorLogs).
		WithPeriodicSubtaskFunc(time.Minute, self.monitorCycles)
	return self.WithMaxHistorySize(30)
}

func (self *Monitor) WithMaxHistorySize(maxHistorySize int) *Monitor {
	self.historySize = maxHistorySize

	self.LogCounts = deque.New[uint64](self.historySize)
	self.CycleCounts = deque.New[uint64](self.historySize)

	return self
}

func (self *Monitor) WithMaxIdleTime(v time.Duration) *Monitor {
	self.maxIdleTime = v
	return self
}

func (self *Monitor) Clear() {
	self.LogCounts.Clear()
	self.CycleCounts.Clear()
}

func (self *Monitor) GetReport() *report.Report {
	return &self.Report
}

func (self *Monitor) GetPrometheusCollector() (collector prometheus.Collector) {
	return self.collector
}

func round(f float64) float64 {
	return math.Round(f*100) / 100
}

// Average growth per sample of a monotonic counter
func push(history *deque.Deque[uint64], size int, value uint64) float64 {
	history.PushBack(value)
	if history.Len() > size {
		history.PopFront()
	}
	return round(float64(history.Back()-history.Front()) / float64(history.Len()))
}

// Measure log processing speed
func (self *Monitor) monitorLogs() (err error) {
	loaded := self.Report.Reconciler.State.LogsFetched.Load()
	if loaded == 0 {
		// Neglect the first 0
		return
	}

	value := push(self.LogCounts, self.historySize, loaded)
	self.Report.Reconciler.State.AverageLogsPerMinute.Store(value)
	return
}

// Measure cycle speed
func (self *Monitor) monitorCycles() (err error) {
	loaded := self.Report.Reconciler.State.CyclesCompleted.Load()
	if loaded == 0 {
		return
	}

	value := push(self.CycleCounts, self.historySize, loaded)
	self.Report.Reconciler.State.AverageCyclesPerMinute.Store(value)
	return
}

func (self *Monitor) IsOK() bool {
	now := time.Now()
	if now.Unix()-self.Report.Run.State.StartTimestamp.Load() < int64(self.maxIdleTime/time.Second) {
		return true
	}

	// Running long enough, a cycle must have succeeded recently
	last := self.Report.Reconciler.State.LastSuccessfulCycleTimestamp.Load()
	return now.Sub(time.Unix(last, 0)) < self.maxIdleTime
}

func (self *Monitor) fill() {
	self.Report.Run.State.UpForSeconds.Store(uint64(time.Now().Unix() - self.Report.Run.State.StartTimestamp.Load()))

	checkpoint := self.Report.Reconciler.State.CheckpointSeconds.Load()
	if checkpoint > 0 {
		self.Report.Reconciler.State.CheckpointLagSeconds.Store(time.Now().Unix() - checkpoint)
	}
}

func (self *Monitor) OnGetState(c *gin.Context) {
	self.fill()
	c.JSON(http.StatusOK, &self.Report)
}

func (self *Monitor) OnGetHealth(c *gin.Context) {
	if self.IsOK() {
		c.Status(http.StatusOK)
	} else {
		c.Status(http.StatusServiceUnavailable)
	}
}
