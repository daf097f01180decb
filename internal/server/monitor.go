package server

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const monitorInterval = 15 * time.Second

// processMonitor periodically samples this process's resident set size
// for INFO's memory section, so the engine goroutine never calls into
// gopsutil on the dispatch path.
type processMonitor struct {
	logger *slog.Logger
	close  chan struct{}
	wg     sync.WaitGroup
	rss    atomic.Uint64
}

func newProcessMonitor(logger *slog.Logger) *processMonitor {
	return &processMonitor{
		logger: logger.With("component", "process_monitor"),
		close:  make(chan struct{}),
	}
}

func (pm *processMonitor) Start() {
	pm.wg.Add(1)
	go pm.run()
}

func (pm *processMonitor) Stop() {
	close(pm.close)
	pm.wg.Wait()
}

// RSSBytes returns the most recently sampled resident set size.
func (pm *processMonitor) RSSBytes() uint64 { return pm.rss.Load() }

func (pm *processMonitor) run() {
	defer pm.wg.Done()

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	pm.collect()
	for {
		select {
		case <-pm.close:
			return
		case <-ticker.C:
			pm.collect()
		}
	}
}

func (pm *processMonitor) collect() {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		pm.logger.Debug("failed to open own process", "error", err)
		return
	}
	info, err := p.MemoryInfo()
	if err != nil {
		pm.logger.Debug("failed to collect memory stats", "error", err)
		return
	}
	pm.rss.Store(info.RSS)
}
