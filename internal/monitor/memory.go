package monitor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// MemoryMonitor samples heap usage while a build runs and keeps the peak
type MemoryMonitor struct {
	mu                sync.RWMutex
	stats             MemoryStats
	peakAllocMB       float64
	stopMonitoring    chan struct{}
	done              chan struct{}
	monitoringStarted bool
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	AllocMB        float64   `json:"alloc_mb"`
	TotalAllocMB   float64   `json:"total_alloc_mb"`
	SysMB          float64   `json:"sys_mb"`
	NumGC          uint32    `json:"num_gc"`
	LastUpdated    time.Time `json:"last_updated"`
	GoroutineCount int       `json:"goroutine_count"`
}

// NewMemoryMonitor creates a new memory monitor
func NewMemoryMonitor() *MemoryMonitor {
	return &MemoryMonitor{}
}

// Start begins sampling every interval until Stop or ctx is done
func (m *MemoryMonitor) Start(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.monitoringStarted {
		return
	}

	m.monitoringStarted = true
	m.stopMonitoring = make(chan struct{})
	m.done = make(chan struct{})
	m.updateStats()

	go m.monitorLoop(ctx, interval, m.stopMonitoring, m.done)
}

// Stop ends sampling and takes a final sample
func (m *MemoryMonitor) Stop() {
	m.mu.Lock()

	if !m.monitoringStarted {
		m.mu.Unlock()
		return
	}

	m.monitoringStarted = false
	close(m.stopMonitoring)
	done := m.done
	m.mu.Unlock()

	<-done

	m.mu.Lock()
	m.updateStats()
	m.mu.Unlock()
}

// GetStats returns the latest sample
func (m *MemoryMonitor) GetStats() MemoryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.stats
}

// PeakAllocMB returns the largest heap allocation seen
func (m *MemoryMonitor) PeakAllocMB() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.peakAllocMB
}

// Fields returns the latest sample as structured log fields
func (m *MemoryMonitor) Fields() map[string]interface{} {
	stats := m.GetStats()

	return map[string]interface{}{
		"alloc_mb":      round(stats.AllocMB),
		"peak_alloc_mb": round(m.PeakAllocMB()),
		"sys_mb":        round(stats.SysMB),
		"num_gc":        stats.NumGC,
		"goroutines":    stats.GoroutineCount,
	}
}

// GetFormattedStats returns human-readable memory statistics
func (m *MemoryMonitor) GetFormattedStats() string {
	stats := m.GetStats()

	return fmt.Sprintf(`Memory Statistics:
  Allocated: %.2f MB
  Peak Allocated: %.2f MB
  Total Allocated: %.2f MB
  System: %.2f MB
  Goroutines: %d
  GC Runs: %d`,
		stats.AllocMB,
		m.PeakAllocMB(),
		stats.TotalAllocMB,
		stats.SysMB,
		stats.GoroutineCount,
		stats.NumGC,
	)
}

func (m *MemoryMonitor) monitorLoop(ctx context.Context, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			m.updateStats()
			m.mu.Unlock()
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// updateStats must be called with mu held
func (m *MemoryMonitor) updateStats() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.stats = MemoryStats{
		AllocMB:        float64(memStats.Alloc) / 1024 / 1024,
		TotalAllocMB:   float64(memStats.TotalAlloc) / 1024 / 1024,
		SysMB:          float64(memStats.Sys) / 1024 / 1024,
		NumGC:          memStats.NumGC,
		LastUpdated:    time.Now(),
		GoroutineCount: runtime.NumGoroutine(),
	}

	m.peakAllocMB = max(m.peakAllocMB, m.stats.AllocMB)
}

func round(mb float64) float64 {
	return float64(int64(mb*100)) / 100
}
