package metrics

import (
	"context"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// SystemMetrics holds one metrics snapshot
type SystemMetrics struct {
	CPUPercent        float64 // System-wide CPU usage (0-100%)
	ProcessCPUPercent float64 // This process, per core; can exceed 100%
	MemoryPercent     float64
	ProcessRSSMB      float64
	OpenFiles         int32 // Open descriptors of this process; -1 if unknown
	DiskReadMBps      float64
	DiskWriteMBps     float64
	Gauges            map[string]int
	Timestamp         time.Time
}

// Collector periodically collects and logs process and system metrics,
// plus any registered gauges such as open elevation cells.
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	lastDiskStats map[string]disk.IOCountersStat
	lastDiskTime  time.Time

	mu          sync.RWMutex
	gauges      map[string]func() int
	lastMetrics *SystemMetrics
}

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
		gauges:   make(map[string]func() int),
	}
}

// AddGauge registers a value sampled on every collection
func (c *Collector) AddGauge(name string, fn func() int) {
	c.mu.Lock()
	c.gauges[name] = fn
	c.mu.Unlock()
}

// Start begins periodic metrics collection. Returns when context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// GetMetrics returns the last collected metrics
func (c *Collector) GetMetrics() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

// Collect takes a snapshot, logs it and returns it
func (c *Collector) Collect() *SystemMetrics {
	m := &SystemMetrics{
		OpenFiles: -1,
		Gauges:    make(map[string]int),
		Timestamp: time.Now(),
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPUPercent = pct[0]
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		m.MemoryPercent = vmem.UsedPercent
	}

	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			m.ProcessCPUPercent = pct
		}
		if info, err := c.proc.MemoryInfo(); err == nil {
			m.ProcessRSSMB = float64(info.RSS) / (1024 * 1024)
		}
		if n, err := c.proc.NumFDs(); err == nil {
			m.OpenFiles = n
		}
	}

	m.DiskReadMBps, m.DiskWriteMBps = c.diskRates()

	c.mu.Lock()
	for name, fn := range c.gauges {
		m.Gauges[name] = fn()
	}
	c.lastMetrics = m
	c.mu.Unlock()

	fields := []zap.Field{
		zap.Float64("sys_cpu", m.CPUPercent),
		zap.Float64("proc_cpu", m.ProcessCPUPercent),
		zap.Float64("mem_pct", m.MemoryPercent),
		zap.String("rss", formatMB(m.ProcessRSSMB)),
		zap.Int32("open_files", m.OpenFiles),
		zap.String("disk_r", formatMB(m.DiskReadMBps)+"/s"),
		zap.String("disk_w", formatMB(m.DiskWriteMBps)+"/s"),
	}
	names := make([]string, 0, len(m.Gauges))
	for name := range m.Gauges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fields = append(fields, zap.Int(name, m.Gauges[name]))
	}
	c.logger.Info("System metrics", fields...)

	return m
}

// diskRates returns read and write MB/s since the previous call
func (c *Collector) diskRates() (readMBps, writeMBps float64) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0
	}
	now := time.Now()

	last, lastTime := c.lastDiskStats, c.lastDiskTime
	c.lastDiskStats, c.lastDiskTime = counters, now
	if last == nil {
		return 0, 0
	}

	elapsed := now.Sub(lastTime).Seconds()
	if elapsed < 0.1 {
		return 0, 0
	}

	var read, write uint64
	for name, counter := range counters {
		prev, ok := last[name]
		if !ok {
			continue
		}
		// counters can wrap
		if counter.ReadBytes >= prev.ReadBytes {
			read += counter.ReadBytes - prev.ReadBytes
		}
		if counter.WriteBytes >= prev.WriteBytes {
			write += counter.WriteBytes - prev.WriteBytes
		}
	}

	return float64(read) / elapsed / (1024 * 1024), float64(write) / elapsed / (1024 * 1024)
}

func formatMB(mb float64) string {
	return strconv.FormatFloat(mb, 'f', 1, 64) + " MB"
}
