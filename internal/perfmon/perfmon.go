// Package perfmon measures frame timing while a transition plays and
// decides when the device is struggling badly enough to fall back.
package perfmon

import (
	"time"

	"go.uber.org/zap"

	"github.com/large-farva/transition-engine/internal/device"
	"github.com/large-farva/transition-engine/internal/events"
	"github.com/large-farva/transition-engine/internal/motion"
	"github.com/large-farva/transition-engine/internal/platform"
	"github.com/large-farva/transition-engine/internal/ring"
)

// FrameBudget is the longest a frame may take at 60fps before it counts as
// dropped.
const FrameBudget = 16670 * time.Microsecond

type Config struct {
	HistorySize      int
	FrameWindow      int
	MetricsWindow    int
	MinFrameRate     float64
	MaxDroppedFrames int
	MaxMemoryRatio   float64
	Cooldown         time.Duration
}

func DefaultConfig() Config {
	return Config{
		HistorySize:      50,
		FrameWindow:      100,
		MetricsWindow:    30,
		MinFrameRate:     30,
		MaxDroppedFrames: 5,
		MaxMemoryRatio:   0.8,
		Cooldown:         5 * time.Second,
	}
}

// Sample is the outcome of one monitored session.
type Sample struct {
	Label            string              `json:"label"`
	Start            time.Time           `json:"start"`
	End              time.Time           `json:"end"`
	FrameCount       int                 `json:"frame_count"`
	DroppedFrames    int                 `json:"dropped_frames"`
	WorstFrame       time.Duration       `json:"worst_frame_ns"`
	AverageFrameRate float64             `json:"average_frame_rate"`
	Device           device.Capabilities `json:"device"`
}

func (s Sample) Duration() time.Duration { return s.End.Sub(s.Start) }

// Metrics is the rolling view over recent frames.
type Metrics struct {
	FrameRate     float64 `json:"frame_rate"`
	Frames        int     `json:"frames"`
	DroppedFrames int     `json:"dropped_frames"`
	Monitoring    bool    `json:"monitoring"`
	LowPerf       bool    `json:"low_performance"`
}

// MemoryReader reports used/limit heap memory, when the host knows it.
type MemoryReader interface {
	MemoryRatio() (float64, bool)
}

// MemoryFunc adapts a function to MemoryReader.
type MemoryFunc func() (float64, bool)

func (f MemoryFunc) MemoryRatio() (float64, bool) { return f() }

// Snapshotter supplies the current device capabilities.
type Snapshotter interface {
	Snapshot() device.Capabilities
}

type session struct {
	label   string
	start   time.Time
	last    time.Time
	frames  int
	dropped int
	worst   time.Duration
	frame   platform.Timer
}

// Monitor tracks at most one session at a time.
type Monitor struct {
	log    *zap.Logger
	host   platform.Host
	bus    *events.Bus
	device Snapshotter
	memory MemoryReader
	cfg    Config

	current    *session
	frameRates *ring.Buffer[float64]
	history    *ring.Buffer[Sample]

	reducedMotion bool
	reducedSource func() bool
	lowPerf       bool
	cooldown      platform.Timer

	subs      events.Group
	destroyed bool
}

func New(logger *zap.Logger, host platform.Host, bus *events.Bus, dev Snapshotter, cfg Config) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.FrameWindow <= 0 {
		cfg.FrameWindow = def.FrameWindow
	}
	if cfg.MetricsWindow <= 0 {
		cfg.MetricsWindow = def.MetricsWindow
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	m := &Monitor{
		log:        logger.Named("perfmon"),
		host:       host,
		bus:        bus,
		device:     dev,
		cfg:        cfg,
		frameRates: ring.New[float64](cfg.FrameWindow),
		history:    ring.New[Sample](cfg.HistorySize),
	}
	m.subs.Add(events.On(bus, events.ReducedMotionChange, func(e events.ReducedMotionEvent) {
		m.reducedMotion = e.Reduced
	}))
	return m
}

// SetMemoryReader installs the source of memory pressure readings.
func (m *Monitor) SetMemoryReader(r MemoryReader) { m.memory = r }

// SetReducedMotionSource replaces the raw system signal as the input to
// the reduced-motion row of the intensity table. The source is consulted
// on every recommendation.
func (m *Monitor) SetReducedMotionSource(fn func() bool) { m.reducedSource = fn }

func (m *Monitor) reducedMotionActive() bool {
	if m.reducedSource != nil {
		return m.reducedSource()
	}
	return m.reducedMotion
}

// Monitoring reports whether a session is open.
func (m *Monitor) Monitoring() bool { return m.current != nil }

// Start opens a session. An open session is discarded first; its frames
// are never folded into the new one.
func (m *Monitor) Start(label string) {
	if m.destroyed {
		return
	}
	if m.current != nil {
		m.log.Debug("discarding open session", zap.String("label", m.current.label))
		m.discard()
	}
	now := m.host.Now()
	s := &session{label: label, start: now, last: now}
	m.current = s
	s.frame = m.host.RequestFrame(func(ts time.Time) { m.tick(s, ts) })
}

func (m *Monitor) discard() {
	if m.current.frame != nil {
		m.current.frame.Stop()
	}
	m.current = nil
}

func (m *Monitor) tick(s *session, ts time.Time) {
	if m.current != s {
		return
	}
	delta := ts.Sub(s.last)
	s.last = ts
	if delta > 0 {
		s.frames++
		if delta > FrameBudget {
			s.dropped++
		}
		if delta > s.worst {
			s.worst = delta
		}
		m.frameRates.Push(float64(time.Second) / float64(delta))
	}
	s.frame = m.host.RequestFrame(func(ts time.Time) { m.tick(s, ts) })
}

// Stop closes the open session and returns its sample. It returns false
// when nothing was being monitored.
func (m *Monitor) Stop() (Sample, bool) {
	if m.current == nil {
		return Sample{}, false
	}
	s := m.current
	m.discard()

	end := m.host.Now()
	sample := Sample{
		Label:         s.label,
		Start:         s.start,
		End:           end,
		FrameCount:    s.frames,
		DroppedFrames: s.dropped,
		WorstFrame:    s.worst,
	}
	if secs := end.Sub(s.start).Seconds(); secs > 0 {
		sample.AverageFrameRate = float64(s.frames) / secs
	}
	if m.device != nil {
		sample.Device = m.device.Snapshot()
	}
	m.history.Push(sample)
	m.evaluate(sample)
	return sample, true
}

func (m *Monitor) memoryRatio() (float64, bool) {
	if m.memory == nil {
		return 0, false
	}
	return m.memory.MemoryRatio()
}

// ShouldFallback is the fallback predicate over a finished sample. A session
// that saw no frames says nothing about frame rate.
func (m *Monitor) ShouldFallback(s Sample) bool {
	if s.FrameCount > 0 && s.AverageFrameRate < m.cfg.MinFrameRate {
		return true
	}
	if s.DroppedFrames > m.cfg.MaxDroppedFrames {
		return true
	}
	if ratio, ok := m.memoryRatio(); ok && ratio > m.cfg.MaxMemoryRatio {
		return true
	}
	return false
}

func (m *Monitor) evaluate(s Sample) {
	if !m.ShouldFallback(s) {
		return
	}
	recommended := m.RecommendIntensity(&s)
	ev := events.PerformanceFallbackEvent{
		Label:                s.Label,
		DurationMs:           s.Duration().Milliseconds(),
		FrameCount:           s.FrameCount,
		DroppedFrames:        s.DroppedFrames,
		WorstFrameMs:         float64(s.WorstFrame) / float64(time.Millisecond),
		AverageFrameRate:     s.AverageFrameRate,
		RecommendedIntensity: recommended,
	}
	if ratio, ok := m.memoryRatio(); ok {
		ev.MemoryRatio = &ratio
	}
	m.log.Info("performance fallback triggered",
		zap.String("label", s.Label),
		zap.Float64("fps", s.AverageFrameRate),
		zap.Int("dropped", s.DroppedFrames),
		zap.Stringer("recommended", recommended))

	m.markLowPerformance()
	if err := m.bus.Publish(ev); err != nil {
		m.log.Warn("publish fallback event", zap.Error(err))
	}
}

func (m *Monitor) markLowPerformance() {
	m.lowPerf = true
	if m.cooldown != nil {
		m.cooldown.Stop()
	}
	m.cooldown = m.host.AfterFunc(m.cfg.Cooldown, m.checkRecovered)
}

func (m *Monitor) checkRecovered() {
	m.cooldown = nil
	if m.destroyed || !m.lowPerf {
		return
	}
	cur := m.CurrentMetrics()
	if cur.Frames > 0 && cur.FrameRate > m.cfg.MinFrameRate+10 {
		m.lowPerf = false
		m.log.Info("performance recovered", zap.Float64("fps", cur.FrameRate))
		return
	}
	m.cooldown = m.host.AfterFunc(m.cfg.Cooldown, m.checkRecovered)
}

// IsLowPerformance reports the transient low-performance flag.
func (m *Monitor) IsLowPerformance() bool { return m.lowPerf }

// CurrentMetrics averages the most recent frame rates.
func (m *Monitor) CurrentMetrics() Metrics {
	recent := m.frameRates.Tail(m.cfg.MetricsWindow)
	out := Metrics{Frames: len(recent), Monitoring: m.current != nil, LowPerf: m.lowPerf}
	if m.current != nil {
		out.DroppedFrames = m.current.dropped
	}
	if len(recent) == 0 {
		return out
	}
	var sum float64
	for _, r := range recent {
		sum += r
	}
	out.FrameRate = sum / float64(len(recent))
	return out
}

// History returns finished samples, oldest first.
func (m *Monitor) History() []Sample { return m.history.All() }

// RecommendIntensity evaluates the intensity decision table against s, or
// against the live metrics when s is nil.
func (m *Monitor) RecommendIntensity(s *Sample) motion.Intensity {
	var r Reading
	if s != nil {
		r = Reading{FrameRate: s.AverageFrameRate, DroppedFrames: s.DroppedFrames, Known: s.FrameCount > 0}
	} else {
		cur := m.CurrentMetrics()
		r = Reading{FrameRate: cur.FrameRate, DroppedFrames: cur.DroppedFrames, Known: cur.Frames > 0}
	}
	var caps device.Capabilities
	if m.device != nil {
		caps = m.device.Snapshot()
	}
	return Recommend(m.reducedMotionActive(), caps, r)
}

// Reading is the frame evidence Recommend works from. Known is false when
// no frames have been measured.
type Reading struct {
	FrameRate     float64
	DroppedFrames int
	Known         bool
}

// Recommend is the fixed intensity decision table. Rows are evaluated top
// to bottom and the first match wins.
func Recommend(reducedMotion bool, caps device.Capabilities, r Reading) motion.Intensity {
	mem, haveMem := caps.MemoryGB.Get()
	switch {
	case reducedMotion:
		return motion.Minimal
	case caps.CPUCores > 0 && caps.CPUCores <= 2,
		haveMem && mem <= 2,
		lowPowerHint(caps):
		return motion.Reduced
	case r.Known && (r.FrameRate < 30 || r.DroppedFrames > 5):
		return motion.Reduced
	case r.Known && (r.FrameRate < 45 || r.DroppedFrames > 2):
		return motion.Normal
	case r.Known && r.FrameRate >= 55 && caps.CPUCores >= 8 && (!haveMem || mem >= 8):
		return motion.Enhanced
	}
	return motion.Normal
}

// lowPowerHint picks up power-saving modes the host tells us about.
func lowPowerHint(caps device.Capabilities) bool {
	if caps.IsLowBattery {
		return true
	}
	conn, ok := caps.Connection.Get()
	return ok && conn.SaveData
}

// Destroy stops any session and timers and detaches from the bus. Safe to
// call more than once.
func (m *Monitor) Destroy() {
	if m.destroyed {
		return
	}
	m.destroyed = true
	if m.current != nil {
		m.discard()
	}
	if m.cooldown != nil {
		m.cooldown.Stop()
		m.cooldown = nil
	}
	m.subs.Close()
}
