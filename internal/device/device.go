// Package device keeps a live snapshot of what the client device can do and
// turns it into transition tuning advice.
package device

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/large-farva/transition-engine/internal/events"
	"github.com/large-farva/transition-engine/internal/motion"
)

type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// ConnectionType is the effective connection class reported by the host.
type ConnectionType string

const (
	ConnSlow2G   ConnectionType = "slow-2g"
	Conn2G       ConnectionType = "2g"
	Conn3G       ConnectionType = "3g"
	Conn4G       ConnectionType = "4g"
	ConnWifi     ConnectionType = "wifi"
	ConnEthernet ConnectionType = "ethernet"
	ConnUnknown  ConnectionType = "unknown"
)

// IsSlow reports whether c is 2G-class.
func (c ConnectionType) IsSlow() bool { return c == ConnSlow2G || c == Conn2G }

type Connection struct {
	Type         ConnectionType `json:"type"`
	DownlinkMbps float64        `json:"downlink_mbps"`
	SaveData     bool           `json:"save_data"`
}

type Battery struct {
	Level    float64 `json:"level"`
	Charging bool    `json:"charging"`
}

// LowBatteryLevel is the charge at or below which a discharging battery
// counts as low.
const LowBatteryLevel = 0.2

// Capabilities is one snapshot of the device. It is a value: callers get a
// copy and never see later changes.
type Capabilities struct {
	IsMobile       bool               `json:"is_mobile"`
	IsTablet       bool               `json:"is_tablet"`
	IsInstalledApp bool               `json:"is_installed_app"`
	Orientation    Orientation        `json:"orientation"`
	Online         bool               `json:"online"`
	Connection     Option[Connection] `json:"connection"`
	Battery        Option[Battery]    `json:"battery"`
	IsLowBattery   bool               `json:"is_low_battery"`
	CPUCores       int                `json:"cpu_cores"`
	MemoryGB       Option[float64]    `json:"memory_gb"`
}

// ConnectionType returns the effective connection class, or ConnUnknown when
// the host has no connection API.
func (c Capabilities) ConnectionType() ConnectionType {
	if conn, ok := c.Connection.Get(); ok {
		return conn.Type
	}
	return ConnUnknown
}

// Profile is the static description of a device the snapshot starts from.
type Profile struct {
	UserAgent   string      `json:"user_agent" toml:"user_agent"`
	DisplayMode string      `json:"display_mode" toml:"display_mode"`
	Orientation Orientation `json:"orientation" toml:"orientation"`
	CPUCores    int         `json:"cpu_cores" toml:"cpu_cores"`
	MemoryGB    float64     `json:"memory_gb" toml:"memory_gb"`
}

// DefaultCPUCores is assumed when the host does not report concurrency.
const DefaultCPUCores = 4

var mobileUA = regexp.MustCompile(`(?i)android|webos|iphone|ipod|blackberry|iemobile|opera mini|mobile`)

// FromProfile builds the initial snapshot. Battery and connection readings
// are absent until the host reports them.
func FromProfile(p Profile) Capabilities {
	caps := Capabilities{
		IsMobile:       mobileUA.MatchString(p.UserAgent),
		IsTablet:       isTablet(p.UserAgent),
		IsInstalledApp: isInstalled(p.DisplayMode),
		Orientation:    p.Orientation,
		Online:         true,
		CPUCores:       p.CPUCores,
		MemoryGB:       None[float64](),
	}
	if caps.Orientation == "" {
		caps.Orientation = Portrait
	}
	if caps.CPUCores <= 0 {
		caps.CPUCores = DefaultCPUCores
	}
	if p.MemoryGB > 0 {
		caps.MemoryGB = Some(p.MemoryGB)
	}
	return caps
}

func isTablet(ua string) bool {
	l := strings.ToLower(ua)
	if strings.Contains(l, "ipad") || strings.Contains(l, "tablet") {
		return true
	}
	return strings.Contains(l, "android") && !strings.Contains(l, "mobile")
}

func isInstalled(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "standalone", "fullscreen", "minimal-ui":
		return true
	}
	return false
}

// Optimization is the tuning advice derived from a snapshot. A zero
// RecommendedDuration means the device imposes no duration cap.
type Optimization struct {
	ShouldOptimize      bool          `json:"should_optimize"`
	Tier                motion.Tier   `json:"tier"`
	RecommendedDuration time.Duration `json:"-"`
	RecommendedEasing   string        `json:"recommended_easing,omitempty"`
	Reasons             []string      `json:"reasons,omitempty"`
}

// baseDuration is what installed-app scaling applies to when no other
// condition picked a duration.
const baseDuration = 300 * time.Millisecond

const installedFloor = 100 * time.Millisecond

// Optimize derives tuning advice for caps. Conditions compose by keeping the
// smallest duration and the most severe tier.
func Optimize(caps Capabilities) Optimization {
	var o Optimization
	constrain := func(tier motion.Tier, d time.Duration, reason string) {
		o.ShouldOptimize = true
		o.Tier = motion.MaxTier(o.Tier, tier)
		if o.RecommendedDuration == 0 || d < o.RecommendedDuration {
			o.RecommendedDuration = d
		}
		o.Reasons = append(o.Reasons, reason)
	}

	if caps.IsLowBattery {
		constrain(motion.TierSimplify, 150*time.Millisecond, "low-battery")
	}
	if caps.ConnectionType().IsSlow() {
		constrain(motion.TierSimplify, 100*time.Millisecond, "slow-network")
	}
	if caps.CPUCores <= 2 {
		constrain(motion.TierReduce, 200*time.Millisecond, "low-cpu")
	}

	if caps.IsInstalledApp {
		chosen := o.RecommendedDuration
		if chosen == 0 {
			chosen = baseDuration
		}
		scaled := chosen * 9 / 10
		if scaled < installedFloor {
			scaled = installedFloor
		}
		// The floor never lengthens a duration another condition shortened.
		if o.RecommendedDuration != 0 && o.RecommendedDuration < scaled {
			scaled = o.RecommendedDuration
		}
		o.ShouldOptimize = true
		o.RecommendedDuration = scaled
		o.RecommendedEasing = motion.EaseApp
		o.Reasons = append(o.Reasons, "installed-app")
	}
	if caps.IsMobile {
		o.ShouldOptimize = true
		o.RecommendedEasing = motion.EaseMobile
		o.Reasons = append(o.Reasons, "mobile")
	}
	return o
}

// CanHandleComplex reports whether caps leave room for elaborate transitions.
func CanHandleComplex(caps Capabilities) bool {
	return !caps.IsLowBattery && !caps.ConnectionType().IsSlow() && caps.CPUCores > 2
}

// Probe keeps the live snapshot up to date from host signals and notifies
// listeners when orientation, network or battery state actually changes.
type Probe struct {
	log  *zap.Logger
	snap Capabilities

	orientation events.Signal[Capabilities]
	network     events.Signal[Capabilities]
	battery     events.Signal[Capabilities]

	subs events.Group
}

// NewProbe starts from profile and subscribes to the host's device signals.
func NewProbe(logger *zap.Logger, bus *events.Bus, profile Profile) *Probe {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Probe{
		log:  logger.Named("device"),
		snap: FromProfile(profile),
	}
	p.subs.Add(events.On(bus, events.OrientationChange, p.handleOrientation))
	p.subs.Add(events.On(bus, events.ConnectionChange, p.handleConnection))
	p.subs.Add(events.On(bus, events.OnlineChange, p.handleOnline))
	p.subs.Add(events.On(bus, events.BatteryChange, p.handleBattery))

	p.log.Debug("device profile",
		zap.Bool("mobile", p.snap.IsMobile),
		zap.Bool("tablet", p.snap.IsTablet),
		zap.Bool("installed", p.snap.IsInstalledApp),
		zap.Int("cores", p.snap.CPUCores))
	return p
}

// Snapshot returns the last computed capabilities.
func (p *Probe) Snapshot() Capabilities { return p.snap }

func (p *Probe) OnOrientation(fn func(Capabilities)) (remove func()) { return p.orientation.Add(fn) }
func (p *Probe) OnNetwork(fn func(Capabilities)) (remove func())     { return p.network.Add(fn) }
func (p *Probe) OnBattery(fn func(Capabilities)) (remove func())     { return p.battery.Add(fn) }

// Optimization is Optimize applied to the current snapshot.
func (p *Probe) Optimization() Optimization { return Optimize(p.snap) }

func (p *Probe) CanHandleComplexTransitions() bool { return CanHandleComplex(p.snap) }

func (p *Probe) handleOrientation(e events.OrientationEvent) {
	o := Orientation(e.Orientation)
	if o == p.snap.Orientation {
		return
	}
	p.snap.Orientation = o
	p.log.Debug("orientation changed", zap.String("orientation", string(o)))
	p.orientation.Emit(p.snap)
}

func (p *Probe) handleConnection(e events.ConnectionEvent) {
	next := Some(Connection{
		Type:         ConnectionType(e.EffectiveType),
		DownlinkMbps: e.DownlinkMbps,
		SaveData:     e.SaveData,
	})
	if next == p.snap.Connection {
		return
	}
	p.snap.Connection = next
	p.log.Debug("connection changed", zap.String("type", e.EffectiveType))
	p.network.Emit(p.snap)
}

func (p *Probe) handleOnline(e events.OnlineEvent) {
	if e.Online == p.snap.Online {
		return
	}
	p.snap.Online = e.Online
	p.log.Debug("online changed", zap.Bool("online", e.Online))
	p.network.Emit(p.snap)
}

func (p *Probe) handleBattery(e events.BatteryEvent) {
	if !e.Available {
		// No battery API: keep whatever we had and stay quiet.
		return
	}
	next := Some(Battery{Level: e.Level, Charging: e.Charging})
	if next == p.snap.Battery {
		return
	}
	p.snap.Battery = next
	p.snap.IsLowBattery = !e.Charging && e.Level <= LowBatteryLevel
	p.log.Debug("battery changed",
		zap.Float64("level", e.Level),
		zap.Bool("charging", e.Charging),
		zap.Bool("low", p.snap.IsLowBattery))
	p.battery.Emit(p.snap)
}

// Destroy detaches from the bus and drops every listener. Safe to call more
// than once.
func (p *Probe) Destroy() {
	p.subs.Close()
	p.orientation.Reset()
	p.network.Reset()
	p.battery.Reset()
}
