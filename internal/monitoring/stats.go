package monitoring

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/f1-telemetry/internal/packet"
)

// maxWindowSamples caps the speed samples kept for the percentile. Once full
// the oldest sample is overwritten; mean and max cover every sample.
const maxWindowSamples = 4096

// PacketStats tracks datagram counters for one session plus a window of
// decoded speed and RPM figures that is summarised and cleared by LogStats.
type PacketStats struct {
	mu        sync.Mutex
	received  int64
	bytes     int64
	decoded   int64
	foreign   int64
	malformed int64
	dropped   int64

	window    window
	lastReset time.Time
}

// window accumulates decoded records since the last reset.
type window struct {
	samples  int
	speedSum float64
	speedMax float64
	rpmSum   float64
	rpmMax   float64
	speeds   []float64 // ring of recent speeds for the percentile
	next     int
}

func (w *window) add(speed, rpm float64) {
	w.samples++
	w.speedSum += speed
	w.rpmSum += rpm
	w.speedMax = max(w.speedMax, speed)
	w.rpmMax = max(w.rpmMax, rpm)
	if len(w.speeds) < maxWindowSamples {
		w.speeds = append(w.speeds, speed)
		return
	}
	w.speeds[w.next] = speed
	w.next = (w.next + 1) % maxWindowSamples
}

func (w *window) reset() {
	speeds := w.speeds[:0]
	*w = window{speeds: speeds}
}

func (w *window) summary() WindowSummary {
	if w.samples == 0 {
		return WindowSummary{}
	}
	sorted := append([]float64(nil), w.speeds...)
	sort.Float64s(sorted)
	n := float64(w.samples)
	return WindowSummary{
		Samples:   w.samples,
		MeanSpeed: w.speedSum / n,
		MaxSpeed:  w.speedMax,
		P95Speed:  stat.Quantile(0.95, stat.Empirical, sorted, nil),
		MeanRPM:   w.rpmSum / n,
		MaxRPM:    w.rpmMax,
	}
}

// Snapshot is a point-in-time copy of the counters and the current window summary.
type Snapshot struct {
	Received  int64 `json:"received"`
	Bytes     int64 `json:"bytes"`
	Decoded   int64 `json:"decoded"`
	Foreign   int64 `json:"foreign"`
	Malformed int64 `json:"malformed"`
	Dropped   int64 `json:"dropped"`

	Window WindowSummary `json:"window"`
}

// WindowSummary describes the decoded records seen since the last reset.
// P95Speed is taken over the most recent maxWindowSamples records.
type WindowSummary struct {
	Samples   int     `json:"samples"`
	MeanSpeed float64 `json:"mean_speed_kph"`
	MaxSpeed  float64 `json:"max_speed_kph"`
	P95Speed  float64 `json:"p95_speed_kph"`
	MeanRPM   float64 `json:"mean_rpm"`
	MaxRPM    float64 `json:"max_rpm"`
}

// NewPacketStats creates an empty collector.
func NewPacketStats() *PacketStats {
	return &PacketStats{lastReset: time.Now()}
}

// AddPacket counts one received datagram.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.received++
	ps.bytes += int64(bytes)
}

// AddDropped counts one datagram or record discarded on a full queue.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.dropped++
}

// AddInspected counts the decoder's verdict for one datagram.
func (ps *PacketStats) AddInspected(reason packet.Reason, rec packet.CarTelemetryData) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	switch {
	case reason == packet.Decoded:
		ps.decoded++
		ps.window.add(float64(rec.Speed), float64(rec.EngineRPM))
	case reason == packet.ForeignPacket:
		ps.foreign++
	case reason.Malformed():
		ps.malformed++
	}
}

// Snapshot returns the counters without resetting the window.
func (ps *PacketStats) Snapshot() Snapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.snapshotLocked()
}

func (ps *PacketStats) snapshotLocked() Snapshot {
	return Snapshot{
		Received:  ps.received,
		Bytes:     ps.bytes,
		Decoded:   ps.decoded,
		Foreign:   ps.foreign,
		Malformed: ps.malformed,
		Dropped:   ps.dropped,
		Window:    ps.window.summary(),
	}
}

// GetAndReset returns the current snapshot and the time since the previous
// reset, then clears the sample window. Counters stay cumulative.
func (ps *PacketStats) GetAndReset() (Snapshot, time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration := now.Sub(ps.lastReset)
	snap := ps.snapshotLocked()
	ps.window.reset()
	ps.lastReset = now
	return snap, duration
}

// LogStats logs one line describing the last interval.
func (ps *PacketStats) LogStats() {
	snap, duration := ps.GetAndReset()
	if snap.Received == 0 {
		return
	}
	msg := fmt.Sprintf("Telemetry stats: %d received, %d decoded, %d foreign, %d malformed, %d dropped",
		snap.Received, snap.Decoded, snap.Foreign, snap.Malformed, snap.Dropped)
	if w := snap.Window; w.Samples > 0 && duration > 0 {
		msg += fmt.Sprintf("; last %s: %.1f rec/s, speed mean %.0f max %.0f p95 %.0f kph, rpm mean %.0f max %.0f",
			duration.Round(time.Second), float64(w.Samples)/duration.Seconds(),
			w.MeanSpeed, w.MaxSpeed, w.P95Speed, w.MeanRPM, w.MaxRPM)
	}
	Logf("%s", msg)
}
