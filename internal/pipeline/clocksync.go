package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	clockSyncProbeCount     = 5
	clockSyncProbeSpacing   = 80 * time.Millisecond
	clockSyncMaxValidRTTMs  = 2_000
	clockSyncEwmaAlpha      = 0.25
	clockSyncJitterFraction = 0.10
)

// TimeSource provides the exchange wall clock.
type TimeSource interface {
	ServerTime(ctx context.Context) (int64, error)
}

type clockProbe struct {
	offsetMs int64
	rttMs    int64
}

// ewma smooths clock offset samples. The first sample is taken as-is.
type ewma struct {
	initialized bool
	value       float64
}

func (e *ewma) update(sampleMs int64) int64 {
	if !e.initialized {
		e.value = float64(sampleMs)
		e.initialized = true
	} else {
		e.value += clockSyncEwmaAlpha * (float64(sampleMs) - e.value)
	}
	return int64(e.value)
}

// ClockSync periodically samples the exchange server time and maintains the
// smoothed server-minus-local offset used by the latency decomposition.
type ClockSync struct {
	source     TimeSource
	telemetry  *Telemetry
	intervalMs int64
}

// NewClockSync builds the clock synchronization task.
func NewClockSync(source TimeSource, telemetry *Telemetry, intervalMs int64) *ClockSync {
	return &ClockSync{source: source, telemetry: telemetry, intervalMs: intervalMs}
}

// Run samples immediately, then on the configured interval jittered +-10%.
func (c *ClockSync) Run(ctx context.Context) {
	logger := log.With().Str("component", "clock-sync").Logger()
	smoother := &ewma{}

	for {
		probe, err := c.sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Msg("clock sync sample failed")
		} else {
			smoothed := smoother.update(probe.offsetMs)
			c.telemetry.SetClockOffset(smoothed)
			logger.Debug().
				Int64("offsetMs", probe.offsetMs).
				Int64("smoothedMs", smoothed).
				Int64("rttMs", probe.rttMs).
				Msg("clock offset updated")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(jitteredInterval(c.intervalMs)):
		}
	}
}

// sample fires a burst of probes, keeps those with a plausible round trip,
// and blends the best-RTT offset with the median of the top candidates.
func (c *ClockSync) sample(ctx context.Context) (clockProbe, error) {
	probes := make([]clockProbe, 0, clockSyncProbeCount)

	for i := 0; i < clockSyncProbeCount; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return clockProbe{}, ctx.Err()
			case <-time.After(clockSyncProbeSpacing):
			}
		}

		probe, err := c.probeOnce(ctx)
		if err != nil {
			continue
		}
		if probe.rttMs >= 0 && probe.rttMs <= clockSyncMaxValidRTTMs {
			probes = append(probes, probe)
		}
	}

	if len(probes) == 0 {
		return clockProbe{}, errors.New("all clock sync probes failed")
	}

	// Trust low-RTT samples first, then stabilize with the median of the top
	// candidates.
	for i := 1; i < len(probes); i++ {
		for j := i; j > 0 && probes[j].rttMs < probes[j-1].rttMs; j-- {
			probes[j], probes[j-1] = probes[j-1], probes[j]
		}
	}
	best := probes[0]

	candidateCount := len(probes)
	if candidateCount > 3 {
		candidateCount = 3
	}
	offsets := make([]int64, candidateCount)
	for i := 0; i < candidateCount; i++ {
		offsets[i] = probes[i].offsetMs
	}
	for i := 1; i < len(offsets); i++ {
		for j := i; j > 0 && offsets[j] < offsets[j-1]; j-- {
			offsets[j], offsets[j-1] = offsets[j-1], offsets[j]
		}
	}
	median := offsets[len(offsets)/2]

	return clockProbe{
		offsetMs: (2*best.offsetMs + median) / 3,
		rttMs:    best.rttMs,
	}, nil
}

// probeOnce measures one NTP-style midpoint offset.
func (c *ClockSync) probeOnce(ctx context.Context) (clockProbe, error) {
	startMs := time.Now().UnixMilli()
	serverMs, err := c.source.ServerTime(ctx)
	if err != nil {
		return clockProbe{}, err
	}
	endMs := time.Now().UnixMilli()

	rtt := endMs - startMs
	if rtt < 0 {
		rtt = 0
	}
	midpoint := startMs + rtt/2
	return clockProbe{offsetMs: serverMs - midpoint, rttMs: rtt}, nil
}

func jitteredInterval(intervalMs int64) time.Duration {
	jitter := 1 - clockSyncJitterFraction + 2*clockSyncJitterFraction*rand.Float64()
	return time.Duration(float64(intervalMs)*jitter) * time.Millisecond
}

// adjustedNetworkLatency converts the locally-measured exchange latency into
// server-clock terms: raw is now_local - event_time_server, and adding the
// server-minus-local offset re-expresses "now" on the server clock. Clamped
// at zero since a negative network latency is measurement noise.
func adjustedNetworkLatency(rawMs int64, clockOffsetMs int64, offsetKnown bool) int64 {
	adjusted := rawMs
	if offsetKnown {
		adjusted += clockOffsetMs
	}
	if adjusted < 0 {
		return 0
	}
	return adjusted
}
