// Package fraud flags suspicious attendance activity using configurable
// heuristics: implausibly rapid repeat marks, impossible travel between
// two locations, and one device marking many subjects in a short
// window. Thresholds are policy, not law; they are expected to be
// tuned per deployment.
package fraud

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// earthRadiusMeters for haversine distance.
const earthRadiusMeters = 6371000

// maxEventsPerKey bounds per-subject and per-device history so memory
// stays flat regardless of uptime.
const maxEventsPerKey = 32

// Config holds the heuristic thresholds.
type Config struct {
	// MinInterval is the minimum plausible gap between two marks by
	// the same subject.
	MinInterval time.Duration

	// DistanceThreshold is the distance in meters beyond which two
	// marks within TravelWindow are considered impossible travel.
	DistanceThreshold float64

	// TravelWindow is the time window for the impossible-travel check.
	TravelWindow time.Duration

	// DeviceShareWindow flags a device marking more than one subject
	// within this window.
	DeviceShareWindow time.Duration
}

// Event is one attendance mark as seen by the checker.
type Event struct {
	SubjectID   string
	DeviceID    string
	Timestamp   time.Time
	Latitude    float64
	Longitude   float64
	HasLocation bool
}

// Checker evaluates attendance events against recent history.
//
// All public methods are thread-safe, though in practice the checker
// is driven by the pipeline's single consumer.
type Checker struct {
	mu        sync.Mutex
	cfg       Config
	bySubject map[string][]Event
	byDevice  map[string][]Event
}

// NewChecker creates a checker with the given thresholds.
func NewChecker(cfg Config) *Checker {
	return &Checker{
		cfg:       cfg,
		bySubject: make(map[string][]Event),
		byDevice:  make(map[string][]Event),
	}
}

// Check evaluates an event against recorded history and then records
// it. Returns whether the event is suspicious and a short reason.
// A flagged event is still recorded so later events are judged against
// the full picture.
func (c *Checker) Check(e Event) (flagged bool, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r := c.checkRapidRepeat(e); r != "" {
		reason = r
	} else if r := c.checkImpossibleTravel(e); r != "" {
		reason = r
	} else if r := c.checkDeviceSharing(e); r != "" {
		reason = r
	}

	c.record(e)
	return reason != "", reason
}

// checkRapidRepeat flags a subject marking again inside MinInterval.
func (c *Checker) checkRapidRepeat(e Event) string {
	history := c.bySubject[e.SubjectID]
	if len(history) == 0 {
		return ""
	}
	last := history[len(history)-1]
	if gap := e.Timestamp.Sub(last.Timestamp); gap >= 0 && gap < c.cfg.MinInterval {
		return fmt.Sprintf("repeat mark after %s (minimum %s)", gap.Round(time.Second), c.cfg.MinInterval)
	}
	return ""
}

// checkImpossibleTravel flags a subject appearing at two locations too
// far apart within the travel window.
func (c *Checker) checkImpossibleTravel(e Event) string {
	if !e.HasLocation {
		return ""
	}
	for i := len(c.bySubject[e.SubjectID]) - 1; i >= 0; i-- {
		prev := c.bySubject[e.SubjectID][i]
		if !prev.HasLocation {
			continue
		}
		gap := e.Timestamp.Sub(prev.Timestamp)
		if gap < 0 || gap > c.cfg.TravelWindow {
			break
		}
		if d := haversineMeters(prev.Latitude, prev.Longitude, e.Latitude, e.Longitude); d > c.cfg.DistanceThreshold {
			return fmt.Sprintf("moved %.0fm in %s", d, gap.Round(time.Second))
		}
	}
	return ""
}

// checkDeviceSharing flags a device marking a different subject within
// the sharing window.
func (c *Checker) checkDeviceSharing(e Event) string {
	history := c.byDevice[e.DeviceID]
	for i := len(history) - 1; i >= 0; i-- {
		prev := history[i]
		gap := e.Timestamp.Sub(prev.Timestamp)
		if gap < 0 || gap > c.cfg.DeviceShareWindow {
			break
		}
		if prev.SubjectID != e.SubjectID {
			return fmt.Sprintf("device %s marked %s %s earlier", e.DeviceID, prev.SubjectID, gap.Round(time.Second))
		}
	}
	return ""
}

// record appends the event to both histories, pruning stale entries.
func (c *Checker) record(e Event) {
	maxWindow := c.cfg.MinInterval
	if c.cfg.TravelWindow > maxWindow {
		maxWindow = c.cfg.TravelWindow
	}
	if c.cfg.DeviceShareWindow > maxWindow {
		maxWindow = c.cfg.DeviceShareWindow
	}

	c.bySubject[e.SubjectID] = appendBounded(c.bySubject[e.SubjectID], e, maxWindow)
	c.byDevice[e.DeviceID] = appendBounded(c.byDevice[e.DeviceID], e, maxWindow)
}

// appendBounded appends an event and drops entries older than the
// retention window or beyond the per-key cap.
func appendBounded(history []Event, e Event, retain time.Duration) []Event {
	history = append(history, e)

	cutoff := e.Timestamp.Add(-retain)
	start := 0
	for start < len(history) && history[start].Timestamp.Before(cutoff) {
		start++
	}
	if over := len(history) - start - maxEventsPerKey; over > 0 {
		start += over
	}
	if start > 0 {
		history = append(history[:0], history[start:]...)
	}
	return history
}

// haversineMeters computes the great-circle distance between two
// coordinates.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180

	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lon2 - lon1) * degToRad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
