package routeplan

import (
	"math"

	"github.com/google/uuid"

	"github.com/platterly/platterly-backend/pkg/geo"
)

// distanceTolerance is the float slack inside which two candidate stops are
// treated as equidistant. The earlier stop in the input wins, which keeps the
// heuristic deterministic.
const distanceTolerance = 1e-9

// Per-kilometer and per-stop minutes of the linear ETA model. Calibrated
// against historical drop-off data, not a routing engine.
const (
	minutesPerKM   = 2.5
	minutesPerStop = 5.0
)

// Stop is one geocoded delivery candidate for the planner.
type Stop struct {
	DeliveryID uuid.UUID
	Point      geo.Point
}

// Plan is the planner's output: a visiting order plus the aggregate
// distance and time estimates for it.
type Plan struct {
	OrderedIDs  []uuid.UUID
	DistanceKM  float64
	DurationMin int
}

// PlanStops orders stops by repeated nearest-neighbor hops starting at the
// depot. The returned order is always a permutation of the input. Distance
// covers every hop including the return leg to the depot.
func PlanStops(depot geo.Point, stops []Stop) Plan {
	if len(stops) == 0 {
		return Plan{OrderedIDs: []uuid.UUID{}}
	}

	remaining := make([]Stop, len(stops))
	copy(remaining, stops)

	ordered := make([]uuid.UUID, 0, len(stops))
	current := depot
	total := 0.0

	for len(remaining) > 0 {
		best := 0
		bestDist := geo.HaversineKM(current, remaining[0].Point)
		for i := 1; i < len(remaining); i++ {
			d := geo.HaversineKM(current, remaining[i].Point)
			if d < bestDist-distanceTolerance {
				best = i
				bestDist = d
			}
		}

		ordered = append(ordered, remaining[best].DeliveryID)
		total += bestDist
		current = remaining[best].Point
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	total += geo.HaversineKM(current, depot)

	return Plan{
		OrderedIDs:  ordered,
		DistanceKM:  total,
		DurationMin: estimateMinutes(total, len(stops)),
	}
}

// RouteDistanceKM measures a fixed visiting order without reordering it,
// including the return leg. Used to stamp committed routes that keep a
// staff-chosen order.
func RouteDistanceKM(depot geo.Point, stops []Stop) float64 {
	current := depot
	total := 0.0
	for _, stop := range stops {
		total += geo.HaversineKM(current, stop.Point)
		current = stop.Point
	}
	if len(stops) > 0 {
		total += geo.HaversineKM(current, depot)
	}
	return total
}

func estimateMinutes(distanceKM float64, stopCount int) int {
	return int(math.Round(distanceKM*minutesPerKM + float64(stopCount)*minutesPerStop))
}
