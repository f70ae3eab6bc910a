package routeplan

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platterly/platterly-backend/pkg/geo"
)

var testDepot = geo.Point{Lat: 33.4942, Lng: -111.9261}

func namedStops() (a, b, c Stop) {
	// B sits closest to the depot, A closest to B, C far out.
	a = Stop{DeliveryID: uuid.New(), Point: geo.Point{Lat: 33.4700, Lng: -111.9500}}
	b = Stop{DeliveryID: uuid.New(), Point: geo.Point{Lat: 33.4900, Lng: -111.9300}}
	c = Stop{DeliveryID: uuid.New(), Point: geo.Point{Lat: 33.4000, Lng: -112.0500}}
	return a, b, c
}

func TestPlanStopsNearestNeighborOrder(t *testing.T) {
	a, b, c := namedStops()

	for _, input := range [][]Stop{
		{a, b, c},
		{c, a, b},
		{b, c, a},
	} {
		plan := PlanStops(testDepot, input)
		require.Len(t, plan.OrderedIDs, 3)
		assert.Equal(t, b.DeliveryID, plan.OrderedIDs[0])
		assert.Equal(t, a.DeliveryID, plan.OrderedIDs[1])
		assert.Equal(t, c.DeliveryID, plan.OrderedIDs[2])
	}
}

func TestPlanStopsReturnsPermutation(t *testing.T) {
	a, b, c := namedStops()
	plan := PlanStops(testDepot, []Stop{a, b, c})

	seen := map[uuid.UUID]int{}
	for _, id := range plan.OrderedIDs {
		seen[id]++
	}
	require.Len(t, seen, 3)
	for _, stop := range []Stop{a, b, c} {
		assert.Equal(t, 1, seen[stop.DeliveryID])
	}
}

func TestPlanStopsNotWorseThanInputOrder(t *testing.T) {
	a, b, c := namedStops()
	input := []Stop{a, b, c}

	plan := PlanStops(testDepot, input)
	unoptimized := RouteDistanceKM(testDepot, input)
	assert.LessOrEqual(t, plan.DistanceKM, unoptimized)
}

func TestPlanStopsTieBreakPrefersEarlierInput(t *testing.T) {
	point := geo.Point{Lat: 33.4800, Lng: -111.9400}
	first := Stop{DeliveryID: uuid.New(), Point: point}
	second := Stop{DeliveryID: uuid.New(), Point: point}

	plan := PlanStops(testDepot, []Stop{first, second})
	require.Len(t, plan.OrderedIDs, 2)
	assert.Equal(t, first.DeliveryID, plan.OrderedIDs[0])
	assert.Equal(t, second.DeliveryID, plan.OrderedIDs[1])
}

func TestPlanStopsEmptyInput(t *testing.T) {
	plan := PlanStops(testDepot, nil)
	assert.Empty(t, plan.OrderedIDs)
	assert.Zero(t, plan.DistanceKM)
	assert.Zero(t, plan.DurationMin)
}

func TestEstimateMinutesStopsOnly(t *testing.T) {
	// Three stops at the depot itself: zero distance, pure per-stop time.
	stop := Stop{DeliveryID: uuid.New(), Point: testDepot}
	stops := []Stop{stop, {DeliveryID: uuid.New(), Point: testDepot}, {DeliveryID: uuid.New(), Point: testDepot}}

	plan := PlanStops(testDepot, stops)
	assert.InDelta(t, 0, plan.DistanceKM, 1e-9)
	assert.Equal(t, 15, plan.DurationMin)
}

// bruteForceKM tries every visiting order and returns the shortest total.
func bruteForceKM(depot geo.Point, stops []Stop) float64 {
	best := RouteDistanceKM(depot, stops)
	permute(stops, 0, func(order []Stop) {
		if d := RouteDistanceKM(depot, order); d < best {
			best = d
		}
	})
	return best
}

func permute(stops []Stop, k int, visit func([]Stop)) {
	if k == len(stops) {
		visit(stops)
		return
	}
	for i := k; i < len(stops); i++ {
		stops[k], stops[i] = stops[i], stops[k]
		permute(stops, k+1, visit)
		stops[k], stops[i] = stops[i], stops[k]
	}
}

func TestPlanStopsNearBruteForceOptimum(t *testing.T) {
	// Five stops marching away from the depot. Nearest neighbor walks the
	// chain outward, which is also the optimal tour here.
	stops := []Stop{
		{DeliveryID: uuid.New(), Point: geo.Point{Lat: 33.50, Lng: -111.93}},
		{DeliveryID: uuid.New(), Point: geo.Point{Lat: 33.52, Lng: -111.94}},
		{DeliveryID: uuid.New(), Point: geo.Point{Lat: 33.55, Lng: -111.95}},
		{DeliveryID: uuid.New(), Point: geo.Point{Lat: 33.59, Lng: -111.96}},
		{DeliveryID: uuid.New(), Point: geo.Point{Lat: 33.64, Lng: -111.97}},
	}

	plan := PlanStops(testDepot, stops)
	optimum := bruteForceKM(testDepot, append([]Stop(nil), stops...))
	assert.LessOrEqual(t, plan.DistanceKM, optimum*1.5)
}
