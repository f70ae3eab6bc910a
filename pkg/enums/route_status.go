package enums

import "fmt"

// RouteStatus tracks a driver route from planning to completion.
type RouteStatus string

const (
	RouteStatusPlanned    RouteStatus = "planned"
	RouteStatusInProgress RouteStatus = "in_progress"
	RouteStatusCompleted  RouteStatus = "completed"
)

var validRouteStatuses = []RouteStatus{
	RouteStatusPlanned,
	RouteStatusInProgress,
	RouteStatusCompleted,
}

// String implements fmt.Stringer.
func (s RouteStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known RouteStatus.
func (s RouteStatus) IsValid() bool {
	for _, candidate := range validRouteStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRouteStatus converts raw input into a RouteStatus.
func ParseRouteStatus(value string) (RouteStatus, error) {
	for _, candidate := range validRouteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid route status %q", value)
}
