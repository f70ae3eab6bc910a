package enums

// DeliveryStatus tracks the physical fulfillment of a paid order.
//
// The dispatcher only enforces the transitions it drives itself (driver
// assignment, route commit); driver-reported statuses are stored as given, so
// unknown values are tolerated rather than rejected.
type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusInProgress DeliveryStatus = "in_progress"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
	DeliveryStatusFailed     DeliveryStatus = "failed"
)

var knownDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusInProgress,
	DeliveryStatusDelivered,
	DeliveryStatusFailed,
}

// String implements fmt.Stringer.
func (s DeliveryStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the delivery needs no further driver action.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusFailed
}

// IsKnown reports whether the value is one of the statuses the dispatcher
// itself produces.
func (s DeliveryStatus) IsKnown() bool {
	for _, candidate := range knownDeliveryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
