package enums

import "fmt"

// ShippingEventType labels carrier or counterparty tracking milestones.
type ShippingEventType string

const (
	ShippingEventShipped   ShippingEventType = "shipped"
	ShippingEventInTransit ShippingEventType = "in_transit"
	ShippingEventDelivered ShippingEventType = "delivered"
)

var validShippingEventTypes = []ShippingEventType{
	ShippingEventShipped,
	ShippingEventInTransit,
	ShippingEventDelivered,
}

// String implements fmt.Stringer.
func (s ShippingEventType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShippingEventType.
func (s ShippingEventType) IsValid() bool {
	for _, candidate := range validShippingEventTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseShippingEventType converts raw input into a ShippingEventType.
func ParseShippingEventType(value string) (ShippingEventType, error) {
	for _, candidate := range validShippingEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipping event type %q", value)
}
