package types

import (
	"fmt"
	"strings"
)

// Address is the shipping destination snapshot stored on transactions and
// orders. It is persisted as jsonb so the snapshot survives profile edits.
type Address struct {
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	State      string  `json:"state" validate:"required"`
	PostalCode string  `json:"postal_code" validate:"required"`
	Country    string  `json:"country" validate:"required"`
}

// Validate enforces the minimum fields a carrier label needs.
func (a Address) Validate() error {
	missing := []string{}
	if strings.TrimSpace(a.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		missing = append(missing, "postal_code")
	}
	if strings.TrimSpace(a.Country) == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return fmt.Errorf("address: missing %s", strings.Join(missing, ", "))
	}
	return nil
}
