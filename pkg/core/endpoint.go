package core

import "time"

// Category groups endpoints by how the venue accounts for them.
type Category string

const (
	CategoryMarketData Category = "market_data"
	CategoryOrder      Category = "order"
	CategoryAccount    Category = "account"
)

// Charge is the number of units one call consumes from one window.
type Charge struct {
	Window string `json:"window" yaml:"window" validate:"required"`
	Units  int64  `json:"units" yaml:"units" validate:"gt=0"`
}

// EndpointCost lists every window an endpoint draws from.
type EndpointCost struct {
	Endpoint string   `json:"endpoint"`
	Category Category `json:"category"`
	Charges  []Charge `json:"charges"`
}

// Units returns the units charged against window, or zero.
func (c EndpointCost) Units(window string) int64 {
	var n int64
	for _, ch := range c.Charges {
		if ch.Window == window {
			n += ch.Units
		}
	}
	return n
}

// Observation is the venue's view of one window, parsed from a response.
type Observation struct {
	Window string
	// Used is the venue's authoritative consumption for the current window.
	Used int64
	// ResetAt is when the venue's window rolls over, zero when unknown.
	ResetAt time.Time
}
