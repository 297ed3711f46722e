package transit

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks one bus record: field formats plus one schedule per weekday.
func (b Bus) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("bus %q: %w", b.VehicleNumber, err)
	}
	seen := make(map[string]bool, len(b.Schedules))
	for _, s := range b.Schedules {
		if seen[s.Day] {
			return fmt.Errorf("bus %q: duplicate schedule for %s", b.VehicleNumber, s.Day)
		}
		seen[s.Day] = true
	}
	return nil
}

// Filter keeps the buses that validate and whose vehicle number has not been
// seen earlier in the slice. Rejected records are reported in order.
func Filter(buses []Bus) ([]Bus, []error) {
	var (
		kept     = make([]Bus, 0, len(buses))
		rejected []error
		seen     = make(map[string]bool, len(buses))
	)
	for _, b := range buses {
		if err := b.Validate(); err != nil {
			rejected = append(rejected, err)
			continue
		}
		if seen[b.VehicleNumber] {
			rejected = append(rejected, fmt.Errorf("bus %q: duplicate vehicle number", b.VehicleNumber))
			continue
		}
		seen[b.VehicleNumber] = true
		kept = append(kept, b)
	}
	return kept, rejected
}
