package booking

import "github.com/google/uuid"

// ResolveAvailability marks every catalog slot available unless its id is in taken.
// Catalog order is preserved.
func ResolveAvailability(slots []Slot, taken map[uuid.UUID]struct{}) []SlotAvailability {
	out := make([]SlotAvailability, 0, len(slots))
	for _, s := range slots {
		_, booked := taken[s.ID]
		out = append(out, SlotAvailability{Slot: s, IsAvailable: !booked})
	}
	return out
}
