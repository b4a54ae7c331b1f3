package routing

import (
	"github.com/google/uuid"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/lead"
)

// Distribute splits leads across allocations with deterministic,
// order-preserving slicing: allocations are processed in the order given and
// each takes min(LeadCount, remaining) leads contiguously from the front of
// the remaining pool. There is no randomization and no redistribution of
// leftovers; leads beyond the total allocation capacity stay unassigned and
// are reported by the caller.
func Distribute(leads []*lead.Lead, allocations []Allocation) map[uuid.UUID][]*lead.Lead {
	distributed := make(map[uuid.UUID][]*lead.Lead, len(allocations))
	for _, alloc := range allocations {
		distributed[alloc.RoutingID] = nil
	}

	idx := 0
	for _, alloc := range allocations {
		if idx >= len(leads) {
			break
		}
		take := alloc.LeadCount
		if take < 0 {
			take = 0
		}
		if remaining := len(leads) - idx; take > remaining {
			take = remaining
		}
		distributed[alloc.RoutingID] = leads[idx : idx+take]
		idx += take
	}

	return distributed
}

// Unassigned returns how many trailing leads a Distribute call over the same
// inputs would leave without a destination.
func Unassigned(totalLeads int, allocations []Allocation) int {
	capacity := 0
	for _, alloc := range allocations {
		capacity += alloc.LeadCount
	}
	if capacity >= totalLeads {
		return 0
	}
	return totalLeads - capacity
}
