package routing

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/lead"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/values"
)

func makeLeads(t *testing.T, n int) []*lead.Lead {
	t.Helper()
	leads := make([]*lead.Lead, n)
	for i := range leads {
		phone := values.MustNewPhoneNumber(fmt.Sprintf("512555%04d", i))
		l, err := lead.NewLead(phone, "Test", "Lead", fmt.Sprintf("lead%d@example.com", i), "list-1")
		require.NoError(t, err)
		leads[i] = l
	}
	return leads
}

func TestDistribute(t *testing.T) {
	leads := makeLeads(t, 10)
	a := uuid.New()
	b := uuid.New()
	c := uuid.New()

	allocations := []Allocation{
		{RoutingID: a, ListID: "list-a", LeadCount: 4},
		{RoutingID: b, ListID: "list-b", LeadCount: 4},
		{RoutingID: c, ListID: "list-c", LeadCount: 4},
	}

	distributed := Distribute(leads, allocations)

	require.Len(t, distributed[a], 4)
	require.Len(t, distributed[b], 4)
	require.Len(t, distributed[c], 2)

	// Order preserved, contiguous, no gaps or overlap
	assert.Equal(t, leads[0:4], distributed[a])
	assert.Equal(t, leads[4:8], distributed[b])
	assert.Equal(t, leads[8:10], distributed[c])

	total := len(distributed[a]) + len(distributed[b]) + len(distributed[c])
	assert.Equal(t, 10, total)
}

func TestDistribute_LeftoversUnassigned(t *testing.T) {
	leads := makeLeads(t, 10)
	a := uuid.New()

	allocations := []Allocation{
		{RoutingID: a, ListID: "list-a", LeadCount: 6},
	}

	distributed := Distribute(leads, allocations)
	require.Len(t, distributed[a], 6)
	assert.Equal(t, 4, Unassigned(len(leads), allocations))
}

func TestDistribute_EarlyExhaustion(t *testing.T) {
	leads := makeLeads(t, 3)
	a := uuid.New()
	b := uuid.New()

	allocations := []Allocation{
		{RoutingID: a, ListID: "list-a", LeadCount: 5},
		{RoutingID: b, ListID: "list-b", LeadCount: 5},
	}

	distributed := Distribute(leads, allocations)
	assert.Len(t, distributed[a], 3)
	assert.Empty(t, distributed[b])
	assert.Equal(t, 0, Unassigned(len(leads), allocations))
}

func TestDistribute_NoLeads(t *testing.T) {
	a := uuid.New()
	distributed := Distribute(nil, []Allocation{{RoutingID: a, LeadCount: 4}})
	assert.Empty(t, distributed[a])
}

func TestDistribute_NegativeCountTakesNothing(t *testing.T) {
	leads := makeLeads(t, 3)
	bad := uuid.New()
	good := uuid.New()

	allocations := []Allocation{
		{RoutingID: bad, ListID: "list-a", LeadCount: -5},
		{RoutingID: good, ListID: "list-b", LeadCount: 2},
	}

	distributed := Distribute(leads, allocations)

	assert.Empty(t, distributed[bad])
	require.Len(t, distributed[good], 2)
	assert.Same(t, leads[0], distributed[good][0], "negative counts must not shift the pool cursor")
}
