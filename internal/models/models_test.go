package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAggregates(t *testing.T) {
	listings := []Listing{
		{ItemID: "A", Price: 10, SoldCount: 2},
		{ItemID: "B", Price: 20, SoldCount: 3},
		{ItemID: "C", Price: 30, SoldCount: 5},
	}

	agg := ComputeAggregates(listings)
	assert.Equal(t, 3, agg.ListingCount)
	assert.Equal(t, 10, agg.SoldUnits)
	require.NotNil(t, agg.AverageTicket)
	assert.InDelta(t, 20.0, *agg.AverageTicket, 1e-9)
}

func TestComputeAggregatesEmptySet(t *testing.T) {
	agg := ComputeAggregates(nil)
	assert.Equal(t, 0, agg.ListingCount)
	assert.Equal(t, 0, agg.SoldUnits)
	assert.Nil(t, agg.AverageTicket)
}

func TestValidateListingSet(t *testing.T) {
	valid := []Listing{
		{ItemID: "A", Price: 10},
		{ItemID: "B", Price: 0},
	}
	assert.NoError(t, ValidateListingSet(valid))
	assert.NoError(t, ValidateListingSet(nil))
}

func TestValidateListingSetDuplicate(t *testing.T) {
	dup := []Listing{
		{ItemID: "A", Price: 10},
		{ItemID: "A", Price: 12},
	}
	err := ValidateListingSet(dup)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestValidateListingSetNegativePrice(t *testing.T) {
	err := ValidateListingSet([]Listing{{ItemID: "A", Price: -1}})
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestValidateListingSetMissingItemID(t *testing.T) {
	err := ValidateListingSet([]Listing{{Price: 1}})
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, StatusActive, NormalizeStatus("active"))
	assert.Equal(t, StatusPaused, NormalizeStatus("paused"))
	assert.Equal(t, StatusClosed, NormalizeStatus("closed"))
	assert.Equal(t, StatusOther, NormalizeStatus("under_review"))
	assert.Equal(t, StatusOther, NormalizeStatus(""))
}
