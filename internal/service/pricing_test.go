package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

func TestSplitCommission(t *testing.T) {
	tests := []struct {
		name       string
		items      []models.OrderItem
		rate       string
		credits    map[string]string
		commission string
	}{
		{
			name: "Two sellers at ten percent",
			items: []models.OrderItem{
				{SellerID: "seller-a", Price: dec("100"), Quantity: 1},
				{SellerID: "seller-b", Price: dec("50"), Quantity: 1},
			},
			rate:       "0.10",
			credits:    map[string]string{"seller-a": "90", "seller-b": "45"},
			commission: "15",
		},
		{
			name: "One seller accumulates across items",
			items: []models.OrderItem{
				{SellerID: "seller-a", Price: dec("19.99"), Quantity: 1},
				{SellerID: "seller-a", Price: dec("5.01"), Quantity: 1},
			},
			rate:       "0.15",
			credits:    map[string]string{"seller-a": "21.25"},
			commission: "3.75",
		},
		{
			name: "Zero rate",
			items: []models.OrderItem{
				{SellerID: "seller-a", Price: dec("40"), Quantity: 1},
			},
			rate:       "0",
			credits:    map[string]string{"seller-a": "40"},
			commission: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			credits, commission := SplitCommission(tt.items, dec(tt.rate))
			assert.True(t, dec(tt.commission).Equal(commission), "commission %s", commission)
			require.Len(t, credits, len(tt.credits))

			sum := commission
			for _, c := range credits {
				assert.True(t, dec(tt.credits[c.SellerID]).Equal(c.Amount), "%s got %s", c.SellerID, c.Amount)
				sum = sum.Add(c.Amount)
			}
			assert.True(t, OrderTotal(tt.items).Equal(sum), "credits plus commission equal the order total")
		})
	}
}

func TestSplitCommission_SortedBySeller(t *testing.T) {
	credits, _ := SplitCommission([]models.OrderItem{
		{SellerID: "seller-z", Price: dec("1"), Quantity: 1},
		{SellerID: "seller-a", Price: dec("1"), Quantity: 1},
	}, dec("0.1"))

	require.Len(t, credits, 2)
	assert.Equal(t, "seller-a", credits[0].SellerID)
	assert.Equal(t, "seller-z", credits[1].SellerID)
}

func TestApportionCommission(t *testing.T) {
	assert.True(t, dec("10").Equal(ApportionCommission(dec("15"), dec("100"), dec("150"))))
	assert.True(t, dec("5").Equal(ApportionCommission(dec("15"), dec("50"), dec("150"))))
	assert.True(t, ApportionCommission(dec("15"), dec("50"), dec("0")).IsZero())
}
