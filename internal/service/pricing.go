package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

// Commission is included in the listed price: the buyer pays the item total and the
// seller receives the item total minus the platform's share.

// OrderTotal sums price × quantity over the lines.
func OrderTotal(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total())
	}
	return total
}

// ItemCommission is the platform share of one line total, rounded to cents.
func ItemCommission(lineTotal, rate decimal.Decimal) decimal.Decimal {
	return lineTotal.Mul(rate).Round(2)
}

// SplitCommission returns the per-seller credits, ordered by seller id, and the total commission.
func SplitCommission(items []models.OrderItem, rate decimal.Decimal) ([]models.SellerCredit, decimal.Decimal) {
	bySeller := make(map[string]*models.SellerCredit)
	totalCommission := decimal.Zero

	for _, item := range items {
		lineTotal := item.Total()
		commission := ItemCommission(lineTotal, rate)
		totalCommission = totalCommission.Add(commission)

		credit, ok := bySeller[item.SellerID]
		if !ok {
			credit = &models.SellerCredit{SellerID: item.SellerID, Amount: decimal.Zero, Commission: decimal.Zero}
			bySeller[item.SellerID] = credit
		}
		credit.Amount = credit.Amount.Add(lineTotal.Sub(commission))
		credit.Commission = credit.Commission.Add(commission)
		credit.ItemCount++
	}

	credits := make([]models.SellerCredit, 0, len(bySeller))
	for _, credit := range bySeller {
		credits = append(credits, *credit)
	}
	sort.Slice(credits, func(i, j int) bool { return credits[i].SellerID < credits[j].SellerID })
	return credits, totalCommission
}

// ApportionCommission assigns a recorded order commission to one line by its share of the order total.
func ApportionCommission(orderCommission, lineTotal, orderTotal decimal.Decimal) decimal.Decimal {
	if !orderTotal.IsPositive() {
		return decimal.Zero
	}
	return orderCommission.Mul(lineTotal).Div(orderTotal).Round(2)
}
