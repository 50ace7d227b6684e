package main

import (
	"github.com/shopspring/decimal"
)

const (
	defaultCommissionRate = 0.10
	defaultExpressFee     = 200
)

// Summary is the priced view of a cart for one delivery choice.
type Summary struct {
	Subtotal         int64             `json:"subtotal"`
	Delivery         string            `json:"delivery"`
	DeliveryFee      int64             `json:"deliveryFee"`
	PlatformFeeTotal int64             `json:"platformFeeTotal"`
	Total            int64             `json:"total"`
	Vendors          []VendorBreakdown `json:"vendors"`
}

// CommissionBreakdown groups lines by vendor. Each vendor fee is rounded on
// its own, so the returned platform total is the sum of rounded fees and can
// drift from AggregateFee by up to one unit per vendor.
func CommissionBreakdown(lines []CartLine, rate float64) ([]VendorBreakdown, int64) {
	index := map[string]int{}
	var out []VendorBreakdown
	for _, l := range lines {
		i, ok := index[l.VendorID]
		if !ok {
			i = len(out)
			index[l.VendorID] = i
			out = append(out, VendorBreakdown{VendorID: l.VendorID, VendorName: l.VendorName})
		}
		out[i].Gross += l.LineTotal
		out[i].Items = append(out[i].Items, OrderItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.Price,
			Qty:       l.Qty,
			LineTotal: l.LineTotal,
		})
	}

	var platform int64
	for i := range out {
		out[i].Fee = commissionFee(out[i].Gross, rate)
		out[i].Net = out[i].Gross - out[i].Fee
		platform += out[i].Fee
	}
	return out, platform
}

// AggregateFee rounds the commission of the combined gross once.
func AggregateFee(breakdown []VendorBreakdown, rate float64) int64 {
	var gross int64
	for _, b := range breakdown {
		gross += b.Gross
	}
	return commissionFee(gross, rate)
}

// commissionFee is round(gross * rate), half away from zero.
func commissionFee(gross int64, rate float64) int64 {
	return decimal.NewFromInt(gross).Mul(decimal.NewFromFloat(rate)).Round(0).IntPart()
}

func DeliveryFee(option string, expressFee int64) int64 {
	if option == DeliveryExpress {
		return expressFee
	}
	return 0
}

func Summarize(lines []CartLine, subtotal int64, delivery string, rate float64, expressFee int64) Summary {
	breakdown, platform := CommissionBreakdown(lines, rate)
	fee := DeliveryFee(delivery, expressFee)
	return Summary{
		Subtotal:         subtotal,
		Delivery:         delivery,
		DeliveryFee:      fee,
		PlatformFeeTotal: platform,
		Total:            subtotal + fee,
		Vendors:          breakdown,
	}
}
