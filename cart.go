package main

import "sort"

// ApplyCartDelta adds delta to the quantity of id. It fails when the product
// is missing or unpublished. Entries that drop to zero or below are removed.
func ApplyCartDelta(cart Cart, products []Product, id string, delta int) bool {
	p, ok := findProduct(products, id)
	if !ok || !p.Published || cart == nil {
		return false
	}
	qty, present := cart[id]
	if delta == 0 {
		return true
	}
	qty += delta
	if qty <= 0 {
		if present {
			delete(cart, id)
		}
		return true
	}
	cart[id] = qty
	return true
}

// ExpandCart joins the cart against the catalog. Entries whose product was
// deleted are skipped.
func ExpandCart(cart Cart, products []Product) ([]CartLine, int64) {
	ids := make([]string, 0, len(cart))
	for id := range cart {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var (
		lines    []CartLine
		subtotal int64
	)
	for _, id := range ids {
		qty := cart[id]
		if qty <= 0 {
			continue
		}
		p, ok := findProduct(products, id)
		if !ok {
			continue
		}
		line := CartLine{
			ProductID:  p.ID,
			Name:       p.Name,
			Price:      p.Price,
			Qty:        qty,
			LineTotal:  p.Price * int64(qty),
			VendorID:   p.VendorID,
			VendorName: p.VendorName,
			Img:        p.Img,
		}
		subtotal += line.LineTotal
		lines = append(lines, line)
	}
	return lines, subtotal
}

// NormalizeCart drops entries that point at missing or unpublished products
// or carry a non-positive quantity.
func NormalizeCart(cart Cart, products []Product) (Cart, bool) {
	out := make(Cart, len(cart))
	changed := false
	for id, qty := range cart {
		p, ok := findProduct(products, id)
		if !ok || !p.Published || qty <= 0 {
			changed = true
			continue
		}
		out[id] = qty
	}
	return out, changed
}

func itemCount(lines []CartLine) int {
	n := 0
	for _, l := range lines {
		n += l.Qty
	}
	return n
}
