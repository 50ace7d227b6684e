package main

import (
	"sort"
	"strings"
)

const (
	SortPriceAsc  = "price-asc"
	SortPriceDesc = "price-desc"
	SortName      = "name"
	SortFeatured  = "featured"
)

type CatalogQuery struct {
	Query    string `json:"q"`
	Category string `json:"category"`
	Sort     string `json:"sort"`
}

// FilterCatalog returns the published products matching q, ordered by q.Sort.
// The input slice is not modified.
func FilterCatalog(products []Product, q CatalogQuery) []Product {
	needle := strings.ToLower(strings.TrimSpace(q.Query))
	category := strings.TrimSpace(q.Category)
	if strings.EqualFold(category, "all") {
		category = ""
	}

	out := make([]Product, 0, len(products))
	for _, p := range products {
		if !p.Published {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		if needle != "" && !matchesQuery(p, needle) {
			continue
		}
		out = append(out, p)
	}

	switch q.Sort {
	case SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	case SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	case SortName:
		sort.SliceStable(out, func(i, j int) bool { return lessName(out[i], out[j]) })
	case SortFeatured:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Featured != out[j].Featured {
				return out[i].Featured
			}
			return lessName(out[i], out[j])
		})
	}
	return out
}

func matchesQuery(p Product, needle string) bool {
	for _, field := range []string{p.Name, p.Category, p.Desc, p.VendorName} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func lessName(a, b Product) bool {
	return strings.ToLower(a.Name) < strings.ToLower(b.Name)
}

// Categories lists the distinct categories of published products.
func Categories(products []Product) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range products {
		if !p.Published || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		out = append(out, p.Category)
	}
	sort.Strings(out)
	return out
}

func findProduct(products []Product, id string) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
