package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seedOwner = SignupRequest{Shop: "Seed Shop", Email: "seed@vendormarket.local", Password: "seedpass"}

func TestParseSeedLine(t *testing.T) {
	form, err := parseSeedLine("Kurta; Cotton kurta ;2499;Clothing;https://img.example/k.png")
	require.NoError(t, err)
	assert.Equal(t, ProductForm{
		Name:      "Kurta",
		Desc:      "Cotton kurta",
		Price:     2499,
		Category:  "Clothing",
		Img:       "https://img.example/k.png",
		Published: true,
	}, form)

	form, err = parseSeedLine("Pot;Clay pot;300")
	require.NoError(t, err)
	assert.Empty(t, form.Category)

	_, err = parseSeedLine("Pot;Clay pot")
	assert.ErrorContains(t, err, "got 2 fields")
	_, err = parseSeedLine("Pot;Clay pot;12.50")
	assert.ErrorContains(t, err, "not a whole number")
}

func TestSeedFrom(t *testing.T) {
	ctx := context.Background()
	sf, store := newTestStorefront(t)

	data := `# name;description;price;category
Kurta;Cotton kurta;2499;Clothing

Pot;Clay pot;300
`
	n, err := sf.seedFrom(ctx, strings.NewReader(data), seedOwner)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	products, err := sf.Catalog(ctx, CatalogQuery{Sort: SortName})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Kurta", products[0].Name)
	assert.Equal(t, "Seed Shop", products[0].VendorName)
	assert.Equal(t, "General", products[1].Category)
	assert.NotEqual(t, products[0].ID, products[1].ID)

	// a second run reuses the registered vendor
	_, err = sf.seedFrom(ctx, strings.NewReader("Lamp;Desk lamp;1200\n"), seedOwner)
	require.NoError(t, err)
	vendors, err := store.LoadVendors(ctx)
	require.NoError(t, err)
	assert.Len(t, vendors, 1)
}

func TestSeedFrom_Errors(t *testing.T) {
	ctx := context.Background()
	sf, store := newTestStorefront(t)

	_, err := sf.seedFrom(ctx, strings.NewReader("Kurta;ok;10\nBad;line\n"), seedOwner)
	assert.ErrorContains(t, err, "line 2")

	_, err = sf.seedFrom(ctx, strings.NewReader("Kurta;ok;0\n"), seedOwner)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	products, err := store.LoadProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, products, "nothing is written when a line is rejected")
}

func TestSeedWithData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.txt")
	require.NoError(t, os.WriteFile(path, []byte("Kurta;Cotton kurta;2499;Clothing\n"), 0o600))

	sf, _ := newTestStorefront(t)
	n, err := sf.SeedWithData(context.Background(), path, seedOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = sf.SeedWithData(context.Background(), filepath.Join(t.TempDir(), "missing.txt"), seedOwner)
	assert.Error(t, err)
}
