package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// SeedWithData loads published products from a file of
// name;description;price;category;img lines, owned by the given vendor. The
// vendor is created when its email is not registered yet.
func (s *Storefront) SeedWithData(ctx context.Context, fileName string, owner SignupRequest) (int, error) {
	readFile, err := os.Open(fileName)
	if err != nil {
		return 0, err
	}
	defer readFile.Close()
	return s.seedFrom(ctx, readFile, owner)
}

func (s *Storefront) seedFrom(ctx context.Context, r io.Reader, owner SignupRequest) (int, error) {
	var forms []ProductForm
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanLines)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		form, err := parseSeedLine(line)
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := validateStruct(s.validate, form).orNil(); err != nil {
			return 0, fmt.Errorf("line %d: %w", lineNo, err)
		}
		forms = append(forms, form)
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}

	vendor, err := s.seedVendor(ctx, owner)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	products, err := s.store.LoadProducts(ctx)
	if err != nil {
		return 0, err
	}
	for i, f := range forms {
		products = append(products, NewProduct(Product{
			ID:         s.newID("p") + strconv.Itoa(i),
			Name:       f.Name,
			Price:      f.Price,
			Category:   f.Category,
			Img:        f.Img,
			Desc:       f.Desc,
			VendorID:   vendor.ID,
			VendorName: vendor.Shop,
			Published:  true,
		}))
	}
	if err := s.store.SaveProducts(ctx, products); err != nil {
		return 0, err
	}
	return len(forms), nil
}

func (s *Storefront) seedVendor(ctx context.Context, owner SignupRequest) (Vendor, error) {
	s.mu.Lock()
	vendors, err := s.store.LoadVendors(ctx)
	s.mu.Unlock()
	if err != nil {
		return Vendor{}, err
	}
	email := normalizeEmail(owner.Email)
	for _, v := range vendors {
		if v.Email == email {
			return v, nil
		}
	}
	return s.Signup(ctx, owner)
}

func parseSeedLine(line string) (ProductForm, error) {
	strs := strings.Split(line, ";")
	if len(strs) < 3 {
		return ProductForm{}, fmt.Errorf("expected name;description;price[;category[;img]], got %d fields", len(strs))
	}
	price, err := strconv.ParseInt(strings.TrimSpace(strs[2]), 10, 64)
	if err != nil {
		return ProductForm{}, fmt.Errorf("price %q is not a whole number", strs[2])
	}
	form := ProductForm{
		Name:      strings.TrimSpace(strs[0]),
		Desc:      strings.TrimSpace(strs[1]),
		Price:     price,
		Published: true,
	}
	if len(strs) > 3 {
		form.Category = strings.TrimSpace(strs[3])
	}
	if len(strs) > 4 {
		form.Img = strings.TrimSpace(strs[4])
	}
	return form, nil
}
