package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// VendorOrder is one vendor's share of a submitted order.
type VendorOrder struct {
	OrderID   string          `json:"orderId"`
	CreatedAt time.Time       `json:"createdAt"`
	Customer  Customer        `json:"customer"`
	Delivery  string          `json:"delivery"`
	Payment   string          `json:"payment"`
	Status    string          `json:"status"`
	Share     VendorBreakdown `json:"share"`
}

func (s *Storefront) Signup(ctx context.Context, req SignupRequest) (Vendor, error) {
	req.Shop = strings.TrimSpace(req.Shop)
	req.Email = strings.TrimSpace(req.Email)
	verr := validateStruct(s.validate, req)
	if n := utf8.RuneCountInString(req.Shop); req.Shop != "" && n < s.cfg.Vendor.MinShopLen {
		verr.add("shop", fmt.Sprintf("must be at least %d characters", s.cfg.Vendor.MinShopLen))
	}
	if n := utf8.RuneCountInString(req.Password); req.Password != "" && n < s.cfg.Vendor.MinPasswordLen {
		verr.add("password", fmt.Sprintf("must be at least %d characters", s.cfg.Vendor.MinPasswordLen))
	}
	if err := verr.orNil(); err != nil {
		return Vendor{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	vendors, err := s.store.LoadVendors(ctx)
	if err != nil {
		return Vendor{}, err
	}
	email := normalizeEmail(req.Email)
	for _, v := range vendors {
		if v.Email == email {
			return Vendor{}, ErrDuplicateEmail
		}
	}

	password := req.Password
	if s.cfg.Vendor.HashPasswords {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return Vendor{}, fmt.Errorf("hash password: %w", err)
		}
		password = string(hash)
	}
	v := NewVendor(Vendor{
		ID:       s.newID("v"),
		Shop:     req.Shop,
		Email:    email,
		Password: password,
	})
	if err := s.store.SaveVendors(ctx, append(vendors, v)); err != nil {
		return Vendor{}, err
	}
	s.logger.Info("vendor created", zap.String("vendor_id", v.ID), zap.String("shop", v.Shop))
	return v, nil
}

func (s *Storefront) checkPassword(stored, given string) bool {
	if s.cfg.Vendor.HashPasswords {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return stored == given
}

// Login replaces the profile session with the matching vendor.
func (s *Storefront) Login(ctx context.Context, email, password string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vendors, err := s.store.LoadVendors(ctx)
	if err != nil {
		return Session{}, err
	}
	email = normalizeEmail(email)
	for _, v := range vendors {
		if v.Email != email || !s.checkPassword(v.Password, password) {
			continue
		}
		sess := Session{VendorID: v.ID, Email: v.Email, Shop: v.Shop}
		if err := s.store.SaveSession(ctx, sess); err != nil {
			return Session{}, err
		}
		return sess, nil
	}
	return Session{}, ErrInvalidCredentials
}

func (s *Storefront) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ClearSession(ctx)
}

// CurrentSession returns nil when no vendor is logged in.
func (s *Storefront) CurrentSession(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.LoadSession(ctx)
}

func (s *Storefront) requireSession(ctx context.Context) (*Session, error) {
	sess, err := s.store.LoadSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotLoggedIn
	}
	return sess, nil
}

func (s *Storefront) VendorProducts(ctx context.Context) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.store.LoadProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := []Product{}
	for _, p := range products {
		if p.VendorID == sess.VendorID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Storefront) CreateProduct(ctx context.Context, form ProductForm) (Product, error) {
	if err := validateStruct(s.validate, form).orNil(); err != nil {
		return Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.requireSession(ctx)
	if err != nil {
		return Product{}, err
	}
	products, err := s.store.LoadProducts(ctx)
	if err != nil {
		return Product{}, err
	}
	p := NewProduct(Product{
		ID:         s.newID("p"),
		Name:       form.Name,
		Price:      form.Price,
		Category:   form.Category,
		Img:        form.Img,
		Desc:       form.Desc,
		VendorID:   sess.VendorID,
		VendorName: sess.Shop,
		Published:  form.Published,
		Featured:   form.Featured,
	})
	if err := s.store.SaveProducts(ctx, append(products, p)); err != nil {
		return Product{}, err
	}
	s.logger.Info("product created", zap.String("product_id", p.ID), zap.String("vendor_id", p.VendorID))
	return p, nil
}

func (s *Storefront) TogglePublish(ctx context.Context, id string) (bool, error) {
	return s.mutateOwned(ctx, id, func(p *Product) { p.Published = !p.Published })
}

func (s *Storefront) ToggleFeatured(ctx context.Context, id string) (bool, error) {
	return s.mutateOwned(ctx, id, func(p *Product) { p.Featured = !p.Featured })
}

// mutateOwned applies fn to a product of the session vendor. Unknown or
// foreign products are a silent no-op.
func (s *Storefront) mutateOwned(ctx context.Context, id string, fn func(*Product)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.requireSession(ctx)
	if err != nil {
		return false, err
	}
	products, err := s.store.LoadProducts(ctx)
	if err != nil {
		return false, err
	}
	for i := range products {
		if products[i].ID != id || products[i].VendorID != sess.VendorID {
			continue
		}
		fn(&products[i])
		return true, s.store.SaveProducts(ctx, products)
	}
	return false, nil
}

// DeleteProduct removes an owned product and any cart entry holding it.
func (s *Storefront) DeleteProduct(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.requireSession(ctx)
	if err != nil {
		return false, err
	}
	products, err := s.store.LoadProducts(ctx)
	if err != nil {
		return false, err
	}
	kept := products[:0:0]
	found := false
	for _, p := range products {
		if p.ID == id && p.VendorID == sess.VendorID {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return false, nil
	}
	if err := s.store.SaveProducts(ctx, kept); err != nil {
		return false, err
	}
	cart, err := s.store.LoadCart(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := cart[id]; ok {
		delete(cart, id)
		if err := s.store.SaveCart(ctx, cart); err != nil {
			return false, err
		}
	}
	s.logger.Info("product deleted", zap.String("product_id", id), zap.String("vendor_id", sess.VendorID))
	return true, nil
}

// VendorOrders lists the session vendor's share of every order, newest first.
func (s *Storefront) VendorOrders(ctx context.Context) ([]VendorOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.store.LoadOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := []VendorOrder{}
	for _, o := range orders {
		if vo, ok := vendorShare(o, sess.VendorID); ok {
			out = append(out, vo)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// VendorOrder is the item detail of one order for the session vendor.
func (s *Storefront) VendorOrder(ctx context.Context, orderID string) (VendorOrder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.requireSession(ctx)
	if err != nil {
		return VendorOrder{}, false, err
	}
	orders, err := s.store.LoadOrders(ctx)
	if err != nil {
		return VendorOrder{}, false, err
	}
	for _, o := range orders {
		if o.ID != orderID {
			continue
		}
		vo, ok := vendorShare(o, sess.VendorID)
		return vo, ok, nil
	}
	return VendorOrder{}, false, nil
}

func vendorShare(o Order, vendorID string) (VendorOrder, bool) {
	for _, b := range o.Vendors {
		if b.VendorID != vendorID {
			continue
		}
		return VendorOrder{
			OrderID:   o.ID,
			CreatedAt: o.CreatedAt,
			Customer:  o.Customer,
			Delivery:  o.Delivery,
			Payment:   o.Payment,
			Status:    o.Status,
			Share:     b,
		}, true
	}
	return VendorOrder{}, false
}
