package main

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Storefront owns one profile: its catalog, cart, vendors, session and order
// log. Calls are serialized, so a profile behaves like a single browser tab.
type Storefront struct {
	mu       sync.Mutex
	store    *Storage
	cfg      *Config
	logger   *zap.Logger
	metrics  *Metrics
	validate *validator.Validate
	sessions CheckoutSessionCreator
	now      func() time.Time
	suffix   func() string
}

type Option func(*Storefront)

func WithLogger(l *zap.Logger) Option {
	return func(s *Storefront) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Storefront) { s.metrics = m }
}

func WithSessionCreator(c CheckoutSessionCreator) Option {
	return func(s *Storefront) { s.sessions = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Storefront) { s.now = now }
}

func NewStorefront(store *Storage, cfg *Config, opts ...Option) *Storefront {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Storefront{
		store:    store,
		cfg:      cfg,
		logger:   zap.NewNop(),
		validate: newValidator(),
		now:      time.Now,
		suffix:   func() string { return uuid.NewString()[:4] },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newID returns prefix + base36 millis + a short random suffix. Uniqueness is
// only likely, not guaranteed.
func (s *Storefront) newID(prefix string) string {
	return prefix + strconv.FormatInt(s.now().UnixMilli(), 36) + s.suffix()
}

func newOrderID() string {
	return "ORD-" + strings.ToUpper(uuid.NewString()[:8])
}

func (s *Storefront) Catalog(ctx context.Context, q CatalogQuery) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	products, err := s.store.LoadProducts(ctx)
	if err != nil {
		return nil, err
	}
	return FilterCatalog(products, q), nil
}

func (s *Storefront) Categories(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	products, err := s.store.LoadProducts(ctx)
	if err != nil {
		return nil, err
	}
	return Categories(products), nil
}

// Product is the quick view lookup. Hidden products are not found.
func (s *Storefront) Product(ctx context.Context, id string) (Product, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	products, err := s.store.LoadProducts(ctx)
	if err != nil {
		return Product{}, false, err
	}
	p, ok := findProduct(products, id)
	if !ok || !p.Published {
		return Product{}, false, nil
	}
	return p, true, nil
}

func (s *Storefront) AddToCart(ctx context.Context, id string, delta int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	products, err := s.store.LoadProducts(ctx)
	if err != nil {
		return false, err
	}
	cart, err := s.store.LoadCart(ctx)
	if err != nil {
		return false, err
	}
	if !ApplyCartDelta(cart, products, id, delta) {
		return false, nil
	}
	if err := s.store.SaveCart(ctx, cart); err != nil {
		return false, err
	}
	action := "add"
	if delta < 0 {
		action = "remove"
	}
	s.metrics.cartMutated(action)
	return true, nil
}

func (s *Storefront) RemoveFromCart(ctx context.Context, id string) (bool, error) {
	return s.AddToCart(ctx, id, -1)
}

// DeleteFromCart drops the whole entry regardless of the product state.
func (s *Storefront) DeleteFromCart(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, err := s.store.LoadCart(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := cart[id]; !ok {
		return false, nil
	}
	delete(cart, id)
	if err := s.store.SaveCart(ctx, cart); err != nil {
		return false, err
	}
	s.metrics.cartMutated("delete")
	return true, nil
}

func (s *Storefront) ClearCart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.cartMutated("clear")
	return s.store.SaveCart(ctx, Cart{})
}

func (s *Storefront) CartView(ctx context.Context) (CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, subtotal, err := s.expandedCart(ctx)
	if err != nil {
		return CartView{}, err
	}
	return CartView{Lines: lines, Subtotal: subtotal, ItemCount: itemCount(lines)}, nil
}

// Summary prices the cart for a delivery choice without recording anything.
func (s *Storefront) Summary(ctx context.Context, delivery string) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, subtotal, err := s.expandedCart(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(lines, subtotal, delivery, s.cfg.Commission.Rate, s.cfg.Delivery.ExpressFee), nil
}

// expandedCart normalizes the stored cart, persisting it when stale entries
// were dropped, and expands it. Callers hold s.mu.
func (s *Storefront) expandedCart(ctx context.Context) ([]CartLine, int64, error) {
	products, err := s.store.LoadProducts(ctx)
	if err != nil {
		return nil, 0, err
	}
	cart, err := s.store.LoadCart(ctx)
	if err != nil {
		return nil, 0, err
	}
	cart, changed := NormalizeCart(cart, products)
	if changed {
		if err := s.store.SaveCart(ctx, cart); err != nil {
			return nil, 0, err
		}
	}
	lines, subtotal := ExpandCart(cart, products)
	return lines, subtotal, nil
}

func (s *Storefront) Orders(ctx context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.LoadOrders(ctx)
}

// Profiles hands out one Storefront per storage namespace.
type Profiles struct {
	mu       sync.Mutex
	kv       KV
	cfg      *Config
	opts     []Option
	opened   map[string]*Storefront
	fallback string
}

func NewProfiles(kv KV, cfg *Config, opts ...Option) *Profiles {
	return &Profiles{
		kv:       kv,
		cfg:      cfg,
		opts:     opts,
		opened:   map[string]*Storefront{},
		fallback: cfg.Store.Namespace,
	}
}

// Get returns the storefront for name, or the default profile when name is empty.
func (p *Profiles) Get(name string) *Storefront {
	name = strings.TrimSpace(name)
	ns := p.fallback
	if name != "" {
		ns = p.fallback + "/" + name
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.opened[ns]; ok {
		return s
	}
	s := NewStorefront(NewStorage(p.kv, ns), p.cfg, p.opts...)
	p.opened[ns] = s
	return s
}
