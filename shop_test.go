package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestStorefront(t *testing.T, opts ...Option) (*Storefront, *Storage) {
	t.Helper()
	store := NewStorage(NewMemoryKV(), "test")
	clock := testNow
	opts = append([]Option{WithClock(func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	})}, opts...)
	return NewStorefront(store, DefaultConfig(), opts...), store
}

// signupAndLogin registers a vendor and leaves it logged in.
func signupAndLogin(t *testing.T, sf *Storefront, shop, email string) Session {
	t.Helper()
	ctx := context.Background()
	_, err := sf.Signup(ctx, SignupRequest{Shop: shop, Email: email, Password: "secret1"})
	require.NoError(t, err)
	sess, err := sf.Login(ctx, email, "secret1")
	require.NoError(t, err)
	return sess
}

func createProduct(t *testing.T, sf *Storefront, name string, price int64) Product {
	t.Helper()
	p, err := sf.CreateProduct(context.Background(), ProductForm{
		Name:      name,
		Price:     price,
		Category:  "Clothing",
		Published: true,
	})
	require.NoError(t, err)
	return p
}

func TestStorefront_CartLifecycle(t *testing.T) {
	ctx := context.Background()
	sf, _ := newTestStorefront(t)
	signupAndLogin(t, sf, "Kurta House", "kurta@shop.pk")
	kurta := createProduct(t, sf, "Kurta", 2499)
	scarf := createProduct(t, sf, "Scarf", 500)

	t.Run("add accumulates quantity", func(t *testing.T) {
		ok, err := sf.AddToCart(ctx, kurta.ID, 1)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = sf.AddToCart(ctx, scarf.ID, 2)
		require.NoError(t, err)
		assert.True(t, ok)

		view, err := sf.CartView(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2499+2*500), view.Subtotal)
		assert.Equal(t, 3, view.ItemCount)
	})

	t.Run("unknown product is rejected", func(t *testing.T) {
		ok, err := sf.AddToCart(ctx, "missing", 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("remove decrements and drops at zero", func(t *testing.T) {
		_, err := sf.RemoveFromCart(ctx, scarf.ID)
		require.NoError(t, err)
		_, err = sf.RemoveFromCart(ctx, scarf.ID)
		require.NoError(t, err)

		view, err := sf.CartView(ctx)
		require.NoError(t, err)
		require.Len(t, view.Lines, 1)
		assert.Equal(t, kurta.ID, view.Lines[0].ProductID)
	})

	t.Run("hidden product is normalized out of the cart", func(t *testing.T) {
		ok, err := sf.TogglePublish(ctx, kurta.ID)
		require.NoError(t, err)
		require.True(t, ok)

		view, err := sf.CartView(ctx)
		require.NoError(t, err)
		assert.Empty(t, view.Lines)
		assert.Equal(t, int64(0), view.Subtotal)
	})

	t.Run("clear empties the cart", func(t *testing.T) {
		_, err := sf.AddToCart(ctx, scarf.ID, 1)
		require.NoError(t, err)
		require.NoError(t, sf.ClearCart(ctx))
		view, err := sf.CartView(ctx)
		require.NoError(t, err)
		assert.Empty(t, view.Lines)
	})
}

func TestStorefront_ProductQuickView(t *testing.T) {
	ctx := context.Background()
	sf, _ := newTestStorefront(t)
	signupAndLogin(t, sf, "Lamp Co", "lamps@shop.pk")
	p := createProduct(t, sf, "Desk Lamp", 1200)

	got, ok, err := sf.Product(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Lamp Co", got.VendorName)

	_, err = sf.TogglePublish(ctx, p.ID)
	require.NoError(t, err)
	_, ok, err = sf.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ok, "hidden products are not visible to shoppers")
}

func TestProfiles_Isolation(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	profiles := NewProfiles(NewMemoryKV(), cfg)

	a := profiles.Get("")
	b := profiles.Get("second")
	assert.Same(t, a, profiles.Get(""))
	assert.NotSame(t, a, b)

	_, err := a.Signup(ctx, SignupRequest{Shop: "Alpha", Email: "a@shop.pk", Password: "secret1"})
	require.NoError(t, err)
	_, err = b.Login(ctx, "a@shop.pk", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestStorefront_NewID(t *testing.T) {
	sf, _ := newTestStorefront(t)
	sf.suffix = func() string { return "ab12" }
	id := sf.newID("p")
	assert.Regexp(t, `^p[0-9a-z]+ab12$`, id)
	assert.Regexp(t, `^ORD-[0-9A-F]{8}$`, newOrderID())
}
