package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiClient struct {
	t       *testing.T
	srv     *httptest.Server
	profile string
	token   string
}

func newTestAPI(t *testing.T, stripe CheckoutSessionCreator) (*apiClient, *Metrics) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Stripe.WebhookSecret = "whsec_test"
	metrics := NewMetrics()
	profiles := NewProfiles(NewMemoryKV(), cfg, WithMetrics(metrics))
	srv := httptest.NewServer(NewAPIServer(cfg, profiles, nil, metrics, stripe).Handler())
	t.Cleanup(srv.Close)
	return &apiClient{t: t, srv: srv}, metrics
}

func (c *apiClient) do(method, path string, body any) (int, []byte) {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, r)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.profile != "" {
		req.Header.Set("X-Profile", c.profile)
	}
	if c.token != "" {
		req.Header.Set("X-Authorization", c.token)
	}
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, out
}

func (c *apiClient) decode(raw []byte, v any) {
	c.t.Helper()
	require.NoError(c.t, json.Unmarshal(raw, v), string(raw))
}

func (c *apiClient) login(shop, email string) {
	c.t.Helper()
	status, _ := c.do(http.MethodPost, "/register", SignupRequest{Shop: shop, Email: email, Password: "secret1"})
	require.Equal(c.t, http.StatusCreated, status)
	status, raw := c.do(http.MethodPost, "/login", LoginRequest{Email: email, Password: "secret1"})
	require.Equal(c.t, http.StatusOK, status)
	var resp loginResp
	c.decode(raw, &resp)
	require.NotEmpty(c.t, resp.XAuth)
	c.token = resp.XAuth
}

func TestAPI_ShopperFlow(t *testing.T) {
	c, metrics := newTestAPI(t, nil)
	c.login("Kurta House", "kurta@shop.pk")

	status, raw := c.do(http.MethodPost, "/vendor/products", ProductForm{Name: "Kurta", Price: 2499, Category: "Clothing", Published: true})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var p Product
	c.decode(raw, &p)

	status, raw = c.do(http.MethodGet, "/products?q=kurta", nil)
	require.Equal(t, http.StatusOK, status)
	var list []Product
	c.decode(raw, &list)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	status, _ = c.do(http.MethodGet, "/product/"+p.ID, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodGet, "/product/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, raw = c.do(http.MethodPost, "/cart/add/"+p.ID, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var view CartView
	c.decode(raw, &view)
	assert.Equal(t, int64(2499), view.Subtotal)

	status, _ = c.do(http.MethodPost, "/cart/add/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = c.do(http.MethodPost, "/cart/add/"+p.ID+"?qty=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = c.do(http.MethodGet, "/cart/summary?delivery=express", nil)
	require.Equal(t, http.StatusOK, status)
	var sum Summary
	c.decode(raw, &sum)
	assert.Equal(t, int64(2699), sum.Total)
	assert.Equal(t, int64(250), sum.PlatformFeeTotal)

	status, raw = c.do(http.MethodPost, "/checkout", CheckoutReq{Customer: testCustomer, Delivery: DeliveryStandard, Payment: PaymentCOD})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var res CheckoutResult
	c.decode(raw, &res)
	assert.Equal(t, StatusPendingCOD, res.Order.Status)
	assert.Equal(t, int64(2499), res.Order.Total)
	assert.Equal(t, int64(250), res.Order.PlatformFeeTotal)
	assert.Equal(t, codConfirmation, res.Message)

	status, raw = c.do(http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, status)
	c.decode(raw, &view)
	assert.Empty(t, view.Lines)

	status, raw = c.do(http.MethodGet, "/vendor/orders", nil)
	require.Equal(t, http.StatusOK, status)
	var vos []VendorOrder
	c.decode(raw, &vos)
	require.Len(t, vos, 1)
	assert.Equal(t, res.Order.ID, vos[0].OrderID)

	status, _ = c.do(http.MethodGet, "/vendor/orders/"+res.Order.ID, nil)
	assert.Equal(t, http.StatusOK, status)

	status, raw = c.do(http.MethodGet, "/orders", nil)
	require.Equal(t, http.StatusOK, status)
	var orders []Order
	c.decode(raw, &orders)
	assert.Len(t, orders, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ordersSubmitted.WithLabelValues(PaymentCOD)))
}

func TestAPI_CheckoutErrors(t *testing.T) {
	c, _ := newTestAPI(t, nil)

	status, raw := c.do(http.MethodPost, "/checkout", CheckoutReq{Customer: testCustomer, Delivery: DeliveryStandard, Payment: PaymentCOD})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(raw), ErrEmptyCart.Error())

	c.login("Kurta House", "kurta@shop.pk")
	_, raw = c.do(http.MethodPost, "/vendor/products", ProductForm{Name: "Kurta", Price: 2499, Published: true})
	var p Product
	c.decode(raw, &p)
	status, _ = c.do(http.MethodPost, "/cart/add/"+p.ID, nil)
	require.Equal(t, http.StatusOK, status)

	status, raw = c.do(http.MethodPost, "/checkout", CheckoutReq{Delivery: DeliveryStandard, Payment: "bitcoin"})
	assert.Equal(t, http.StatusBadRequest, status)
	var apiErr ApiError
	c.decode(raw, &apiErr)
	assert.Equal(t, "validation failed", apiErr.Error)
	assert.NotEmpty(t, apiErr.Fields)

	req, err := http.NewRequest(http.MethodPost, c.srv.URL+"/checkout", strings.NewReader("{"))
	require.NoError(t, err)
	resp, err := c.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_VendorAuth(t *testing.T) {
	c, _ := newTestAPI(t, nil)

	status, _ := c.do(http.MethodGet, "/vendor/products", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	c.login("Kurta House", "kurta@shop.pk")
	status, _ = c.do(http.MethodPost, "/register", SignupRequest{Shop: "Again", Email: "KURTA@shop.pk", Password: "secret1"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = c.do(http.MethodPost, "/login", LoginRequest{Email: "kurta@shop.pk", Password: "bad"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = c.do(http.MethodGet, "/vendor/products", nil)
	assert.Equal(t, http.StatusOK, status)

	t.Run("token is bound to its profile", func(t *testing.T) {
		other := *c
		other.t = t
		other.profile = "second"
		status, _ := other.do(http.MethodGet, "/vendor/products", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("garbage token", func(t *testing.T) {
		other := *c
		other.t = t
		other.token = "not-a-jwt"
		status, _ := other.do(http.MethodGet, "/vendor/products", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	status, _ = c.do(http.MethodPost, "/logout", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodGet, "/vendor/products", nil)
	assert.Equal(t, http.StatusUnauthorized, status, "logout revokes the token")
}

func TestAPI_VendorProductActions(t *testing.T) {
	c, _ := newTestAPI(t, nil)
	c.login("Kurta House", "kurta@shop.pk")
	_, raw := c.do(http.MethodPost, "/vendor/products", ProductForm{Name: "Kurta", Price: 2499})
	var p Product
	c.decode(raw, &p)
	assert.False(t, p.Published)

	status, raw := c.do(http.MethodPost, "/vendor/products/"+p.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, status)
	var mine []Product
	c.decode(raw, &mine)
	require.Len(t, mine, 1)
	assert.True(t, mine[0].Published)

	status, _ = c.do(http.MethodPost, "/vendor/products/"+p.ID+"/feature", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodPost, "/vendor/products/"+p.ID+"/archive", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = c.do(http.MethodPost, "/vendor/products/nope/publish", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = c.do(http.MethodDelete, "/vendor/products/"+p.ID, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodDelete, "/vendor/products/"+p.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_CardCheckout(t *testing.T) {
	sessions := &fakeSessions{url: "https://pay.example/cs_9"}
	c, _ := newTestAPI(t, sessions)

	status, raw := c.do(http.MethodPost, "/create-checkout-session", checkoutSessionReq{Order: sampleOrder()})
	require.Equal(t, http.StatusOK, status, string(raw))
	var resp checkoutSessionResp
	c.decode(raw, &resp)
	assert.Equal(t, "https://pay.example/cs_9", resp.URL)

	status, _ = c.do(http.MethodPost, "/create-checkout-session", checkoutSessionReq{})
	assert.Equal(t, http.StatusBadRequest, status)

	noStripe, _ := newTestAPI(t, nil)
	status, _ = noStripe.do(http.MethodPost, "/create-checkout-session", checkoutSessionReq{Order: sampleOrder()})
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestAPI_Webhook(t *testing.T) {
	c, _ := newTestAPI(t, nil)
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","client_reference_id":"ORD-1"}}}`)

	post := func(sig string) int {
		req, err := http.NewRequest(http.MethodPost, c.srv.URL+"/webhook", bytes.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Stripe-Signature", sig)
		resp, err := c.srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusOK, post(signStripePayload(payload, "whsec_test", time.Now())))
	assert.Equal(t, http.StatusBadRequest, post("t=1,v1=deadbeef"))
}

func TestAPI_PagesAndMeta(t *testing.T) {
	c, _ := newTestAPI(t, nil)

	status, raw := c.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "No products found")

	status, raw = c.do(http.MethodGet, "/fragments/cart", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "Your cart is empty")

	status, raw = c.do(http.MethodGet, "/fragments/vendor", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "Not logged in")

	status, raw = c.do(http.MethodGet, "/config", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"publishableKey":"","expressFee":200,"commissionRate":0.1}`, string(raw))

	status, raw = c.do(http.MethodGet, "/categories", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(raw))

	status, _ = c.do(http.MethodOptions, "/checkout", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, raw = c.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "vendormarket_http_requests_total")
}

func TestAPI_ProfilesAreIsolated(t *testing.T) {
	c, _ := newTestAPI(t, nil)
	c.login("Kurta House", "kurta@shop.pk")
	_, raw := c.do(http.MethodPost, "/vendor/products", ProductForm{Name: "Kurta", Price: 2499, Published: true})
	var p Product
	c.decode(raw, &p)

	other := &apiClient{t: t, srv: c.srv, profile: "second"}
	status, raw := other.do(http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, status)
	var list []Product
	other.decode(raw, &list)
	assert.Empty(t, list)
}
