package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// CheckoutSessionCreator turns a recorded order into a payment page URL.
type CheckoutSessionCreator interface {
	CreateCheckoutSession(ctx context.Context, order Order) (string, error)
}

type checkoutSessionReq struct {
	Order Order `json:"order"`
}

type checkoutSessionResp struct {
	URL string `json:"url"`
}

// HTTPSessionClient calls POST <base>/create-checkout-session.
type HTTPSessionClient struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPSessionClient(cfg PaymentConfig) *HTTPSessionClient {
	return &HTTPSessionClient{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		Client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *HTTPSessionClient) CreateCheckoutSession(ctx context.Context, order Order) (string, error) {
	body, err := json.Marshal(checkoutSessionReq{Order: order})
	if err != nil {
		return "", fmt.Errorf("encode order: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/create-checkout-session", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("create checkout session: status %d", resp.StatusCode)
	}
	var out checkoutSessionResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode checkout session: %w", err)
	}
	if out.URL == "" {
		return "", errors.New("create checkout session: response has no url")
	}
	return out.URL, nil
}

// StripeSessionCreator opens Stripe Checkout sessions for orders.
type StripeSessionCreator struct {
	sc  *client.API
	cfg StripeConfig
}

func NewStripeSessionCreator(cfg StripeConfig) *StripeSessionCreator {
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return &StripeSessionCreator{sc: sc, cfg: cfg}
}

func (s *StripeSessionCreator) CreateCheckoutSession(ctx context.Context, order Order) (string, error) {
	params := buildCheckoutSessionParams(order, s.cfg)
	params.Context = ctx
	cs, err := s.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe checkout session: %w", err)
	}
	if cs.URL == "" {
		return "", errors.New("stripe checkout session: no url")
	}
	return cs.URL, nil
}

// buildCheckoutSessionParams prices every item in minor units, plus a line
// for the express surcharge.
func buildCheckoutSessionParams(order Order, cfg StripeConfig) *stripe.CheckoutSessionParams {
	currency := cfg.Currency
	if currency == "" {
		currency = string(stripe.CurrencyINR)
	}
	var items []*stripe.CheckoutSessionLineItemParams
	for _, v := range order.Vendors {
		for _, it := range v.Items {
			items = append(items, &stripe.CheckoutSessionLineItemParams{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(it.Name),
					},
					UnitAmount: stripe.Int64(it.Price * 100),
				},
				Quantity: stripe.Int64(int64(it.Qty)),
			})
		}
	}
	if order.DeliveryFee > 0 {
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Express delivery"),
				},
				UnitAmount: stripe.Int64(order.DeliveryFee * 100),
			},
			Quantity: stripe.Int64(1),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         items,
		SuccessURL:        stripe.String(cfg.SuccessURL),
		CancelURL:         stripe.String(cfg.CancelURL),
		ClientReferenceID: stripe.String(order.ID),
	}
	params.AddMetadata("order_id", order.ID)
	params.AddMetadata("platform_fee_total", fmt.Sprint(order.PlatformFeeTotal))
	return params
}

// verifyWebhook checks the Stripe-Signature header and decodes the event.
func verifyWebhook(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
}
