package main

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

const (
	codConfirmation = "Order placed. Pay cash on delivery."
	cardRedirect    = "Redirecting to card payment."
	cardUnavailable = "Card payment is not available right now. Your order is saved as pending payment; we will contact you to complete it."
)

// Checkout records an order for the current cart. Cash orders clear the cart.
// Card orders stay pending whatever the payment session call returns.
func (s *Storefront) Checkout(ctx context.Context, req CheckoutReq) (CheckoutResult, error) {
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	req.Customer.Address = strings.TrimSpace(req.Customer.Address)
	req.Delivery = strings.ToLower(strings.TrimSpace(req.Delivery))
	req.Payment = strings.ToLower(strings.TrimSpace(req.Payment))

	order, err := s.placeOrder(ctx, req)
	if err != nil {
		return CheckoutResult{}, err
	}
	if order.Payment == PaymentCOD {
		return CheckoutResult{Order: order, Message: codConfirmation}, nil
	}

	// the profile lock is not held across the network call
	if s.sessions == nil {
		s.metrics.sessionFailed()
		s.logger.Warn("card checkout unavailable", zap.String("order_id", order.ID), zap.Error(ErrPaymentUnavailable))
		return CheckoutResult{Order: order, Message: cardUnavailable}, nil
	}
	url, err := s.sessions.CreateCheckoutSession(ctx, order)
	if err != nil {
		s.metrics.sessionFailed()
		s.logger.Warn("checkout session failed", zap.String("order_id", order.ID), zap.Error(err))
		return CheckoutResult{Order: order, Message: cardUnavailable}, nil
	}
	return CheckoutResult{Order: order, RedirectURL: url, Message: cardRedirect}, nil
}

func (s *Storefront) placeOrder(ctx context.Context, req CheckoutReq) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, subtotal, err := s.expandedCart(ctx)
	if err != nil {
		return Order{}, err
	}
	if len(lines) == 0 {
		return Order{}, ErrEmptyCart
	}
	if err := validateStruct(s.validate, req).orNil(); err != nil {
		return Order{}, err
	}

	sum := Summarize(lines, subtotal, req.Delivery, s.cfg.Commission.Rate, s.cfg.Delivery.ExpressFee)
	order := Order{
		ID:               newOrderID(),
		CreatedAt:        s.now().UTC(),
		Customer:         req.Customer,
		Delivery:         req.Delivery,
		DeliveryFee:      sum.DeliveryFee,
		Payment:          req.Payment,
		Subtotal:         sum.Subtotal,
		PlatformFeeTotal: sum.PlatformFeeTotal,
		Total:            sum.Total,
		Status:           StatusPendingPayment,
		Vendors:          sum.Vendors,
	}
	if req.Payment == PaymentCOD {
		order.Status = StatusPendingCOD
	}
	if err := s.store.AppendOrder(ctx, order); err != nil {
		return Order{}, err
	}
	s.metrics.orderSubmitted(order.Payment)
	s.logger.Info("order submitted",
		zap.String("order_id", order.ID),
		zap.String("payment", order.Payment),
		zap.Int64("total", order.Total),
		zap.Int64("platform_fee_total", order.PlatformFeeTotal),
	)

	if req.Payment == PaymentCOD {
		if err := s.store.SaveCart(ctx, Cart{}); err != nil {
			return Order{}, err
		}
	}
	return order, nil
}
