package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type APIServer struct {
	listenAddr string
	profiles   *Profiles
	cfg        *Config
	logger     *zap.Logger
	metrics    *Metrics
	stripe     CheckoutSessionCreator
}

func NewAPIServer(cfg *Config, profiles *Profiles, logger *zap.Logger, metrics *Metrics, stripe CheckoutSessionCreator) *APIServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIServer{
		listenAddr: cfg.HTTP.Addr,
		profiles:   profiles,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		stripe:     stripe,
	}
}

func enableCors(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "DELETE, POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Authorization, X-Profile, X-Requested-With")
	w.Header().Set("Access-Control-Expose-Headers", "X-Authorization")
}

func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
		enableCors(w)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /products", makeHTTPHandleFunc(s.logger, s.handleProducts))
	mux.HandleFunc("GET /product/{id}", makeHTTPHandleFunc(s.logger, s.handleProductByID))
	mux.HandleFunc("GET /categories", makeHTTPHandleFunc(s.logger, s.handleCategories))

	mux.HandleFunc("GET /cart", makeHTTPHandleFunc(s.logger, s.handleCart))
	mux.HandleFunc("DELETE /cart", makeHTTPHandleFunc(s.logger, s.handleClearCart))
	mux.HandleFunc("GET /cart/summary", makeHTTPHandleFunc(s.logger, s.handleCartSummary))
	mux.HandleFunc("POST /cart/{action}/{id}", makeHTTPHandleFunc(s.logger, s.handleCartActions))

	mux.HandleFunc("POST /checkout", makeHTTPHandleFunc(s.logger, s.handleCheckout))
	mux.HandleFunc("GET /orders", makeHTTPHandleFunc(s.logger, s.handleOrders))

	mux.HandleFunc("POST /register", makeHTTPHandleFunc(s.logger, s.handleRegister))
	mux.HandleFunc("POST /login", makeHTTPHandleFunc(s.logger, s.handleLogin))
	mux.HandleFunc("POST /logout", makeHTTPHandleFunc(s.logger, s.handleLogout))

	mux.HandleFunc("GET /vendor/products", s.withJWTauth(s.handleVendorProducts))
	mux.HandleFunc("POST /vendor/products", s.withJWTauth(s.handleCreateProduct))
	mux.HandleFunc("POST /vendor/products/{id}/{action}", s.withJWTauth(s.handleVendorProductAction))
	mux.HandleFunc("DELETE /vendor/products/{id}", s.withJWTauth(s.handleDeleteProduct))
	mux.HandleFunc("GET /vendor/orders", s.withJWTauth(s.handleVendorOrders))
	mux.HandleFunc("GET /vendor/orders/{id}", s.withJWTauth(s.handleVendorOrder))

	mux.HandleFunc("POST /create-checkout-session", makeHTTPHandleFunc(s.logger, s.handleCreateCheckoutSession))
	mux.HandleFunc("POST /webhook", makeHTTPHandleFunc(s.logger, s.handleWebhook))
	mux.HandleFunc("GET /config", makeHTTPHandleFunc(s.logger, s.handleConfig))

	mux.HandleFunc("GET /{$}", makeHTTPHandleFunc(s.logger, s.handleIndex))
	mux.HandleFunc("GET /fragments/cart", makeHTTPHandleFunc(s.logger, s.handleCartFragment))
	mux.HandleFunc("GET /fragments/vendor", makeHTTPHandleFunc(s.logger, s.handleVendorFragment))
	if s.cfg.HTTP.StaticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.HTTP.StaticDir))))
	}

	var h http.Handler = mux
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
		h = s.metrics.Middleware(mux)
	}
	return h
}

// Run serves until ctx is cancelled.
func (s *APIServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("JSON API server running", zap.String("addr", s.listenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("error starting server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *APIServer) storefront(r *http.Request) *Storefront {
	return s.profiles.Get(r.Header.Get("X-Profile"))
}

func (s *APIServer) handleProducts(w http.ResponseWriter, r *http.Request) error {
	q := CatalogQuery{
		Query:    r.URL.Query().Get("q"),
		Category: r.URL.Query().Get("category"),
		Sort:     r.URL.Query().Get("sort"),
	}
	products, err := s.storefront(r).Catalog(r.Context(), q)
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, products)
}

func (s *APIServer) handleProductByID(w http.ResponseWriter, r *http.Request) error {
	p, ok, err := s.storefront(r).Product(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return WriteJSON(w, http.StatusOK, p)
}

func (s *APIServer) handleCategories(w http.ResponseWriter, r *http.Request) error {
	cats, err := s.storefront(r).Categories(r.Context())
	if err != nil {
		return err
	}
	if cats == nil {
		cats = []string{}
	}
	return WriteJSON(w, http.StatusOK, cats)
}

func (s *APIServer) handleCart(w http.ResponseWriter, r *http.Request) error {
	view, err := s.storefront(r).CartView(r.Context())
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, view)
}

func (s *APIServer) handleClearCart(w http.ResponseWriter, r *http.Request) error {
	if err := s.storefront(r).ClearCart(r.Context()); err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, map[string]string{"status": "cart cleared"})
}

func (s *APIServer) handleCartSummary(w http.ResponseWriter, r *http.Request) error {
	delivery := r.URL.Query().Get("delivery")
	if delivery == "" {
		delivery = DeliveryStandard
	}
	sum, err := s.storefront(r).Summary(r.Context(), delivery)
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, sum)
}

func (s *APIServer) handleCartActions(w http.ResponseWriter, r *http.Request) error {
	action := r.PathValue("action")
	id := r.PathValue("id")
	qty := 1
	if raw := r.URL.Query().Get("qty"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: qty is not a numeric value", errMalformedRequest)
		}
		qty = n
	}

	sf := s.storefront(r)
	var (
		ok  bool
		err error
	)
	switch action {
	case "add":
		ok, err = sf.AddToCart(r.Context(), id, qty)
	case "remove":
		ok, err = sf.AddToCart(r.Context(), id, -qty)
	case "delete":
		ok, err = sf.DeleteFromCart(r.Context(), id)
	default:
		return fmt.Errorf("%w: action not supported", errMalformedRequest)
	}
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	view, err := sf.CartView(r.Context())
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, view)
}

func (s *APIServer) handleCheckout(w http.ResponseWriter, r *http.Request) error {
	var req CheckoutReq
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	res, err := s.storefront(r).Checkout(r.Context(), req)
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusCreated, res)
}

func (s *APIServer) handleOrders(w http.ResponseWriter, r *http.Request) error {
	orders, err := s.storefront(r).Orders(r.Context())
	if err != nil {
		return err
	}
	if orders == nil {
		orders = []Order{}
	}
	return WriteJSON(w, http.StatusOK, orders)
}

func (s *APIServer) handleRegister(w http.ResponseWriter, r *http.Request) error {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	v, err := s.storefront(r).Signup(r.Context(), req)
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusCreated, map[string]string{
		"vendorId": v.ID,
		"shop":     v.Shop,
		"email":    v.Email,
	})
}

type loginResp struct {
	XAuth   string  `json:"X-Authorization"`
	Session Session `json:"session"`
}

func (s *APIServer) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	profile := r.Header.Get("X-Profile")
	sess, err := s.profiles.Get(profile).Login(r.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	token, err := generateJWT(s.cfg.JWT, sess, profile)
	if err != nil {
		return err
	}
	w.Header().Set("X-Authorization", token)
	return WriteJSON(w, http.StatusOK, loginResp{XAuth: token, Session: sess})
}

func (s *APIServer) handleLogout(w http.ResponseWriter, r *http.Request) error {
	if err := s.storefront(r).Logout(r.Context()); err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *APIServer) handleVendorProducts(w http.ResponseWriter, r *http.Request) error {
	products, err := s.storefront(r).VendorProducts(r.Context())
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, products)
}

func (s *APIServer) handleCreateProduct(w http.ResponseWriter, r *http.Request) error {
	var form ProductForm
	if err := decodeJSON(w, r, &form); err != nil {
		return err
	}
	p, err := s.storefront(r).CreateProduct(r.Context(), form)
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusCreated, p)
}

func (s *APIServer) handleVendorProductAction(w http.ResponseWriter, r *http.Request) error {
	sf := s.storefront(r)
	id := r.PathValue("id")
	var (
		ok  bool
		err error
	)
	switch r.PathValue("action") {
	case "publish":
		ok, err = sf.TogglePublish(r.Context(), id)
	case "feature":
		ok, err = sf.ToggleFeatured(r.Context(), id)
	default:
		return fmt.Errorf("%w: action not supported", errMalformedRequest)
	}
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	products, err := sf.VendorProducts(r.Context())
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, products)
}

func (s *APIServer) handleDeleteProduct(w http.ResponseWriter, r *http.Request) error {
	ok, err := s.storefront(r).DeleteProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return WriteJSON(w, http.StatusOK, map[string]string{"status": "product deleted"})
}

func (s *APIServer) handleVendorOrders(w http.ResponseWriter, r *http.Request) error {
	orders, err := s.storefront(r).VendorOrders(r.Context())
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, orders)
}

func (s *APIServer) handleVendorOrder(w http.ResponseWriter, r *http.Request) error {
	vo, ok, err := s.storefront(r).VendorOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return WriteJSON(w, http.StatusOK, vo)
}

func (s *APIServer) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) error {
	if s.stripe == nil {
		return ErrPaymentUnavailable
	}
	var req checkoutSessionReq
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.Order.ID == "" {
		return fmt.Errorf("%w: order is required", errMalformedRequest)
	}
	url, err := s.stripe.CreateCheckoutSession(r.Context(), req.Order)
	if err != nil {
		s.logger.Warn("stripe checkout session failed", zap.String("order_id", req.Order.ID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}
	return WriteJSON(w, http.StatusOK, checkoutSessionResp{URL: url})
}

// handleWebhook acknowledges Stripe events. Orders are not updated from it.
func (s *APIServer) handleWebhook(w http.ResponseWriter, r *http.Request) error {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformedRequest, err)
	}
	event, err := verifyWebhook(b, r.Header.Get("Stripe-Signature"), s.cfg.Stripe.WebhookSecret)
	if err != nil {
		s.logger.Warn("webhook rejected", zap.Error(err))
		return fmt.Errorf("%w: %v", errMalformedRequest, err)
	}
	if event.Type == "checkout.session.completed" && event.Data != nil {
		var cs struct {
			ClientReferenceID string `json:"client_reference_id"`
		}
		_ = json.Unmarshal(event.Data.Raw, &cs)
		s.logger.Info("checkout session completed", zap.String("order_id", cs.ClientReferenceID))
	}
	return WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *APIServer) handleConfig(w http.ResponseWriter, r *http.Request) error {
	return WriteJSON(w, http.StatusOK, struct {
		PublishableKey string  `json:"publishableKey"`
		ExpressFee     int64   `json:"expressFee"`
		CommissionRate float64 `json:"commissionRate"`
	}{
		PublishableKey: s.cfg.Stripe.PublishableKey,
		ExpressFee:     s.cfg.Delivery.ExpressFee,
		CommissionRate: s.cfg.Commission.Rate,
	})
}

func (s *APIServer) handleIndex(w http.ResponseWriter, r *http.Request) error {
	q := CatalogQuery{
		Query:    r.URL.Query().Get("q"),
		Category: r.URL.Query().Get("category"),
		Sort:     r.URL.Query().Get("sort"),
	}
	products, err := s.storefront(r).Catalog(r.Context(), q)
	if err != nil {
		return err
	}
	body, err := RenderProductGrid(products)
	if err != nil {
		return err
	}
	return writeHTML(w, body)
}

func (s *APIServer) handleCartFragment(w http.ResponseWriter, r *http.Request) error {
	view, err := s.storefront(r).CartView(r.Context())
	if err != nil {
		return err
	}
	body, err := RenderCart(view)
	if err != nil {
		return err
	}
	return writeHTML(w, body)
}

func (s *APIServer) handleVendorFragment(w http.ResponseWriter, r *http.Request) error {
	sf := s.storefront(r)
	sess, err := sf.CurrentSession(r.Context())
	if err != nil {
		return err
	}
	var products []Product
	if sess != nil {
		if products, err = sf.VendorProducts(r.Context()); err != nil && !errors.Is(err, ErrNotLoggedIn) {
			return err
		}
	}
	body, err := RenderVendorPanel(sess, products)
	if err != nil {
		return err
	}
	return writeHTML(w, body)
}

var errMalformedRequest = errors.New("malformed request")

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errMalformedRequest, err)
	}
	return nil
}

type APIfunc func(http.ResponseWriter, *http.Request) error

type ApiError struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

func makeHTTPHandleFunc(logger *zap.Logger, f APIfunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enableCors(w)
		if err := f(w, r); err != nil {
			status, body := errorResponse(err)
			if status >= http.StatusInternalServerError {
				logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
			}
			_ = WriteJSON(w, status, body)
		}
	}
}

func errorResponse(err error) (int, ApiError) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ApiError{Error: "validation failed", Fields: verr.Fields}
	case errors.Is(err, errMalformedRequest), errors.Is(err, ErrEmptyCart):
		return http.StatusBadRequest, ApiError{Error: err.Error()}
	case errors.Is(err, ErrDuplicateEmail):
		return http.StatusConflict, ApiError{Error: err.Error()}
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrNotLoggedIn):
		return http.StatusUnauthorized, ApiError{Error: err.Error()}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, ApiError{Error: err.Error()}
	case errors.Is(err, ErrPaymentUnavailable):
		return http.StatusServiceUnavailable, ApiError{Error: err.Error()}
	default:
		return http.StatusInternalServerError, ApiError{Error: "internal error"}
	}
}

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeHTML(w http.ResponseWriter, body []byte) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(body)
	return err
}

type Claims struct {
	VendorID string `json:"vendorId"`
	Email    string `json:"email"`
	Shop     string `json:"shop"`
	Profile  string `json:"profile"`
	jwt.StandardClaims
}

func generateJWT(cfg JWTConfig, sess Session, profile string) (string, error) {
	claims := &Claims{
		VendorID: sess.VendorID,
		Email:    sess.Email,
		Shop:     sess.Shop,
		Profile:  profile,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(cfg.TTL).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

func ParseJWT(cfg JWTConfig, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
		}
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// withJWTauth admits requests whose token belongs to the vendor currently
// logged in on the requested profile.
func (s *APIServer) withJWTauth(f APIfunc) http.HandlerFunc {
	return makeHTTPHandleFunc(s.logger, func(w http.ResponseWriter, r *http.Request) error {
		claims, err := ParseJWT(s.cfg.JWT, r.Header.Get("X-Authorization"))
		if err != nil {
			return ErrNotLoggedIn
		}
		profile := r.Header.Get("X-Profile")
		if claims.Profile != profile {
			return ErrNotLoggedIn
		}
		sess, err := s.profiles.Get(profile).CurrentSession(r.Context())
		if err != nil {
			return err
		}
		if sess == nil || sess.VendorID != claims.VendorID {
			return ErrNotLoggedIn
		}
		return f(w, r)
	})
}
