package main

import (
	"strings"
	"time"
)

const placeholderImage = "https://via.placeholder.com/300x200?text=Product"

type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
	Category   string `json:"category"`
	Img        string `json:"img"`
	Desc       string `json:"desc"`
	VendorID   string `json:"vendorId"`
	VendorName string `json:"vendorName"`
	Published  bool   `json:"published"`
	Featured   bool   `json:"featured"`
}

// NewProduct fills the defaults a stored or submitted product may be missing.
func NewProduct(p Product) Product {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	if p.Category == "" {
		p.Category = "General"
	}
	p.Img = strings.TrimSpace(p.Img)
	if p.Img == "" {
		p.Img = placeholderImage
	}
	p.Desc = strings.TrimSpace(p.Desc)
	return p
}

// ProductForm is what a vendor submits to list a product.
type ProductForm struct {
	Name      string `json:"name" validate:"required,max=120"`
	Price     int64  `json:"price" validate:"gt=0"`
	Category  string `json:"category" validate:"max=60"`
	Img       string `json:"img" validate:"omitempty,url"`
	Desc      string `json:"desc" validate:"max=1000"`
	Published bool   `json:"published"`
	Featured  bool   `json:"featured"`
}

type Vendor struct {
	ID       string `json:"vendorId"`
	Shop     string `json:"shop"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Approved bool   `json:"approved"`
}

func NewVendor(v Vendor) Vendor {
	v.ID = strings.TrimSpace(v.ID)
	v.Shop = strings.TrimSpace(v.Shop)
	v.Email = normalizeEmail(v.Email)
	v.Approved = true
	return v
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type SignupRequest struct {
	Shop     string `json:"shop" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the logged in vendor of a profile.
type Session struct {
	VendorID string `json:"vendorId"`
	Email    string `json:"email"`
	Shop     string `json:"shop"`
}

// Cart maps a product id to its quantity.
type Cart map[string]int

type CartLine struct {
	ProductID  string `json:"productId"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
	Qty        int    `json:"qty"`
	LineTotal  int64  `json:"lineTotal"`
	VendorID   string `json:"vendorId"`
	VendorName string `json:"vendorName"`
	Img        string `json:"img"`
}

type OrderItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Qty       int    `json:"qty"`
	LineTotal int64  `json:"lineTotal"`
}

type VendorBreakdown struct {
	VendorID   string      `json:"vendorId"`
	VendorName string      `json:"vendorName"`
	Gross      int64       `json:"gross"`
	Fee        int64       `json:"fee"`
	Net        int64       `json:"net"`
	Items      []OrderItem `json:"items"`
}

type Customer struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"required,min=7,max=20"`
	Address string `json:"address" validate:"required,max=500"`
}

const (
	DeliveryStandard = "standard"
	DeliveryExpress  = "express"

	PaymentCOD  = "cod"
	PaymentCard = "card"

	StatusPendingCOD     = "Pending COD"
	StatusPendingPayment = "Pending Payment"
)

type Order struct {
	ID               string            `json:"id"`
	CreatedAt        time.Time         `json:"createdAt"`
	Customer         Customer          `json:"customer"`
	Delivery         string            `json:"delivery"`
	DeliveryFee      int64             `json:"deliveryFee"`
	Payment          string            `json:"payment"`
	Subtotal         int64             `json:"subtotal"`
	PlatformFeeTotal int64             `json:"platformFeeTotal"`
	Total            int64             `json:"total"`
	Status           string            `json:"status"`
	Vendors          []VendorBreakdown `json:"vendors"`
}

type CheckoutReq struct {
	Customer Customer `json:"customer"`
	Delivery string   `json:"delivery" validate:"required,oneof=standard express"`
	Payment  string   `json:"payment" validate:"required,oneof=cod card"`
}

type CheckoutResult struct {
	Order       Order  `json:"order"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	Message     string `json:"message"`
}

type CartView struct {
	Lines     []CartLine `json:"lines"`
	Subtotal  int64      `json:"subtotal"`
	ItemCount int        `json:"itemCount"`
}
