package main

import (
	"bytes"
	"html/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var pricePrinter = message.NewPrinter(language.English)

// formatPrice renders a rupee amount with digit grouping, e.g. "Rs 2,499".
func formatPrice(amount int64) string {
	return pricePrinter.Sprintf("Rs %d", amount)
}

var fragments = template.Must(template.New("fragments").Funcs(template.FuncMap{
	"price": formatPrice,
}).Parse(`
{{define "grid"}}{{range .}}<div class="card" data-id="{{.ID}}">
  <img src="{{.Img}}" alt="{{.Name}}">
  <h4>{{.Name}}{{if .Featured}} <span class="badge">Featured</span>{{end}}</h4>
  <p>{{.Desc}}</p>
  <small>{{.Category}} · {{.VendorName}}</small>
  <strong>{{price .Price}}</strong>
  <button data-add="{{.ID}}">Add</button>
</div>
{{else}}<p class="empty">No products found</p>
{{end}}{{end}}
{{define "cart"}}<div class="cart">
{{range .Lines}}  <p>{{.Name}} × {{.Qty}} <span>{{price .LineTotal}}</span></p>
{{else}}  <p class="empty">Your cart is empty</p>
{{end}}  <p class="total">Total: <strong>{{price .Subtotal}}</strong> ({{.ItemCount}} items)</p>
</div>
{{end}}
{{define "vendor"}}{{if .Session}}<p class="status">Logged in as {{.Session.Shop}}</p>
{{range .Products}}<div>{{.Name}} ({{if .Published}}Visible{{else}}Hidden{{end}}{{if .Featured}}, Featured{{end}})</div>
{{end}}{{else}}<p class="status">Not logged in</p>
<p>Login first</p>
{{end}}{{end}}
`))

type vendorFragment struct {
	Session  *Session
	Products []Product
}

func renderFragment(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := fragments.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func RenderProductGrid(products []Product) ([]byte, error) {
	return renderFragment("grid", products)
}

func RenderCart(view CartView) ([]byte, error) {
	return renderFragment("cart", view)
}

func RenderVendorPanel(sess *Session, products []Product) ([]byte, error) {
	return renderFragment("vendor", vendorFragment{Session: sess, Products: products})
}
