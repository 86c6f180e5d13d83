package models

// Product is a single catalog item presented to the shopper.
type Product struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"priceCents"`
	Currency   string `json:"currency"`
	ImageURL   string `json:"imageUrl,omitempty"`
	ProductURL string `json:"productUrl,omitempty"`
	InStock    bool   `json:"inStock"`
}

// CartItem is one line in a shopper's cart.
type CartItem struct {
	ProductID  string `json:"productId"`
	Title      string `json:"title"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
}

// CartSnapshot is the cart state returned by the commerce provider.
type CartSnapshot struct {
	CartKey    string     `json:"cartKey"`
	Items      []CartItem `json:"items,omitempty"`
	TotalCents int64      `json:"totalCents"`
	Currency   string     `json:"currency"`
}

// NormalizedResponse is the transport-agnostic response every pipeline
// path produces. Channel rendering happens only in the channel adapter.
type NormalizedResponse struct {
	Message     string                 `json:"message"`
	Intent      string                 `json:"intent,omitempty"`
	Confidence  float64                `json:"confidence,omitempty"`
	Products    []Product              `json:"products,omitempty"`
	Cart        *CartSnapshot          `json:"cart,omitempty"`
	CheckoutURL string                 `json:"checkoutUrl,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// WithMeta sets a metadata key, allocating the map on first use.
func (r *NormalizedResponse) WithMeta(key string, value interface{}) *NormalizedResponse {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
	return r
}

// HasStructuredPayload reports whether the response carries anything
// beyond plain text.
func (r *NormalizedResponse) HasStructuredPayload() bool {
	return len(r.Products) > 0 || r.Cart != nil || r.CheckoutURL != ""
}
