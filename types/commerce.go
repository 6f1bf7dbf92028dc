package types

// Typed projections of artifact payloads. These are derived on demand by
// the artifact package and never stored on a Message. Field sets mirror
// what the storefront backend tools return; unknown fields are ignored.

// ProductData is one product returned by a catalog search tool.
type ProductData struct {
	ID            any      `json:"id"`
	Name          string   `json:"name"`
	Slug          string   `json:"slug,omitempty"`
	Brand         string   `json:"brand,omitempty"`
	Category      string   `json:"category,omitempty"`
	Description   string   `json:"description,omitempty"`
	Price         float64  `json:"price"`
	OriginalPrice *float64 `json:"original_price,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
	Stock         *int     `json:"stock,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
}

// CartItem is one line of a cart snapshot.
type CartItem struct {
	ID        any     `json:"id"`
	ProductID any     `json:"product_id,omitempty"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Subtotal  float64 `json:"subtotal,omitempty"`
	ImageURL  string  `json:"image_url,omitempty"`
}

// CartData is a cart snapshot returned by view_cart.
type CartData struct {
	ID         any        `json:"id"`
	Items      []CartItem `json:"items"`
	TotalItems int        `json:"total_items"`
	Subtotal   float64    `json:"subtotal"`
	Discount   float64    `json:"discount,omitempty"`
	Total      float64    `json:"total,omitempty"`
}

// OrderListItem is one row of get_my_orders.
type OrderListItem struct {
	ID            any     `json:"id"`
	OrderNumber   string  `json:"order_number"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	Total         float64 `json:"total"`
	TotalItems    int     `json:"total_items"`
	CreatedAt     string  `json:"created_at"`
}

// OrderItem is one line of an order detail.
type OrderItem struct {
	ProductID any     `json:"product_id,omitempty"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Subtotal  float64 `json:"subtotal,omitempty"`
}

// ShippingAddress is the delivery address of an order.
type ShippingAddress struct {
	RecipientName string `json:"recipient_name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	AddressLine   string `json:"address_line,omitempty"`
	City          string `json:"city,omitempty"`
	Province      string `json:"province,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
}

// OrderDetail is the confirmation returned by create_order.
type OrderDetail struct {
	ID              any             `json:"id"`
	OrderNumber     string          `json:"order_number"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	Total           float64         `json:"total"`
	Subtotal        float64         `json:"subtotal,omitempty"`
	ShippingCost    float64         `json:"shipping_cost,omitempty"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	CreatedAt       string          `json:"created_at,omitempty"`
}
