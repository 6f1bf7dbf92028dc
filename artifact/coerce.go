package artifact

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pithecene-io/concierge/types"
)

// Field readers for loosely typed payloads. A field with an unexpected
// type reads as its zero value; it never rejects the enclosing entry.

// numberOf reads numeric kinds, json.Number and numeric strings.
func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}

func floatField(obj map[string]any, key string) float64 {
	f, _ := numberOf(obj[key])
	return f
}

func floatPtrField(obj map[string]any, key string) *float64 {
	f, ok := numberOf(obj[key])
	if !ok {
		return nil
	}
	return &f
}

// intField truncates fractional values.
func intField(obj map[string]any, key string) int {
	return int(floatField(obj, key))
}

func intPtrField(obj map[string]any, key string) *int {
	f, ok := numberOf(obj[key])
	if !ok {
		return nil
	}
	n := int(f)
	return &n
}

// textField reads strings as-is and renders numbers and booleans.
func textField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	}
	if f, ok := numberOf(obj[key]); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// objects returns the object elements of an array field.
func objects(obj map[string]any, key string) []map[string]any {
	items, _ := obj[key].([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if o, ok := asObject(item); ok {
			out = append(out, o)
		}
	}
	return out
}

func productFrom(obj map[string]any) types.ProductData {
	return types.ProductData{
		ID:            obj["id"],
		Name:          textField(obj, "name"),
		Slug:          textField(obj, "slug"),
		Brand:         textField(obj, "brand"),
		Category:      textField(obj, "category"),
		Description:   textField(obj, "description"),
		Price:         floatField(obj, "price"),
		OriginalPrice: floatPtrField(obj, "original_price"),
		ImageURL:      textField(obj, "image_url"),
		Stock:         intPtrField(obj, "stock"),
		Rating:        floatPtrField(obj, "rating"),
	}
}

func cartFrom(obj map[string]any) types.CartData {
	rows := objects(obj, "items")
	items := make([]types.CartItem, 0, len(rows))
	for _, it := range rows {
		items = append(items, types.CartItem{
			ID:        it["id"],
			ProductID: it["product_id"],
			Name:      textField(it, "name"),
			Quantity:  intField(it, "quantity"),
			Price:     floatField(it, "price"),
			Subtotal:  floatField(it, "subtotal"),
			ImageURL:  textField(it, "image_url"),
		})
	}
	return types.CartData{
		ID:         obj["id"],
		Items:      items,
		TotalItems: intField(obj, "total_items"),
		Subtotal:   floatField(obj, "subtotal"),
		Discount:   floatField(obj, "discount"),
		Total:      floatField(obj, "total"),
	}
}

func orderFrom(obj map[string]any) types.OrderListItem {
	return types.OrderListItem{
		ID:            obj["id"],
		OrderNumber:   textField(obj, "order_number"),
		Status:        textField(obj, "status"),
		PaymentStatus: textField(obj, "payment_status"),
		Total:         floatField(obj, "total"),
		TotalItems:    intField(obj, "total_items"),
		CreatedAt:     textField(obj, "created_at"),
	}
}

func orderDetailFrom(obj map[string]any) types.OrderDetail {
	rows := objects(obj, "items")
	items := make([]types.OrderItem, 0, len(rows))
	for _, it := range rows {
		items = append(items, types.OrderItem{
			ProductID: it["product_id"],
			Name:      textField(it, "name"),
			Quantity:  intField(it, "quantity"),
			Price:     floatField(it, "price"),
			Subtotal:  floatField(it, "subtotal"),
		})
	}
	addr, _ := asObject(obj["shipping_address"])
	return types.OrderDetail{
		ID:            obj["id"],
		OrderNumber:   textField(obj, "order_number"),
		Status:        textField(obj, "status"),
		PaymentStatus: textField(obj, "payment_status"),
		Total:         floatField(obj, "total"),
		Subtotal:      floatField(obj, "subtotal"),
		ShippingCost:  floatField(obj, "shipping_cost"),
		Items:         items,
		ShippingAddress: types.ShippingAddress{
			RecipientName: textField(addr, "recipient_name"),
			Phone:         textField(addr, "phone"),
			AddressLine:   textField(addr, "address_line"),
			City:          textField(addr, "city"),
			Province:      textField(addr, "province"),
			PostalCode:    textField(addr, "postal_code"),
		},
		CreatedAt: textField(obj, "created_at"),
	}
}
