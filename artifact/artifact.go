// Package artifact extracts typed storefront views from the raw tool
// artifacts attached to assistant messages.
//
// Payloads cross a process boundary and are only loosely typed, so every
// extractor validates shape at runtime and degrades to "nothing to show"
// (nil or empty) instead of failing. No function in this package panics
// on unexpected input.
package artifact

import "github.com/pithecene-io/concierge/types"

// Backend tool names with a dedicated renderer.
const (
	ToolSearchProducts    = "search_products"
	ToolSearchNewArrivals = "search_product_new_arrival"
	ToolViewCart          = "view_cart"
	ToolGetMyOrders       = "get_my_orders"
	ToolCreateOrder       = "create_order"
)

// Kind is a renderable view derived from a message's artifacts.
type Kind string

// Render kinds.
const (
	KindProductCarousel   Kind = "product_carousel"
	KindCart              Kind = "cart"
	KindOrderList         Kind = "order_list"
	KindOrderConfirmation Kind = "order_confirmation"
)

// ExtractProducts flattens the array payloads of all product search
// artifacts into a single list, preserving artifact and element order.
// Elements that are not objects are skipped; mistyped fields read as zero.
func ExtractProducts(artifacts []types.Artifact) []types.ProductData {
	var out []types.ProductData
	for _, item := range flatten(artifacts, ToolSearchProducts, ToolSearchNewArrivals) {
		if obj, ok := asObject(item); ok {
			out = append(out, productFrom(obj))
		}
	}
	return out
}

// ExtractCart returns the first view_cart artifact whose payload is an
// object. Array payloads are a shape mismatch and are ignored, not coerced.
func ExtractCart(artifacts []types.Artifact) *types.CartData {
	for _, a := range artifacts {
		if a.ToolName != ToolViewCart {
			continue
		}
		if obj, ok := asObject(a.Payload); ok {
			cart := cartFrom(obj)
			return &cart
		}
	}
	return nil
}

// ExtractOrders flattens get_my_orders payloads and keeps only entries
// that pass IsOrderListItem. Malformed entries are dropped silently.
func ExtractOrders(artifacts []types.Artifact) []types.OrderListItem {
	var out []types.OrderListItem
	for _, item := range flatten(artifacts, ToolGetMyOrders) {
		if IsOrderListItem(item) {
			out = append(out, orderFrom(item.(map[string]any)))
		}
	}
	return out
}

// ExtractOrderDetail returns the first create_order payload that passes
// IsOrderDetail, or nil.
func ExtractOrderDetail(artifacts []types.Artifact) *types.OrderDetail {
	for _, a := range artifacts {
		if a.ToolName == ToolCreateOrder && IsOrderDetail(a.Payload) {
			d := orderDetailFrom(a.Payload.(map[string]any))
			return &d
		}
	}
	return nil
}

// Classify returns the render kinds the artifacts can produce, in a fixed
// order. An empty result means there is nothing special to render.
func Classify(artifacts []types.Artifact) []Kind {
	var kinds []Kind
	if len(ExtractProducts(artifacts)) > 0 {
		kinds = append(kinds, KindProductCarousel)
	}
	if ExtractCart(artifacts) != nil {
		kinds = append(kinds, KindCart)
	}
	if len(ExtractOrders(artifacts)) > 0 {
		kinds = append(kinds, KindOrderList)
	}
	if ExtractOrderDetail(artifacts) != nil {
		kinds = append(kinds, KindOrderConfirmation)
	}
	return kinds
}

// flatten concatenates the elements of every array payload produced by
// one of the named tools. Non-array payloads contribute nothing.
func flatten(artifacts []types.Artifact, tools ...string) []any {
	var out []any
	for _, a := range artifacts {
		if !matchesTool(a.ToolName, tools) {
			continue
		}
		if items, ok := a.Payload.([]any); ok {
			out = append(out, items...)
		}
	}
	return out
}

func matchesTool(name string, tools []string) bool {
	for _, t := range tools {
		if name == t {
			return true
		}
	}
	return false
}
