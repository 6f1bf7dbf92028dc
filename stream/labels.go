package stream

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var toolLabels = map[string]string{
	"search_products":            "Searching products",
	"search_product_new_arrival": "Looking up new arrivals",
	"view_cart":                  "Checking your cart",
	"add_to_cart":                "Updating your cart",
	"update_cart_item":           "Updating your cart",
	"remove_from_cart":           "Updating your cart",
	"get_my_orders":              "Fetching your orders",
	"get_order_detail":           "Fetching your order",
	"create_order":               "Placing your order",
}

// HumanLabel maps a backend tool name to the progress text shown while it
// runs. Unknown tools fall back to the title-cased name ("check_stock"
// becomes "Check Stock").
func HumanLabel(tool string) string {
	if label, ok := toolLabels[tool]; ok {
		return label
	}
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(tool))
	if len(words) == 0 {
		return "Working"
	}
	// Casers carry state; build one per call.
	return cases.Title(language.English).String(strings.Join(words, " "))
}
