package artifact

import "encoding/json"

// IsOrderListItem reports whether v has the shape of an order list row:
// id, order_number, status, payment_status, numeric total and
// total_items, and created_at.
func IsOrderListItem(v any) bool {
	obj, ok := asObject(v)
	if !ok {
		return false
	}
	return hasID(obj) &&
		isString(obj["order_number"]) &&
		isString(obj["status"]) &&
		isString(obj["payment_status"]) &&
		isNumber(obj["total"]) &&
		isNumber(obj["total_items"]) &&
		isString(obj["created_at"])
}

// IsOrderDetail reports whether v has the shape of an order confirmation:
// id, order_number, status, payment_status, numeric total, an items
// array and a shipping_address object.
func IsOrderDetail(v any) bool {
	obj, ok := asObject(v)
	if !ok {
		return false
	}
	if _, ok := obj["items"].([]any); !ok {
		return false
	}
	if _, ok := asObject(obj["shipping_address"]); !ok {
		return false
	}
	return hasID(obj) &&
		isString(obj["order_number"]) &&
		isString(obj["status"]) &&
		isString(obj["payment_status"]) &&
		isNumber(obj["total"])
}

// asObject returns v as a JSON object. Arrays and scalars are rejected.
func asObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	return obj, ok && obj != nil
}

// hasID accepts string or numeric identifiers; backends use both.
func hasID(obj map[string]any) bool {
	id, present := obj["id"]
	if !present || id == nil {
		return false
	}
	if s, ok := id.(string); ok {
		return s != ""
	}
	return isNumber(id)
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

// isNumber accepts every numeric representation a decoder may produce:
// float64 from encoding/json, the smallest fitting integer type from
// msgpack, and json.Number when UseNumber is set.
func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		json.Number:
		return true
	default:
		return false
	}
}
