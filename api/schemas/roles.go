// api/schemas/roles.go
package schemas

// FieldRole classifies a form element by the kind of data it expects.
type FieldRole string

const (
	FieldBilling  FieldRole = "billing"
	FieldShipping FieldRole = "shipping"
	FieldPayment  FieldRole = "payment"
	FieldContact  FieldRole = "contact"
	FieldUnknown  FieldRole = "unknown"
)

// ClassifierOrder is the fixed tie-break order: the first role whose
// keyword set matches wins. Deliberate, not incidental.
var ClassifierOrder = []FieldRole{FieldBilling, FieldShipping, FieldPayment, FieldContact}

// FieldClassification maps roles to the ordered selectors of matched
// elements. Recomputed per page visit, never persisted. Unknown elements
// are retained; their count is a completeness signal for the engine.
type FieldClassification map[FieldRole][]string

// Classified reports whether any non-unknown role matched at least one
// element.
func (fc FieldClassification) Classified() bool {
	for role, sels := range fc {
		if role != FieldUnknown && len(sels) > 0 {
			return true
		}
	}
	return false
}

// UnknownCount returns the number of input-like elements no role claimed.
func (fc FieldClassification) UnknownCount() int {
	return len(fc[FieldUnknown])
}

// ButtonRole selects a locator-strategy cascade for page actions.
type ButtonRole string

const (
	ButtonAddToCart     ButtonRole = "add_to_cart"
	ButtonCheckout      ButtonRole = "checkout"
	ButtonViewCart      ButtonRole = "view_cart"
	ButtonPayment       ButtonRole = "payment"
	ButtonCompleteOrder ButtonRole = "complete_order"
)

// PaymentClass reports whether activating this button may submit a
// payment, and so must be followed by outcome detection.
func (b ButtonRole) PaymentClass() bool {
	return b == ButtonPayment || b == ButtonCompleteOrder
}
