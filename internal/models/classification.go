package models

// Supported intents. The classifier is a black box; anything outside this
// set dispatches to the unknown handler.
const (
	IntentProductSearch  = "product_search"
	IntentAddToCart      = "add_to_cart"
	IntentViewCart       = "view_cart"
	IntentRemoveFromCart = "remove_from_cart"
	IntentCheckout       = "checkout"
	IntentOrderStatus    = "order_status"
	IntentGreeting       = "greeting"
	IntentFAQ            = "faq"
	IntentUnknown        = "unknown"
)

// Entity keys the pipeline cares about.
const (
	EntityBudget   = "budget"
	EntityCategory = "category"
	EntitySize     = "size"
	EntityColor    = "color"
	EntityBrand    = "brand"
	EntityProduct  = "product_name"
	EntityQuantity = "quantity"
	EntityOrderID  = "order_id"
)

// ClassificationResult is the labeled output of the external classifier.
type ClassificationResult struct {
	Intent           string                 `json:"intent"`
	Confidence       float64                `json:"confidence"`
	Entities         map[string]interface{} `json:"entities,omitempty"`
	RawMessage       string                 `json:"rawMessage"`
	Reasoning        string                 `json:"reasoning,omitempty"`
	Provider         string                 `json:"provider,omitempty"`
	Model            string                 `json:"model,omitempty"`
	ProcessingTimeMs int64                  `json:"processingTimeMs,omitempty"`
}

// ClarificationThreshold is the confidence below which a product search
// is considered ambiguous.
const ClarificationThreshold = 0.80

// NeedsClarification reports whether the result is too ambiguous to act
// on. Only product searches clarify: low confidence, or a missing budget
// or category. Other attributes (size, color, brand) inform question
// generation but never alone trigger clarification.
func (r *ClassificationResult) NeedsClarification(known *ConversationContext) bool {
	if r.Intent != IntentProductSearch {
		return false
	}
	if r.Confidence < ClarificationThreshold {
		return true
	}
	return len(r.MissingRequiredEntities(known)) > 0
}

// MissingRequiredEntities returns the required product-search attributes
// absent from both the result and the accumulated context.
func (r *ClassificationResult) MissingRequiredEntities(known *ConversationContext) []string {
	var missing []string
	for _, key := range []string{EntityBudget, EntityCategory} {
		if hasEntity(r.Entities, key) {
			continue
		}
		if known != nil && known.HasEntity(key) {
			continue
		}
		missing = append(missing, key)
	}
	return missing
}

func hasEntity(entities map[string]interface{}, key string) bool {
	if entities == nil {
		return false
	}
	v, ok := entities[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok && s == "" {
		return false
	}
	return true
}
