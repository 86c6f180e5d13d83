// pkg/registry/schema.go
package registry

// IntentRegistry is the manifest of intents the bot supports, with the
// JSON schema each intent's response must satisfy. Startup validates
// the manifest against the registered handlers and compiles every
// schema, so a drifted manifest fails the boot, not a conversation.
type IntentRegistry struct {
	Version     string   `json:"version"`
	LastUpdated string   `json:"lastUpdated"`
	Intents     []Intent `json:"intents"`
}

type Intent struct {
	ID               string                 `json:"id"`
	DisplayName      string                 `json:"displayName"`
	Description      string                 `json:"description"`
	RequiredEntities []string               `json:"requiredEntities,omitempty"`
	ResponseSchema   map[string]interface{} `json:"responseSchema"`
	Tags             []string               `json:"tags,omitempty"`
}

func (r *IntentRegistry) Intent(id string) *Intent {
	for i := range r.Intents {
		if r.Intents[i].ID == id {
			return &r.Intents[i]
		}
	}
	return nil
}

// baseResponseSchema is the envelope every intent response satisfies.
func baseResponseSchema(extraRequired ...string) map[string]interface{} {
	required := append([]string{"message"}, extraRequired...)
	return map[string]interface{}{
		"type":     "object",
		"required": required,
		"properties": map[string]interface{}{
			"message":     map[string]interface{}{"type": "string", "minLength": 1},
			"intent":      map[string]interface{}{"type": "string"},
			"confidence":  map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
			"products":    map[string]interface{}{"type": "array"},
			"cart":        map[string]interface{}{"type": "object"},
			"checkoutUrl": map[string]interface{}{"type": "string"},
			"metadata":    map[string]interface{}{"type": "object"},
		},
	}
}

// Default returns the built-in manifest matching the shipped handler
// set.
func Default() *IntentRegistry {
	return &IntentRegistry{
		Version:     "1.0",
		LastUpdated: "2026-08-12",
		Intents: []Intent{
			{
				ID:               "product_search",
				DisplayName:      "Product Search",
				Description:      "Search the merchant catalog by category, budget and attributes",
				RequiredEntities: []string{"budget", "category"},
				ResponseSchema:   baseResponseSchema(),
				Tags:             []string{"commerce"},
			},
			{
				ID:             "add_to_cart",
				DisplayName:    "Add To Cart",
				Description:    "Resolve a product by name and add it to the channel-scoped cart",
				ResponseSchema: baseResponseSchema(),
				Tags:           []string{"commerce", "cart"},
			},
			{
				ID:             "view_cart",
				DisplayName:    "View Cart",
				Description:    "Summarize the current cart",
				ResponseSchema: baseResponseSchema(),
				Tags:           []string{"cart"},
			},
			{
				ID:             "remove_from_cart",
				DisplayName:    "Remove From Cart",
				Description:    "Remove a named item from the cart",
				ResponseSchema: baseResponseSchema(),
				Tags:           []string{"cart"},
			},
			{
				ID:             "checkout",
				DisplayName:    "Checkout",
				Description:    "Create a checkout link for the current cart",
				ResponseSchema: baseResponseSchema(),
				Tags:           []string{"commerce", "checkout"},
			},
			{
				ID:             "order_status",
				DisplayName:    "Order Status",
				Description:    "Look up the status of a placed order",
				ResponseSchema: baseResponseSchema(),
				Tags:           []string{"post-purchase"},
			},
			{
				ID:             "greeting",
				DisplayName:    "Greeting",
				Description:    "Welcome the shopper in the merchant's voice",
				ResponseSchema: baseResponseSchema(),
				Tags:           []string{"smalltalk"},
			},
			{
				ID:             "unknown",
				DisplayName:    "Unknown",
				Description:    "Fallback for anything the classifier cannot label",
				ResponseSchema: baseResponseSchema(),
				Tags:           []string{"fallback"},
			},
		},
	}
}
