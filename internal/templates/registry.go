// Package templates maps (personality, message kind) to typed formatter
// functions. The table is closed: construction validates that every
// combination exists, so a missing template is a startup failure, never
// a mid-conversation surprise.
package templates

import (
	"fmt"

	commonerrors "shopbot-core/internal/common/errors"
	"shopbot-core/internal/models"
)

// Kind is a closed enum of bot message kinds.
type Kind string

const (
	KindGreeting      Kind = "greeting"
	KindProductsFound Kind = "products_found"
	KindNoProducts    Kind = "no_products"
	KindItemAdded     Kind = "item_added"
	KindItemRemoved   Kind = "item_removed"
	KindCartSummary   Kind = "cart_summary"
	KindCartEmpty     Kind = "cart_empty"
	KindCheckoutReady Kind = "checkout_ready"
	KindOrderStatus   Kind = "order_status"
	KindUnknown       Kind = "unknown"
	KindHandoffAck    Kind = "handoff_ack"
	KindPaused        Kind = "paused"
	KindStoreOffline  Kind = "store_offline"
	KindGenericError  Kind = "generic_error"
)

// AllKinds is the validation checklist for the registry.
var AllKinds = []Kind{
	KindGreeting, KindProductsFound, KindNoProducts, KindItemAdded,
	KindItemRemoved, KindCartSummary, KindCartEmpty, KindCheckoutReady,
	KindOrderStatus, KindUnknown, KindHandoffAck, KindPaused,
	KindStoreOffline, KindGenericError,
}

var allPersonalities = []models.Personality{
	models.PersonalityFriendly,
	models.PersonalityProfessional,
	models.PersonalityPlayful,
}

// Args carries everything any formatter may need. Formatters read only
// the fields relevant to their kind.
type Args struct {
	MerchantName   string
	Returning      bool
	Category       string
	ProductCount   int
	ProductTitle   string
	CartCount      int
	TotalFormatted string
	OrderID        string
	OrderState     string
	ETA            string
}

// Formatter renders one message kind for one personality.
type Formatter func(Args) string

type Registry struct {
	table map[models.Personality]map[Kind]Formatter
}

// NewRegistry builds and validates the full table. A missing
// (personality, kind) combination fails construction.
func NewRegistry() (*Registry, error) {
	r := &Registry{table: map[models.Personality]map[Kind]Formatter{
		models.PersonalityFriendly:     friendlyTable(),
		models.PersonalityProfessional: professionalTable(),
		models.PersonalityPlayful:      playfulTable(),
	}}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) validate() error {
	for _, p := range allPersonalities {
		kinds, ok := r.table[p]
		if !ok {
			return fmt.Errorf("%s: no table for personality %q", commonerrors.ErrCodeTemplateNotFound, p)
		}
		for _, k := range AllKinds {
			if kinds[k] == nil {
				return fmt.Errorf("%s: missing template %s/%s", commonerrors.ErrCodeTemplateNotFound, p, k)
			}
		}
	}
	return nil
}

// Render formats a message. Unknown personalities fall back to
// friendly so a misconfigured merchant still gets coherent copy.
func (r *Registry) Render(p models.Personality, kind Kind, args Args) string {
	kinds, ok := r.table[p]
	if !ok {
		kinds = r.table[models.PersonalityFriendly]
	}
	return kinds[kind](args)
}

func friendlyTable() map[Kind]Formatter {
	return map[Kind]Formatter{
		KindGreeting: func(a Args) string {
			if a.Returning {
				return fmt.Sprintf("Welcome back to %s! What can I help you find today?", a.MerchantName)
			}
			return fmt.Sprintf("Hi there! Welcome to %s. What are you shopping for today?", a.MerchantName)
		},
		KindProductsFound: func(a Args) string {
			return fmt.Sprintf("I found %d great options for you! Take a look:", a.ProductCount)
		},
		KindNoProducts: func(a Args) string {
			if a.Category != "" {
				return fmt.Sprintf("I couldn't find any %s matching that. Want to try different filters?", a.Category)
			}
			return "I couldn't find anything matching that. Want to try different filters?"
		},
		KindItemAdded: func(a Args) string {
			return fmt.Sprintf("Added %s to your cart! Anything else?", a.ProductTitle)
		},
		KindItemRemoved: func(a Args) string {
			return fmt.Sprintf("Done, I took %s out of your cart.", a.ProductTitle)
		},
		KindCartSummary: func(a Args) string {
			return fmt.Sprintf("You have %d item(s) in your cart, totaling %s.", a.CartCount, a.TotalFormatted)
		},
		KindCartEmpty: func(a Args) string {
			return "Your cart is empty right now. Want me to find you something?"
		},
		KindCheckoutReady: func(a Args) string {
			return "You're all set! Here's your secure checkout link:"
		},
		KindOrderStatus: func(a Args) string {
			msg := fmt.Sprintf("Your order %s is %s.", a.OrderID, a.OrderState)
			if a.ETA != "" {
				msg += fmt.Sprintf(" Expected arrival: %s.", a.ETA)
			}
			return msg
		},
		KindUnknown: func(a Args) string {
			return "I'm not quite sure what you mean. I can help you find products, manage your cart, or check an order."
		},
		KindHandoffAck: func(a Args) string {
			return "No problem! I'm connecting you with a member of our team — they'll be with you shortly."
		},
		KindPaused: func(a Args) string {
			return fmt.Sprintf("%s's assistant is taking a short break. Please check back soon!", a.MerchantName)
		},
		KindStoreOffline: func(a Args) string {
			return "The shop isn't connected right now, so I can't look that up. Please try again later!"
		},
		KindGenericError: func(a Args) string {
			return "Sorry, something went wrong on my end. Mind trying that again?"
		},
	}
}

func professionalTable() map[Kind]Formatter {
	return map[Kind]Formatter{
		KindGreeting: func(a Args) string {
			if a.Returning {
				return fmt.Sprintf("Welcome back to %s. How may I assist you?", a.MerchantName)
			}
			return fmt.Sprintf("Welcome to %s. How may I assist you today?", a.MerchantName)
		},
		KindProductsFound: func(a Args) string {
			return fmt.Sprintf("%d products match your criteria:", a.ProductCount)
		},
		KindNoProducts: func(a Args) string {
			if a.Category != "" {
				return fmt.Sprintf("No %s match your criteria. You may wish to adjust your filters.", a.Category)
			}
			return "No products match your criteria. You may wish to adjust your filters."
		},
		KindItemAdded: func(a Args) string {
			return fmt.Sprintf("%s has been added to your cart.", a.ProductTitle)
		},
		KindItemRemoved: func(a Args) string {
			return fmt.Sprintf("%s has been removed from your cart.", a.ProductTitle)
		},
		KindCartSummary: func(a Args) string {
			return fmt.Sprintf("Your cart contains %d item(s), total %s.", a.CartCount, a.TotalFormatted)
		},
		KindCartEmpty: func(a Args) string {
			return "Your cart is currently empty."
		},
		KindCheckoutReady: func(a Args) string {
			return "Your checkout link is ready:"
		},
		KindOrderStatus: func(a Args) string {
			msg := fmt.Sprintf("Order %s status: %s.", a.OrderID, a.OrderState)
			if a.ETA != "" {
				msg += fmt.Sprintf(" Estimated delivery: %s.", a.ETA)
			}
			return msg
		},
		KindUnknown: func(a Args) string {
			return "I did not understand that request. I can assist with product search, cart management, and order status."
		},
		KindHandoffAck: func(a Args) string {
			return "Certainly. I am transferring you to a team member who will assist you shortly."
		},
		KindPaused: func(a Args) string {
			return fmt.Sprintf("%s's assistant is currently unavailable. Please try again later.", a.MerchantName)
		},
		KindStoreOffline: func(a Args) string {
			return "The store connection is currently unavailable. Please try again later."
		},
		KindGenericError: func(a Args) string {
			return "An error occurred while processing your request. Please try again."
		},
	}
}

func playfulTable() map[Kind]Formatter {
	return map[Kind]Formatter{
		KindGreeting: func(a Args) string {
			if a.Returning {
				return fmt.Sprintf("Hey, you're back! %s missed you. What are we hunting for today?", a.MerchantName)
			}
			return fmt.Sprintf("Hey hey! Welcome to %s. Let's find you something awesome!", a.MerchantName)
		},
		KindProductsFound: func(a Args) string {
			return fmt.Sprintf("Boom! %d finds coming right up:", a.ProductCount)
		},
		KindNoProducts: func(a Args) string {
			if a.Category != "" {
				return fmt.Sprintf("Hmm, the %s shelf came up empty. Wanna tweak the search?", a.Category)
			}
			return "Hmm, came up empty on that one. Wanna tweak the search?"
		},
		KindItemAdded: func(a Args) string {
			return fmt.Sprintf("%s is in the cart. Nice pick!", a.ProductTitle)
		},
		KindItemRemoved: func(a Args) string {
			return fmt.Sprintf("Poof! %s is out of the cart.", a.ProductTitle)
		},
		KindCartSummary: func(a Args) string {
			return fmt.Sprintf("Your haul so far: %d item(s), %s total.", a.CartCount, a.TotalFormatted)
		},
		KindCartEmpty: func(a Args) string {
			return "Your cart's looking a little lonely. Let's fix that!"
		},
		KindCheckoutReady: func(a Args) string {
			return "Ka-ching! Here's your checkout link:"
		},
		KindOrderStatus: func(a Args) string {
			msg := fmt.Sprintf("Order %s update: %s!", a.OrderID, a.OrderState)
			if a.ETA != "" {
				msg += fmt.Sprintf(" Landing around %s.", a.ETA)
			}
			return msg
		},
		KindUnknown: func(a Args) string {
			return "You lost me there! Try asking for products, your cart, or an order update."
		},
		KindHandoffAck: func(a Args) string {
			return "On it! Grabbing a real human for you — hang tight!"
		},
		KindPaused: func(a Args) string {
			return fmt.Sprintf("%s's bot is napping right now. Swing by again soon!", a.MerchantName)
		},
		KindStoreOffline: func(a Args) string {
			return "Uh oh, the shop's unplugged at the moment. Try me again in a bit!"
		},
		KindGenericError: func(a Args) string {
			return "Oops, I tripped over a wire. One more try?"
		},
	}
}
