// api/schemas/profile.go
package schemas

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Address is one resolved shipping destination.
type Address struct {
	Street  string `json:"street"`
	Apt     string `json:"apt,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// PaymentMethod is a stored card. CVV and number are handled as opaque
// strings; nothing in the engine ever logs them unmasked.
type PaymentMethod struct {
	ID          uuid.UUID `json:"id"`
	IsDefault   bool      `json:"is_default"`
	CardNumber  string    `json:"card_number"`
	CardHolder  string    `json:"card_holder"`
	ExpiryMonth string    `json:"expiry_month"`
	ExpiryYear  string    `json:"expiry_year"`
	CVV         string    `json:"cvv"`
}

// ExpiryMMYY composes the card expiry in the MM/YY shape checkout forms
// expect.
func (pm PaymentMethod) ExpiryMMYY() string {
	year := pm.ExpiryYear
	if len(year) > 2 {
		year = year[len(year)-2:]
	}
	return pm.ExpiryMonth + "/" + year
}

// MaskedNumber returns the card number reduced to its last four digits,
// safe for logging.
func (pm PaymentMethod) MaskedNumber() string {
	if len(pm.CardNumber) < 4 {
		return "****"
	}
	return "****" + pm.CardNumber[len(pm.CardNumber)-4:]
}

// User is the account a purchase runs on behalf of.
type User struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Phone   string    `json:"phone"`
	Address Address   `json:"address"`
}

// UserProfile is the immutable per-attempt snapshot written into checkout
// forms. Assembled once, validated before any browser interaction.
type UserProfile struct {
	Email     string        `json:"email"`
	Phone     string        `json:"phone"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Address   Address       `json:"address"`
	Payment   PaymentMethod `json:"payment"`
}

// FullName joins the split name back together for single-field forms.
func (p UserProfile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Validate fails fast on blank required fields so a misconfigured profile
// never reaches the browser.
func (p UserProfile) Validate() error {
	required := []struct{ name, val string }{
		{"email", p.Email},
		{"first_name", p.FirstName},
		{"address.street", p.Address.Street},
		{"address.city", p.Address.City},
		{"address.state", p.Address.State},
		{"address.zip", p.Address.Zip},
		{"address.country", p.Address.Country},
		{"payment.card_number", p.Payment.CardNumber},
		{"payment.expiry_month", p.Payment.ExpiryMonth},
		{"payment.expiry_year", p.Payment.ExpiryYear},
		{"payment.cvv", p.Payment.CVV},
	}
	for _, f := range required {
		if strings.TrimSpace(f.val) == "" {
			return fmt.Errorf("missing required profile field: %s", f.name)
		}
	}
	return nil
}

// AssembleProfile builds the per-attempt profile from a user record and
// their stored cards. The default-flagged card wins; otherwise the first.
// An empty card list is a configuration error, surfaced synchronously.
func AssembleProfile(user *User, cards []PaymentMethod) (UserProfile, error) {
	if user == nil {
		return UserProfile{}, fmt.Errorf("user record is nil")
	}
	if len(cards) == 0 {
		return UserProfile{}, ErrNoPaymentMethod
	}

	selected := cards[0]
	for _, c := range cards {
		if c.IsDefault {
			selected = c
			break
		}
	}

	first, last := SplitName(user.Name)
	profile := UserProfile{
		Email:     user.Email,
		Phone:     user.Phone,
		FirstName: first,
		LastName:  last,
		Address:   user.Address,
		Payment:   selected,
	}
	if err := profile.Validate(); err != nil {
		return UserProfile{}, err
	}
	return profile, nil
}

// SplitName divides a full name into first name and the remainder.
func SplitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
