package schemas

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCard() PaymentMethod {
	return PaymentMethod{
		ID:          uuid.New(),
		CardNumber:  "4242424242424242",
		CardHolder:  "Jane Doe",
		ExpiryMonth: "04",
		ExpiryYear:  "2028",
		CVV:         "123",
	}
}

func validUser() *User {
	return &User{
		ID:    uuid.New(),
		Name:  "Jane Ann Doe",
		Email: "jane@example.com",
		Phone: "555-0100",
		Address: Address{
			Street:  "1 Main St",
			City:    "Springfield",
			State:   "IL",
			Zip:     "62701",
			Country: "US",
		},
	}
}

func TestAssembleProfile(t *testing.T) {
	t.Run("should prefer the default-flagged card", func(t *testing.T) {
		first := validCard()
		def := validCard()
		def.IsDefault = true

		profile, err := AssembleProfile(validUser(), []PaymentMethod{first, def})
		require.NoError(t, err)
		assert.Equal(t, def.ID, profile.Payment.ID)
	})

	t.Run("should fall back to the first card", func(t *testing.T) {
		first := validCard()
		second := validCard()

		profile, err := AssembleProfile(validUser(), []PaymentMethod{first, second})
		require.NoError(t, err)
		assert.Equal(t, first.ID, profile.Payment.ID)
	})

	t.Run("should fail synchronously with no cards", func(t *testing.T) {
		_, err := AssembleProfile(validUser(), nil)
		assert.ErrorIs(t, err, ErrNoPaymentMethod)
	})

	t.Run("should split the user name", func(t *testing.T) {
		profile, err := AssembleProfile(validUser(), []PaymentMethod{validCard()})
		require.NoError(t, err)
		assert.Equal(t, "Jane", profile.FirstName)
		assert.Equal(t, "Ann Doe", profile.LastName)
		assert.Equal(t, "Jane Ann Doe", profile.FullName())
	})

	t.Run("should reject an incomplete profile", func(t *testing.T) {
		user := validUser()
		user.Address.Zip = "  "
		_, err := AssembleProfile(user, []PaymentMethod{validCard()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "address.zip")
	})
}

func TestProfileValidateFailsFast(t *testing.T) {
	profile := UserProfile{}
	err := profile.Validate()
	require.Error(t, err)
	// The first missing field in declaration order is the one reported.
	assert.Contains(t, err.Error(), "email")
}

func TestSplitName(t *testing.T) {
	cases := []struct {
		in    string
		first string
		last  string
	}{
		{"Jane Doe", "Jane", "Doe"},
		{"Jane", "Jane", ""},
		{"Jane Ann Doe", "Jane", "Ann Doe"},
		{"  ", "", ""},
	}
	for _, tc := range cases {
		first, last := SplitName(tc.in)
		assert.Equal(t, tc.first, first)
		assert.Equal(t, tc.last, last)
	}
}

func TestExpiryMMYY(t *testing.T) {
	pm := PaymentMethod{ExpiryMonth: "04", ExpiryYear: "2028"}
	assert.Equal(t, "04/28", pm.ExpiryMMYY())

	pm.ExpiryYear = "28"
	assert.Equal(t, "04/28", pm.ExpiryMMYY())
}

func TestMaskedNumber(t *testing.T) {
	pm := PaymentMethod{CardNumber: "4242424242424242"}
	assert.Equal(t, "****4242", pm.MaskedNumber())

	pm.CardNumber = "42"
	assert.Equal(t, "****", pm.MaskedNumber())
}

func TestFieldClassification(t *testing.T) {
	fc := FieldClassification{
		FieldUnknown: {"[a]", "[b]"},
	}
	assert.False(t, fc.Classified())
	assert.Equal(t, 2, fc.UnknownCount())

	fc[FieldShipping] = []string{"[c]"}
	assert.True(t, fc.Classified())
}
