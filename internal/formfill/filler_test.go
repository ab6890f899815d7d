package formfill

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autocart/api/schemas"
)

func testProfile() schemas.UserProfile {
	return schemas.UserProfile{
		Email:     "jane@example.com",
		Phone:     "555-0100",
		FirstName: "Jane",
		LastName:  "Doe",
		Address: schemas.Address{
			Street:  "1 Main St",
			Apt:     "Apt 4B",
			City:    "Springfield",
			State:   "IL",
			Zip:     "62701",
			Country: "United States",
		},
		Payment: schemas.PaymentMethod{
			ID:          uuid.New(),
			CardNumber:  "4242424242424242",
			CardHolder:  "Jane Doe",
			ExpiryMonth: "04",
			ExpiryYear:  "2028",
			CVV:         "123",
		},
	}
}

func TestValueForRouting(t *testing.T) {
	p := testProfile()
	cases := []struct {
		role schemas.FieldRole
		ctx  string
		want string
		ok   bool
	}{
		// Specific phrasings beat the broader keywords they contain.
		{schemas.FieldShipping, "full name", "Jane Doe", true},
		{schemas.FieldShipping, "first name", "Jane", true},
		{schemas.FieldShipping, "last name", "Doe", true},
		{schemas.FieldShipping, "address line 2 (apt, suite)", "Apt 4B", true},
		{schemas.FieldShipping, "address2", "Apt 4B", true},
		{schemas.FieldShipping, "street address", "1 Main St", true},
		{schemas.FieldBilling, "billing address", "1 Main St", true},
		{schemas.FieldShipping, "city", "Springfield", true},
		{schemas.FieldShipping, "state / province", "IL", true},
		{schemas.FieldShipping, "zip or postal code", "62701", true},
		{schemas.FieldShipping, "country", "United States", true},
		{schemas.FieldContact, "email address", "jane@example.com", true},
		{schemas.FieldContact, "phone", "555-0100", true},
		// Payment-role fields use the payment vocabulary: a bare "name"
		// is the cardholder there.
		{schemas.FieldPayment, "card number", "4242424242424242", true},
		{schemas.FieldPayment, "name on card", "Jane Doe", true},
		{schemas.FieldPayment, "expiration date mm/yy", "04/28", true},
		{schemas.FieldPayment, "expiry month", "04", true},
		{schemas.FieldPayment, "expiry year", "2028", true},
		{schemas.FieldPayment, "cvv", "123", true},
		{schemas.FieldPayment, "security code", "123", true},
		// Unroutable contexts and unknown roles produce nothing.
		{schemas.FieldShipping, "gift message", "", false},
		{schemas.FieldUnknown, "street address", "", false},
	}
	for _, tc := range cases {
		got, ok := ValueFor(tc.role, tc.ctx, p)
		assert.Equalf(t, tc.ok, ok, "context %q role %s", tc.ctx, tc.role)
		assert.Equalf(t, tc.want, got, "context %q role %s", tc.ctx, tc.role)
	}
}

func TestValueForSkipsEmptyProfileValues(t *testing.T) {
	p := testProfile()
	p.Address.Apt = ""
	_, ok := ValueFor(schemas.FieldShipping, "apt or suite", p)
	assert.False(t, ok, "an empty profile value must not be written")
}

// trailingArgs pulls the final quoted (or boolean) arguments off an
// injected IIFE so the fake can record what was written where.
var trailingArgs = regexp.MustCompile(`\)\("([^"]*)"(?:, "([^"]*)"|, (true|false))?\)\s*$`)

// fakeFormPage simulates a page with a fixed set of describable fields.
type fakeFormPage struct {
	fields  map[string]fieldInfo // selector -> shape
	writes  map[string]string    // selector -> written value
	selects map[string]string
	checks  map[string]bool
	swept   int
}

func newFakeFormPage(fields map[string]fieldInfo) *fakeFormPage {
	return &fakeFormPage{
		fields:  fields,
		writes:  map[string]string{},
		selects: map[string]string{},
		checks:  map[string]bool{},
	}
}

func (f *fakeFormPage) Evaluate(_ context.Context, script string, res interface{}) error {
	if strings.Contains(script, "save") && strings.Contains(script, "cardish") {
		if out, ok := res.(*int); ok {
			*out = f.swept
		}
		return nil
	}

	m := trailingArgs.FindStringSubmatch(script)
	if m == nil {
		return nil
	}
	sel := m[1]

	switch {
	case strings.Contains(script, "placeholder"):
		if info, ok := f.fields[sel]; ok {
			*(res.(**fieldInfo)) = &info
		}
	case strings.Contains(script, "selectedIndex"):
		f.selects[sel] = m[2]
		*(res.(*bool)) = true
	case strings.Contains(script, "checkbox"):
		f.checks[sel] = m[3] == "true"
		*(res.(*bool)) = true
	case strings.Contains(script, "setter.call"):
		f.writes[sel] = m[2]
		*(res.(*bool)) = true
	}
	return nil
}

func (f *fakeFormPage) Sleep(_ context.Context, _ time.Duration) error { return nil }

func TestFillWritesClassifiedFields(t *testing.T) {
	page := newFakeFormPage(map[string]fieldInfo{
		"[f-0]": {Ctx: "shipping street address", Tag: "input", Type: "text"},
		"[f-1]": {Ctx: "city", Tag: "input", Type: "text"},
		"[f-2]": {Ctx: "country", Tag: "select"},
		"[f-3]": {Ctx: "email address", Tag: "input", Type: "email"},
		"[f-4]": {Ctx: "card number", Tag: "input", Type: "text"},
		"[f-5]": {Ctx: "agree to terms and conditions", Tag: "input", Type: "checkbox"},
		"[f-9]": {Ctx: "gift wrap note", Tag: "textarea"},
	})
	cls := schemas.FieldClassification{
		schemas.FieldShipping: {"[f-0]", "[f-1]", "[f-2]", "[f-5]"},
		schemas.FieldContact:  {"[f-3]"},
		schemas.FieldPayment:  {"[f-4]"},
		schemas.FieldUnknown:  {"[f-9]"},
	}

	f := New(zap.NewNop())
	rep, err := f.Fill(context.Background(), page, cls, testProfile())
	require.NoError(t, err)

	assert.Equal(t, "1 Main St", page.writes["[f-0]"])
	assert.Equal(t, "Springfield", page.writes["[f-1]"])
	assert.Equal(t, "United States", page.selects["[f-2]"])
	assert.Equal(t, "jane@example.com", page.writes["[f-3]"])
	assert.Equal(t, "4242424242424242", page.writes["[f-4]"])
	assert.True(t, page.checks["[f-5]"], "in-form checkboxes are driven checked")

	// The unknown-role element is never touched in any way.
	_, wrote := page.writes["[f-9]"]
	assert.False(t, wrote)

	assert.Equal(t, 6, rep.Written)
	assert.True(t, rep.PaymentWritten)
}

func TestFillSkipsUnroutableFields(t *testing.T) {
	page := newFakeFormPage(map[string]fieldInfo{
		"[f-0]": {Ctx: "shipping street", Tag: "input", Type: "text"},
		"[f-1]": {Ctx: "delivery instructions", Tag: "input", Type: "text"},
	})
	cls := schemas.FieldClassification{
		schemas.FieldShipping: {"[f-0]", "[f-1]"},
	}

	f := New(zap.NewNop())
	rep, err := f.Fill(context.Background(), page, cls, testProfile())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Written)
	assert.Equal(t, 1, rep.Skipped)
	_, wrote := page.writes["[f-1]"]
	assert.False(t, wrote)
}

func TestFillFailsWhenNothingWritable(t *testing.T) {
	// Fields classified on a previous page state that no longer exist.
	page := newFakeFormPage(map[string]fieldInfo{})
	cls := schemas.FieldClassification{
		schemas.FieldShipping: {"[gone-0]", "[gone-1]"},
	}

	f := New(zap.NewNop())
	rep, err := f.Fill(context.Background(), page, cls, testProfile())
	assert.Error(t, err)
	assert.Equal(t, 0, rep.Written)
	assert.Equal(t, 2, rep.Skipped)
}

func TestFillReportsPaymentAbsentFromDOM(t *testing.T) {
	page := newFakeFormPage(map[string]fieldInfo{
		"[f-0]": {Ctx: "shipping street", Tag: "input", Type: "text"},
	})
	cls := schemas.FieldClassification{
		schemas.FieldShipping: {"[f-0]"},
	}

	f := New(zap.NewNop())
	rep, err := f.Fill(context.Background(), page, cls, testProfile())
	require.NoError(t, err)
	assert.False(t, rep.PaymentWritten, "caller must know payment still needs the frame handler")
}
