package locator

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autocart/api/schemas"
)

func TestTableOrderingIsTotal(t *testing.T) {
	roles := []schemas.ButtonRole{
		schemas.ButtonAddToCart,
		schemas.ButtonCheckout,
		schemas.ButtonViewCart,
		schemas.ButtonPayment,
		schemas.ButtonCompleteOrder,
	}
	for _, role := range roles {
		t.Run(string(role), func(t *testing.T) {
			table, err := Table(role)
			require.NoError(t, err)
			require.NotEmpty(t, table)

			for i := 1; i < len(table); i++ {
				assert.Less(t, table[i-1].Priority, table[i].Priority,
					"priorities must be strictly increasing so evaluation order is total")
			}
			for _, s := range table {
				assert.NotEmpty(t, s.Needles)
			}
		})
	}
}

func TestTableReturnsACopy(t *testing.T) {
	a, err := Table(schemas.ButtonCheckout)
	require.NoError(t, err)
	a[0].Needles = []string{"mutated"}

	b, err := Table(schemas.ButtonCheckout)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", b[0].Needles[0])
}

func TestTableDeterministic(t *testing.T) {
	a, err := Table(schemas.ButtonAddToCart)
	require.NoError(t, err)
	b, err := Table(schemas.ButtonAddToCart)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(a, b))
}

func TestTableUnknownRole(t *testing.T) {
	_, err := Table(schemas.ButtonRole("launch_missiles"))
	assert.Error(t, err)
}

func TestEncodeTableRoundTrips(t *testing.T) {
	table, err := Table(schemas.ButtonCompleteOrder)
	require.NoError(t, err)

	encoded, err := encodeTable(table)
	require.NoError(t, err)

	var decoded []Strategy
	require.NoError(t, json.Unmarshal([]byte(encoded), &decoded))
	assert.Empty(t, cmp.Diff(table, decoded))
}

func TestBuildProbeJSEmbedsTokenAndTable(t *testing.T) {
	table, err := Table(schemas.ButtonAddToCart)
	require.NoError(t, err)
	encoded, err := encodeTable(table)
	require.NoError(t, err)

	js := buildProbeJS(encoded, "tok-123")
	assert.True(t, strings.Contains(js, "tok-123"))
	assert.True(t, strings.Contains(js, "add to cart"))
	assert.True(t, strings.Contains(js, "data-autocart-id"))
}
