package amount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	d, err := Parse("12.3456789")
	require.NoError(t, err)
	assert.Equal(t, "12.3456789", Format(d))

	_, err = Parse("0.00000001")
	require.Error(t, err)

	_, err = Parse("abc")
	require.Error(t, err)
}

func TestRoundingModes(t *testing.T) {
	v := decimal.RequireFromString("1.65024752475")
	assert.Equal(t, "1.6502475", Format(Round(v)))
	assert.Equal(t, "1.6502475", Format(Truncate(v)))

	up := decimal.RequireFromString("0.00000005")
	assert.Equal(t, "0.0000001", Format(Round(up)))
	assert.Equal(t, "0.0000000", Format(Truncate(up)))
}

func TestDivAndMin(t *testing.T) {
	third := Div(One, decimal.NewFromInt(3))
	assert.Equal(t, "0.333333333333333333", third.String())
	assert.True(t, Min(One, third).Equal(third))
	assert.True(t, Min(third, One).Equal(third))
}
