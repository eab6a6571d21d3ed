package sfid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallfab/smallfab/core/sferr"
)

func TestParseValid(t *testing.T) {
	for _, raw := range []string{
		"p_m3x10",
		"p_a",
		"l_a1",
		"b_proto7",
		"p_flange-bracket",
		"p_sub_assembly_2",
	} {
		t.Run(raw, func(t *testing.T) {
			id, err := Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, raw, id.String())
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, raw := range []string{
		"",
		"p_",
		"_m3",
		"p",
		"P_M3X10",
		"p_m3/r10",
		"p_m3.10",
		"p_..",
		"p_has space",
		"p_ends-",
		"p_ends_",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := Parse(raw)
			require.Error(t, err)
			assert.True(t, sferr.IsKind(err, sferr.KindValidationFailed))
		})
	}
}

func TestParseLengthBounds(t *testing.T) {
	long := "p_"
	for len(long) < MaxLen {
		long += "x"
	}
	_, err := Parse(long)
	require.NoError(t, err)

	_, err = Parse(long + "x")
	require.Error(t, err)

	_, err = Parse("p_x") // exactly MinLen
	require.NoError(t, err)
}

func TestType(t *testing.T) {
	assert.Equal(t, "p", MustParse("p_m3x10").Type())
	assert.Equal(t, "l", MustParse("l_a1").Type())
	assert.Equal(t, "b", MustParse("b_proto7").Type())

	assert.True(t, MustParse("p_m3x10").IsPart())
	assert.False(t, MustParse("l_a1").IsPart())
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("Not Valid") })
}
