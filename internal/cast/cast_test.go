package cast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/attrpipe/internal/entities"
)

func strPtr(s string) *string {
	return &s
}

func TestOut_Integer(t *testing.T) {
	assert.Equal(t, int64(42), Out(entities.DataTypeInteger, strPtr("42")))
	assert.Equal(t, int64(-7), Out(entities.DataTypeInteger, strPtr(" -7 ")))

	// Non-numeric strings become nil, never an error
	assert.Nil(t, Out(entities.DataTypeInteger, strPtr("not-a-number")))
	assert.Nil(t, Out(entities.DataTypeInteger, strPtr("")))
	assert.Nil(t, Out(entities.DataTypeInteger, nil))
}

func TestOut_Text(t *testing.T) {
	assert.Equal(t, "hello", Out(entities.DataTypeText, strPtr("hello")))
	assert.Equal(t, "<p>rich</p>", Out(entities.DataTypeRichText, strPtr("<p>rich</p>")))
	assert.Nil(t, Out(entities.DataTypeText, nil))
}

func TestOut_MultiSelect_JSONArray(t *testing.T) {
	got := Out(entities.DataTypeMultiSelect, strPtr(`["red","green","blue"]`))
	assert.Equal(t, []string{"red", "green", "blue"}, got)
}

func TestOut_MultiSelect_BareScalar(t *testing.T) {
	// A bare scalar is wrapped into a one-element sequence
	got := Out(entities.DataTypeMultiSelect, strPtr("red"))
	assert.Equal(t, []string{"red"}, got)
}

func TestOut_MultiSelect_NumericArray(t *testing.T) {
	got := Out(entities.DataTypeReferenceMulti, strPtr(`[1,2,3]`))
	assert.Equal(t, []string{"1", "2", "3"}, got)
}

func TestOut_JSON(t *testing.T) {
	got := Out(entities.DataTypeJSON, strPtr(`{"a":1}`))
	assert.Equal(t, map[string]any{"a": float64(1)}, got)

	assert.Nil(t, Out(entities.DataTypeJSON, strPtr("null")))
}

func TestOut_JSON_LossyFallback(t *testing.T) {
	// Malformed JSON is returned raw instead of being dropped
	got := Out(entities.DataTypeJSON, strPtr("{broken"))
	assert.Equal(t, "{broken", got)
}

func TestIn_Nil_ClearsSlot(t *testing.T) {
	stored, err := In(entities.DataTypeText, nil)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestIn_Integer(t *testing.T) {
	stored, err := In(entities.DataTypeInteger, 42)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "42", *stored)

	_, err = In(entities.DataTypeInteger, "nope")
	assert.Error(t, err)
}

func TestIn_MultiSelect(t *testing.T) {
	stored, err := In(entities.DataTypeMultiSelect, []string{"a", "b"})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.JSONEq(t, `["a","b"]`, *stored)
}

func TestRoundTrip_StrictTypes(t *testing.T) {
	// Strict round-trip holds for integer, text and single_select
	cases := []struct {
		dataType entities.DataType
		value    any
	}{
		{entities.DataTypeInteger, int64(123)},
		{entities.DataTypeText, "plain text"},
		{entities.DataTypeSingleSelect, "red"},
	}

	for _, tc := range cases {
		stored, err := In(tc.dataType, tc.value)
		require.NoError(t, err)
		assert.Equal(t, tc.value, Out(tc.dataType, stored), "data type %s", tc.dataType)
	}
}

func TestRoundTrip_MultiSelect_SetSemantics(t *testing.T) {
	in := []string{"b", "a"}
	stored, err := In(entities.DataTypeMultiSelect, in)
	require.NoError(t, err)

	out, ok := Out(entities.DataTypeMultiSelect, stored).([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, in, out)
}
