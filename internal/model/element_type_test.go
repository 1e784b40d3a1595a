package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateElementType(t *testing.T) {
	for _, et := range ElementTypes() {
		assert.True(t, ValidateElementType(et), "enum %s", et)
		assert.True(t, ValidateElementType(string(et)), "string %s", et)
	}
	assert.True(t, ValidateElementType(nil))
	assert.True(t, ValidateElementType((*ElementType)(nil)))

	for _, bad := range []any{"", "TITLE", "image", "heading", 3, 1.5, []string{"title"}, map[string]any{}} {
		assert.False(t, ValidateElementType(bad), "%v", bad)
	}
}

func TestParseElementType(t *testing.T) {
	et, ok := ParseElementType("Title")
	assert.True(t, ok)
	if assert.NotNil(t, et) {
		assert.Equal(t, ElementTitle, *et)
	}

	et, ok = ParseElementType("null")
	assert.True(t, ok)
	assert.Nil(t, et)

	_, ok = ParseElementType("sidebar")
	assert.False(t, ok)
}

func TestDistributionKey(t *testing.T) {
	title := ElementTitle
	assert.Equal(t, "title", DistributionKey(&title))
	assert.Equal(t, UnknownElementBucket, DistributionKey(nil))
	assert.Equal(t, "FIGURE_CAPTION", ElementFigureCaption.Label())
}
