package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidEmail(t *testing.T) {
	valid := []string{"a@x.com", "first.last+tag@example.co.uk"}
	for _, e := range valid {
		assert.True(t, ValidEmail(e), e)
	}

	invalid := []string{"", "plainaddress", "@x.com", "a@", "a b@x.com", "a/b@x.com"}
	for _, e := range invalid {
		assert.False(t, ValidEmail(e), e)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "A@x.com", NormalizeEmail("  A@x.com\n"))
}
