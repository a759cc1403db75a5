package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetStyles(t *testing.T) {
	// Given: the plain and colored style sets
	plain := GetStyles(true)
	colored := GetStyles(false)

	// Then: plain styles render text unchanged and the header is bold when colored
	assert.Equal(t, "Scan", plain.Active.Render("Scan"))
	assert.Equal(t, "Index", plain.Header.Render("Index"))
	assert.True(t, colored.Header.GetBold())
}
