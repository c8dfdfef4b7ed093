package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNodeName_Valid(t *testing.T) {
	name, err := ValidateNodeName("Holiday Photos 2026.jpg")
	require.NoError(t, err)
	assert.Equal(t, "Holiday Photos 2026.jpg", name)
}

func TestValidateNodeName_NormalizesToNFC(t *testing.T) {
	// Decomposed "é" must come back composed.
	name, err := ValidateNodeName("café.txt")
	require.NoError(t, err)
	assert.Equal(t, "café.txt", name)
}

func TestValidateNodeName_Rejections(t *testing.T) {
	cases := map[string]string{
		"empty":               "",
		"dot":                 ".",
		"dotdot":              "..",
		"slash":               "a/b",
		"leading space":       " a",
		"trailing space":      "a ",
		"control char":        "a\x01b",
		"delete char":         "a\x7fb",
		"too long":            strings.Repeat("x", 256),
	}

	for label, name := range cases {
		t.Run(label, func(t *testing.T) {
			_, err := ValidateNodeName(name)
			assert.Error(t, err)
		})
	}
}

func TestValidateNodeName_MaxLengthBoundary(t *testing.T) {
	name, err := ValidateNodeName(strings.Repeat("x", 255))
	require.NoError(t, err)
	assert.Len(t, name, 255)
}
