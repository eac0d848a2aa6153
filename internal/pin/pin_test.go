package pin

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("4242")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := Verify("4242", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify("4243", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	h1, err := Hash("123456")
	require.NoError(t, err)
	h2, err := Hash("123456")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	for _, hash := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=3,p=2$c2FsdA$a2V5",
		"$argon2id$v=19$m=65536,t=3,p=2$not-base64!$a2V5",
	} {
		_, err := Verify("4242", hash)
		assert.Error(t, err, "hash %q", hash)
	}
}

func TestValidFormat(t *testing.T) {
	tests := []struct {
		pin  string
		want bool
	}{
		{"4242", true},
		{"123456", true},
		{"123", false},
		{"", false},
		{"12a4", false},
		{"12 34", false},
		{"-123", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidFormat(tt.pin), "pin %q", tt.pin)
	}
}
