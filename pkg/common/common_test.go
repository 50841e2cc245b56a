package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPbkdf2HashWithSalt(t *testing.T) {
	h1 := Pbkdf2HashWithSalt("admin123", "salt-a")
	h2 := Pbkdf2HashWithSalt("admin123", "salt-a")
	assert.Equal(t, h1, h2, "same input must hash identically")
	assert.NotEqual(t, h1, Pbkdf2HashWithSalt("admin124", "salt-a"))
	assert.NotEqual(t, h1, Pbkdf2HashWithSalt("admin123", "salt-b"))
	assert.NotContains(t, h1, "admin123")
}

func TestBase64RoundTrip(t *testing.T) {
	data := []byte("SQLite format 3\x00 and some binary \x01\x02")
	out, err := Base64Decode(Base64Encode(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)

	_, err = Base64Decode("%%% not base64 %%%")
	assert.Error(t, err)
}

func TestUUIDint64(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 1000; i++ {
		id := UUIDint64()
		assert.False(t, seen[id], "ids must not repeat")
		seen[id] = true
	}
}

func TestIsEmptyOrNA(t *testing.T) {
	assert.True(t, IsEmptyOrNA(""))
	assert.True(t, IsEmptyOrNA(NA))
	assert.False(t, IsEmptyOrNA("x"))
}
