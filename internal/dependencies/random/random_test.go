package random

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringUsesAlphabet(t *testing.T) {
	r := New()
	alphabet := "AB23"

	s := r.String(64, alphabet)

	assert.Len(t, s, 64)
	for _, c := range s {
		assert.True(t, strings.ContainsRune(alphabet, c), "unexpected char %q", c)
	}
}

func TestStringEmptyInputs(t *testing.T) {
	r := New()
	assert.Empty(t, r.String(0, "ABC"))
	assert.Empty(t, r.String(5, ""))
}

func TestIntnRange(t *testing.T) {
	r := New()
	for i := 0; i < 100; i++ {
		n := r.Intn(7)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 7)
	}
	assert.Equal(t, 0, r.Intn(0))
}

func TestBytesLength(t *testing.T) {
	assert.Len(t, Bytes(32), 32)
}
