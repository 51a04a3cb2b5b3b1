package id

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIsValidAndUnique(t *testing.T) {
	a := New()
	b := New()
	require.True(t, IsValid(a))
	require.True(t, IsValid(b))
	require.NotEqual(t, a, b)

	// Same-millisecond ids keep creation order.
	require.Less(t, a, b)
}

func TestIsValidRejectsGarbage(t *testing.T) {
	require.False(t, IsValid("not-an-id"))
	require.False(t, IsValid(""))
}
