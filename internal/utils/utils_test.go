package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueAndPtr(t *testing.T) {
	require.Equal(t, "", Value[string](nil))
	require.Equal(t, "rt", Value(Ptr("rt")))
	require.Equal(t, 0, Value[int](nil))
}

func TestToStringSlice(t *testing.T) {
	require.Equal(t, []string{"admins", "staff"}, ToStringSlice([]any{"admins", 3, "staff", nil}))
	require.Empty(t, ToStringSlice(nil))
}
