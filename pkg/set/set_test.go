package set_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/set"
)

func TestSet(t *testing.T) {
	s := set.New("a", "b")
	s.Append("b", "c")

	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("d"))

	other := set.New("c", "d")
	s.Union(other)
	assert.Equal(t, 4, s.Len())
}

func TestOrderedValues(t *testing.T) {
	s := set.NewOrdered("banana", "apple", "cherry", "apple")
	assert.Equal(t, []string{"apple", "banana", "cherry"}, s.Values())
}

func TestOrderedDifference(t *testing.T) {
	s := set.NewOrdered("a", "b", "c")
	assert.Equal(t, []string{"a", "c"}, s.Difference(set.New("b", "z")))
}
