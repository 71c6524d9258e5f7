package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDeterministicSortedDeduped(t *testing.T) {
	text := "Apple met Banana and Apple again, while Cherry watched."
	got := Extract(text)
	assert.Equal(t, []string{"Apple", "Banana", "Cherry"}, got)
}

func TestExtractIgnoresShortAndLowercase(t *testing.T) {
	text := "An Ab ok go and It matters"
	got := Extract(text)
	assert.Nil(t, got)
}

func TestExtractOrderIndependent(t *testing.T) {
	a := Extract("Banana Apple Cherry")
	b := Extract("Cherry Apple Banana")
	assert.Equal(t, a, b)
}

func TestJaccard(t *testing.T) {
	a := []string{"Apple", "Banana"}
	b := []string{"Banana", "Cherry"}
	assert.InDelta(t, 1.0/3.0, Jaccard(a, b), 1e-9)
}

func TestJaccardEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Jaccard(nil, []string{"Apple"}))
	assert.Equal(t, 0.0, Jaccard([]string{"Apple"}, nil))
}
