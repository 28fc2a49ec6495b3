package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapIndexIsCircular(t *testing.T) {
	// 12 fonts, cursor on the last one.
	assert.Equal(t, 0, WrapIndex(11, 1, 12))
	assert.Equal(t, 11, WrapIndex(0, -1, 12))
	assert.Equal(t, 0, WrapIndex(0, 1, 1))
	assert.Equal(t, 0, WrapIndex(0, -1, 1))
	assert.Equal(t, 0, WrapIndex(5, 1, 0))
}

func TestWrapIndexNextPrevRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 12} {
		for i := 0; i < n; i++ {
			next := WrapIndex(i, 1, n)
			assert.Equal(t, i, WrapIndex(next, -1, n), "n=%d i=%d", n, i)
			prev := WrapIndex(i, -1, n)
			assert.Equal(t, i, WrapIndex(prev, 1, n), "n=%d i=%d", n, i)
		}
	}
}

func TestAdvancePagePersistsIndex(t *testing.T) {
	s := NewSession(1, "test", stPick)
	assert.Equal(t, 1, AdvancePage(s, "font_idx", 1, 12))
	assert.Equal(t, 1, PageIndex(s, "font_idx"))
	assert.Equal(t, 0, AdvancePage(s, "font_idx", 11, 12))
}
