package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "什么是乾卦", normalizeQuery(" 什么是乾卦？"))
	assert.Equal(t, "fengshui", normalizeQuery("FengShui!"))
	assert.Equal(t, "", normalizeQuery("。。"))
}

func TestContainsQuery(t *testing.T) {
	assert.True(t, containsQuery("乾：元亨利贞", "元亨"))
	assert.True(t, containsQuery("The I Ching", "i ching"))
	assert.False(t, containsQuery("坤为地", "乾"))
	assert.False(t, containsQuery("anything", ""))
}
