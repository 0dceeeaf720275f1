package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(id snowflake.ID) *snowflake.ID { return &id }

func TestBuildTreeRecomputesLevels(t *testing.T) {
	accounts := []Account{
		{ID: 3, Code: "1110", ParentID: ptr(2), Level: 7},
		{ID: 1, Code: "1000", IsParent: true, Level: 4},
		{ID: 2, Code: "1100", ParentID: ptr(1), IsParent: true},
		{ID: 4, Code: "1120", ParentID: ptr(2)},
		{ID: 5, Code: "2000", IsParent: true},
	}

	tree, unreachable := BuildTree(accounts)
	require.Empty(t, unreachable)

	roots := tree.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "1000", roots[0].Code)
	assert.Equal(t, 1, roots[0].Level)
	require.Len(t, roots[0].Children, 1)
	assert.Equal(t, 2, roots[0].Children[0].Level)

	leafCodes := []string{}
	for _, leaf := range roots[0].Children[0].Children {
		assert.Equal(t, 3, leaf.Level)
		leafCodes = append(leafCodes, leaf.Code)
	}
	assert.Equal(t, []string{"1110", "1120"}, leafCodes)
}

func TestBuildTreeReportsCyclesAndOrphans(t *testing.T) {
	accounts := []Account{
		{ID: 1, Code: "1000", IsParent: true},
		{ID: 2, Code: "8000", ParentID: ptr(3), IsParent: true},
		{ID: 3, Code: "8100", ParentID: ptr(2), IsParent: true},
		{ID: 4, Code: "9000", ParentID: ptr(99)},
	}

	tree, unreachable := BuildTree(accounts)
	assert.Len(t, tree.Roots(), 1)

	codes := []string{}
	for _, acc := range unreachable {
		codes = append(codes, acc.Code)
	}
	assert.Equal(t, []string{"8000", "8100", "9000"}, codes)
}

func TestLeafDescendantsAndPostOrder(t *testing.T) {
	accounts := []Account{
		{ID: 1, Code: "1000", IsParent: true},
		{ID: 2, Code: "1100", ParentID: ptr(1), IsParent: true},
		{ID: 3, Code: "1110", ParentID: ptr(2)},
		{ID: 4, Code: "1200", ParentID: ptr(1)},
	}
	tree, _ := BuildTree(accounts)

	leaves := tree.LeafDescendants(1)
	require.Len(t, leaves, 2)
	assert.Equal(t, "1110", leaves[0].Code)
	assert.Equal(t, "1200", leaves[1].Code)

	self := tree.LeafDescendants(3)
	require.Len(t, self, 1)
	assert.Equal(t, "1110", self[0].Code)
	assert.Nil(t, tree.LeafDescendants(42))

	order := []string{}
	tree.PostOrder(func(n *AccountNode) { order = append(order, n.Code) })
	assert.Equal(t, []string{"1110", "1100", "1200", "1000"}, order)
}

func TestNatureSignedDelta(t *testing.T) {
	hundred := decimal.NewFromInt(100)
	assert.True(t, NatureDebit.SignedDelta(hundred, decimal.Zero).Equal(hundred))
	assert.True(t, NatureCredit.SignedDelta(hundred, decimal.Zero).Equal(hundred.Neg()))
	assert.True(t, NatureCredit.SignedDelta(decimal.Zero, hundred).Equal(hundred))

	assert.True(t, NatureCredit.FromNetDebit(NatureCredit.NetDebit(hundred)).Equal(hundred))
	assert.Equal(t, NatureCredit, CategoryRevenue.DefaultNature())
	assert.Equal(t, NatureDebit, CategoryExpense.DefaultNature())
	assert.False(t, Category("income").Valid())
}
