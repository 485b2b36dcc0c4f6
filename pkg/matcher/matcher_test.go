package matcher

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/estatebot/pkg/catalog"
)

func TestParseBudget(t *testing.T) {
	cases := map[string]int64{
		"5 million":               5_000_000,
		"700k":                    700_000,
		"Land under 5 Million":    5_000_000,
		"around 3m please":        3_000_000,
		"budget is 250 k":         250_000,
		"first 2m then 9 million": 2_000_000,
	}
	for msg, want := range cases {
		got, ok := ParseBudget(msg)
		require.True(t, ok, msg)
		require.Equal(t, want, got, msg)
	}

	_, ok := ParseBudget("houses in Nairobi")
	require.False(t, ok)
}

func TestParseBudget_SaturatesHugeAmounts(t *testing.T) {
	for _, msg := range []string{
		"land under 99999999999999 million",
		"land under 9223372036854775807k",
		"land under 99999999999999999999999 m",
	} {
		got, ok := ParseBudget(msg)
		require.True(t, ok, msg)
		require.Equal(t, int64(math.MaxInt64), got, msg)
	}
}

func TestBudgetCeiling(t *testing.T) {
	require.Equal(t, int64(6_000_000), budgetCeiling(5_000_000, 1.2))
	require.Equal(t, int64(1_198), budgetCeiling(999, 1.2))
	require.Equal(t, int64(5_000_000), budgetCeiling(5_000_000, 1))
	require.Equal(t, int64(math.MaxInt64), budgetCeiling(math.MaxInt64, 1.2))
	require.Equal(t, int64(math.MaxInt64), budgetCeiling(8_000_000_000_000_000_000, 1.2))
	require.Equal(t, int64(0), budgetCeiling(5_000_000, 0))
}

func TestMatch_HugeBudgetStillMatches(t *testing.T) {
	props := []catalog.Property{
		{ID: "plot", Title: "Small Plot", Location: "Machakos", Price: 1_000_000, Type: "land"},
	}
	got := Match("land under 99999999999999 million", props)
	require.Len(t, got, 1)
	require.Equal(t, "plot", got[0].ID)
}

func TestMatch_LocationAndType(t *testing.T) {
	props := []catalog.Property{
		{ID: "1", Title: "Family Home", Location: "Nairobi", Price: 8_000_000, Type: "house"},
		{ID: "2", Title: "Sea View", Location: "Mombasa", Price: 6_500_000, Type: "apartment"},
	}
	got := Match("Show me houses in Nairobi", props)
	require.Len(t, got, 1)
	require.Equal(t, "1", got[0].ID)
}

func TestMatch_BudgetCeiling(t *testing.T) {
	props := []catalog.Property{
		{ID: "a", Title: "Plot A", Location: "Kitengela", Price: 5_900_000, Type: "land"},
		{ID: "b", Title: "Plot B", Location: "Kitengela", Price: 6_200_000, Type: "land"},
	}
	got := Match("Land under 5 million", props)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ID)
}

func TestMatch_ToleranceBoundary(t *testing.T) {
	props := []catalog.Property{
		{ID: "at", Title: "At Limit", Location: "Ruiru", Price: 6_000_000, Type: "house"},
		{ID: "over", Title: "Over Limit", Location: "Ruiru", Price: 6_000_001, Type: "house"},
	}
	got := Match("anything for 5 million", props)
	require.Len(t, got, 1)
	require.Equal(t, "at", got[0].ID)
}

func TestMatch_LooseBudgetKeepsTextMatches(t *testing.T) {
	opts := DefaultOptions()
	opts.StrictBudget = false
	props := []catalog.Property{
		{ID: "b", Title: "Plot B", Location: "Kitengela", Price: 6_200_000, Type: "land"},
	}
	require.Len(t, New(opts).Match("Land under 5 million", props), 1)
}

func TestMatch_ReverseContainmentAndCounty(t *testing.T) {
	props := []catalog.Property{
		{ID: "1", Title: "Kajiado Ranch Land", Location: "Isinya", County: "Kajiado", Price: 1, Type: "land"},
		{ID: "2", Title: "Other", Location: "Eldoret", Price: 1, Type: "house"},
	}
	require.Len(t, Match("ranch", props), 1)
	require.Len(t, Match("anything in kajiado county", props), 1)
}

func TestMatch_EmptyFieldsNeverMatch(t *testing.T) {
	props := []catalog.Property{{ID: "1", Title: "Loft", Price: 1}}
	require.Empty(t, Match("tell me something", props))
}

func TestMatch_TruncatesInCatalogOrder(t *testing.T) {
	props := make([]catalog.Property, 0, 8)
	for i := 0; i < 8; i++ {
		props = append(props, catalog.Property{ID: fmt.Sprint(i), Title: fmt.Sprintf("Unit %d", i), Location: "Nairobi", Price: 1, Type: "apartment"})
	}
	got := Match("nairobi", props)
	require.Len(t, got, DefaultMaxResults)
	for i, p := range got {
		require.Equal(t, fmt.Sprint(i), p.ID)
	}
}

func TestMatch_EmptyCatalog(t *testing.T) {
	require.Empty(t, Match("houses", nil))
}
