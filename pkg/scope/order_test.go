package scope

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(cases []*Case) []string {
	out := make([]string, 0, len(cases))
	for _, c := range cases {
		out = append(out, c.DisplayName)
	}

	return out
}

func TestNewOrderer(t *testing.T) {
	tests := []struct {
		name    string
		want    Orderer
		wantErr bool
	}{
		{name: "", want: NaturalOrder{}},
		{name: OrderNatural, want: NaturalOrder{}},
		{name: OrderAlphabetical, want: AlphabeticalOrder{}},
		{name: OrderRandom, want: RandomOrder{Seed: 7}},
		{name: "reverse", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewOrderer(tt.name, 7)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlphabeticalOrder(t *testing.T) {
	cases := []*Case{{DisplayName: "c"}, {DisplayName: "a"}, {DisplayName: "b"}}

	ordered, err := AlphabeticalOrder{}.OrderCases(cases)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, names(ordered))
	assert.Equal(t, []string{"c", "a", "b"}, names(cases), "input is not modified")
}

func TestRandomOrder_DeterministicPerSeed(t *testing.T) {
	cases := make([]*Case, 0, 20)
	for _, n := range "abcdefghijklmnopqrst" {
		cases = append(cases, &Case{DisplayName: string(n)})
	}

	first, err := RandomOrder{Seed: 42}.OrderCases(cases)
	require.NoError(t, err)

	second, err := RandomOrder{Seed: 42}.OrderCases(cases)
	require.NoError(t, err)

	other, err := RandomOrder{Seed: 43}.OrderCases(cases)
	require.NoError(t, err)

	assert.Equal(t, names(first), names(second))
	assert.NotEqual(t, names(first), names(other))
	assert.ElementsMatch(t, names(cases), names(first))
}

func TestApplyOrder(t *testing.T) {
	a, b := &Case{DisplayName: "a"}, &Case{DisplayName: "b"}

	tests := []struct {
		name    string
		order   func([]*Case) ([]*Case, error)
		want    []*Case
		wantErr string
	}{
		{
			name:  "reversed",
			order: func(c []*Case) ([]*Case, error) { return []*Case{c[1], c[0]}, nil },
			want:  []*Case{b, a},
		},
		{
			name:    "error",
			order:   func([]*Case) ([]*Case, error) { return nil, errors.New("nope") },
			wantErr: "nope",
		},
		{
			name:    "panic",
			order:   func([]*Case) ([]*Case, error) { panic("boom") },
			wantErr: "panic: boom",
		},
		{
			name:    "dropped item",
			order:   func(c []*Case) ([]*Case, error) { return c[:1], nil },
			wantErr: "not a permutation",
		},
		{
			name:    "duplicated item",
			order:   func(c []*Case) ([]*Case, error) { return []*Case{c[0], c[0]}, nil },
			wantErr: "not a permutation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyOrder([]*Case{a, b}, tt.order)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCase_Tests(t *testing.T) {
	c := &Case{
		DisplayName: "Add",
		Rows: []Row{
			{Args: []string{"1", "2"}},
			{Args: []string{"3", "4"}, SkipReason: "row skip"},
		},
	}

	tests := c.Tests()
	require.Len(t, tests, 2)
	assert.Equal(t, "Add(1, 2)", tests[0].DisplayName)
	assert.Empty(t, tests[0].SkipReason)
	assert.Equal(t, "row skip", tests[1].SkipReason)

	c.SkipReason = "case skip"
	for _, test := range c.Tests() {
		assert.Equal(t, "case skip", test.SkipReason)
	}

	assert.Equal(t, 2, (&Assembly{Collections: []*Collection{{Classes: []*Class{{Methods: []*Method{{Cases: []*Case{c}}}}}}}}).CountTests())
}
