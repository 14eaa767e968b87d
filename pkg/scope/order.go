package scope

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
)

// CollectionOrderer decides the order collections run in. It must return a
// permutation of its input.
type CollectionOrderer interface {
	OrderCollections(collections []*Collection) ([]*Collection, error)
}

// CaseOrderer decides the order the cases of a method run in. It must
// return a permutation of its input.
type CaseOrderer interface {
	OrderCases(cases []*Case) ([]*Case, error)
}

// Orderer names accepted by NewOrderer.
const (
	OrderNatural      = "natural"
	OrderAlphabetical = "alphabetical"
	OrderRandom       = "random"
)

// NaturalOrder keeps discovery order.
type NaturalOrder struct{}

func (NaturalOrder) OrderCollections(c []*Collection) ([]*Collection, error) { return c, nil }
func (NaturalOrder) OrderCases(c []*Case) ([]*Case, error)                   { return c, nil }

// AlphabeticalOrder sorts by display name.
type AlphabeticalOrder struct{}

func (AlphabeticalOrder) OrderCollections(c []*Collection) ([]*Collection, error) {
	out := slices.Clone(c)
	slices.SortStableFunc(out, func(a, b *Collection) int { return cmp.Compare(a.DisplayName, b.DisplayName) })

	return out, nil
}

func (AlphabeticalOrder) OrderCases(c []*Case) ([]*Case, error) {
	out := slices.Clone(c)
	slices.SortStableFunc(out, func(a, b *Case) int { return cmp.Compare(a.DisplayName, b.DisplayName) })

	return out, nil
}

// RandomOrder shuffles deterministically from Seed, so a run can be
// reproduced from the seed reported in AssemblyStarting.
type RandomOrder struct {
	Seed int64
}

func (o RandomOrder) OrderCollections(c []*Collection) ([]*Collection, error) {
	return shuffle(c, o.Seed), nil
}

func (o RandomOrder) OrderCases(c []*Case) ([]*Case, error) {
	return shuffle(c, o.Seed), nil
}

func shuffle[T any](items []T, seed int64) []T {
	out := slices.Clone(items)
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })

	return out
}

// Orderer implements both orderer interfaces.
type Orderer interface {
	CollectionOrderer
	CaseOrderer
}

// NewOrderer returns the orderer registered under name.
func NewOrderer(name string, seed int64) (Orderer, error) {
	switch name {
	case "", OrderNatural:
		return NaturalOrder{}, nil
	case OrderAlphabetical:
		return AlphabeticalOrder{}, nil
	case OrderRandom:
		return RandomOrder{Seed: seed}, nil
	default:
		return nil, fmt.Errorf("unknown orderer %q", name)
	}
}

// applyOrder runs an orderer, converting panics and non-permutations into
// errors.
func applyOrder[T comparable](items []T, order func([]T) ([]T, error)) (out []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	out, err = order(slices.Clone(items))
	if err != nil {
		return nil, err
	}

	if !isPermutation(items, out) {
		return nil, fmt.Errorf("returned %d items that are not a permutation of the %d given", len(out), len(items))
	}

	return out, nil
}

func isPermutation[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}

	counts := make(map[T]int, len(a))
	for _, v := range a {
		counts[v]++
	}

	for _, v := range b {
		counts[v]--
		if counts[v] < 0 {
			return false
		}
	}

	return true
}
