// Copyright (C) 2023 Marlin Markets Limited
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package matching

import (
	"github.com/google/btree"

	"github.com/marlinmarkets/marlin/core/types"
)

const levelTreeDegree = 8

// levelTree is one side of a book: price levels keyed by price, ordered so
// that the tree maximum is always the best level of that side. Bid-type
// trees order ascending by price (best is the highest bid), ask-type trees
// order descending (best is the lowest ask). The same structure backs the
// stop and trailing stop collections, where "best" is the trigger price
// closest to the market.
type levelTree struct {
	tree *btree.BTreeG[*PriceLevel]
}

func newLevelTree(ltype types.LevelType) *levelTree {
	less := func(a, b *PriceLevel) bool { return a.Price < b.Price }
	if ltype == types.LevelTypeAsk {
		less = func(a, b *PriceLevel) bool { return a.Price > b.Price }
	}
	return &levelTree{tree: btree.NewG(levelTreeDegree, less)}
}

func (t *levelTree) len() int {
	return t.tree.Len()
}

func (t *levelTree) get(price int64) *PriceLevel {
	probe := &PriceLevel{Level: types.Level{Price: price}}
	if l, ok := t.tree.Get(probe); ok {
		return l
	}
	return nil
}

func (t *levelTree) add(l *PriceLevel) {
	t.tree.ReplaceOrInsert(l)
}

func (t *levelTree) remove(l *PriceLevel) {
	t.tree.Delete(l)
}

// best returns the level closest to the market, nil when the side is empty.
func (t *levelTree) best() *PriceLevel {
	if l, ok := t.tree.Max(); ok {
		return l
	}
	return nil
}

// next returns the level one step further away from the market than the
// given one, nil when there is none.
func (t *levelTree) next(l *PriceLevel) *PriceLevel {
	var (
		res   *PriceLevel
		pivot = true
	)
	t.tree.DescendLessOrEqual(l, func(item *PriceLevel) bool {
		if pivot {
			pivot = false
			return true
		}
		res = item
		return false
	})
	return res
}

// descend visits the levels best-first until the callback returns false.
func (t *levelTree) descend(f func(*PriceLevel) bool) {
	t.tree.Descend(f)
}
