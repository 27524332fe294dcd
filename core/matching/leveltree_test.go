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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marlinmarkets/marlin/core/types"
)

func tstLevel(ltype types.LevelType, price int64) *PriceLevel {
	return &PriceLevel{Level: types.Level{Type: ltype, Price: price}}
}

func TestLevelTreeBidOrdering(t *testing.T) {
	tree := newLevelTree(types.LevelTypeBid)
	for _, price := range []int64{50, 53, 49, 51} {
		tree.add(tstLevel(types.LevelTypeBid, price))
	}

	// Best bid is the highest price, next walks down.
	best := tree.best()
	require.NotNil(t, best)
	assert.Equal(t, int64(53), best.Price)

	next := tree.next(best)
	require.NotNil(t, next)
	assert.Equal(t, int64(51), next.Price)

	last := tree.next(tree.get(49))
	assert.Nil(t, last)
}

func TestLevelTreeAskOrdering(t *testing.T) {
	tree := newLevelTree(types.LevelTypeAsk)
	for _, price := range []int64{50, 53, 49, 51} {
		tree.add(tstLevel(types.LevelTypeAsk, price))
	}

	// Best ask is the lowest price, next walks up.
	best := tree.best()
	require.NotNil(t, best)
	assert.Equal(t, int64(49), best.Price)

	next := tree.next(best)
	require.NotNil(t, next)
	assert.Equal(t, int64(50), next.Price)

	last := tree.next(tree.get(53))
	assert.Nil(t, last)
}

func TestLevelTreeGetAndRemove(t *testing.T) {
	tree := newLevelTree(types.LevelTypeBid)
	level := tstLevel(types.LevelTypeBid, 50)
	tree.add(level)

	assert.Equal(t, 1, tree.len())
	assert.Same(t, level, tree.get(50))
	assert.Nil(t, tree.get(51))

	tree.remove(level)
	assert.Equal(t, 0, tree.len())
	assert.Nil(t, tree.get(50))
	assert.Nil(t, tree.best())
}

func TestPriceLevelVolumeAccounting(t *testing.T) {
	alloc := newAllocator()
	level := alloc.getLevel(types.LevelTypeAsk, 50)

	plain := alloc.getOrder(types.SellLimit(1, tstSymbolID, 50, 100))
	iceberg := alloc.getOrder(func() types.Order {
		o := types.SellLimit(2, tstSymbolID, 50, 100)
		o.MaxVisibleQuantity = 25
		return o
	}())

	level.addOrder(plain)
	level.addOrder(iceberg)

	assert.Equal(t, int64(200), level.TotalVolume)
	assert.Equal(t, int64(125), level.VisibleVolume)
	assert.Equal(t, int64(75), level.HiddenVolume)
	assert.Equal(t, 2, level.Orders)
	assert.Same(t, plain, level.front())

	// Remove the front order, the iceberg moves up.
	level.deleteOrder(plain)
	assert.Equal(t, int64(100), level.TotalVolume)
	assert.Equal(t, 1, level.Orders)
	assert.Same(t, iceberg, level.front())
	assert.Nil(t, plain.level)
}
