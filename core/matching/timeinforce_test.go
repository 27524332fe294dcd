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

func TestTimeInForceIOC(t *testing.T) {
	m := getTestManager(t)
	book := m.book(t)

	require.NoError(t, m.AddOrder(types.SellLimit(1, tstSymbolID, 50, 30)))

	ioc := types.BuyLimit(2, tstSymbolID, 50, 100)
	ioc.TimeInForce = types.OrderTimeInForceIOC
	require.NoError(t, m.AddOrder(ioc))

	// The immediate part fills, the rest is cancelled instead of resting.
	require.Len(t, m.rec.fills, 2)
	assert.Equal(t, fill{orderID: 1, price: 50, quantity: 30}, m.rec.fills[0])
	assert.Equal(t, fill{orderID: 2, price: 50, quantity: 30}, m.rec.fills[1])
	assert.Nil(t, book.BestBid())
	assert.Equal(t, 0, m.Orders())
}

func TestTimeInForceFOKKilled(t *testing.T) {
	m := getTestManager(t)
	book := m.book(t)

	require.NoError(t, m.AddOrder(types.SellLimit(1, tstSymbolID, 50, 30)))
	m.rec.reset()

	fok := types.BuyLimit(2, tstSymbolID, 55, 50)
	fok.TimeInForce = types.OrderTimeInForceFOK
	require.NoError(t, m.AddOrder(fok))

	// Not enough volume in reach: nothing trades at all.
	assert.Empty(t, m.rec.fills)
	assert.Equal(t, int64(30), book.BestAsk().TotalVolume)
	assert.Nil(t, book.BestBid())
	assert.Equal(t, 1, m.Orders())
}

func TestTimeInForceFOKFilled(t *testing.T) {
	m := getTestManager(t)
	book := m.book(t)

	require.NoError(t, m.AddOrder(types.SellLimit(1, tstSymbolID, 50, 30)))
	require.NoError(t, m.AddOrder(types.SellLimit(2, tstSymbolID, 51, 30)))
	m.rec.reset()

	fok := types.BuyLimit(3, tstSymbolID, 51, 60)
	fok.TimeInForce = types.OrderTimeInForceFOK
	require.NoError(t, m.AddOrder(fok))

	// The whole chain executes at the aggressive order's limit price.
	require.Len(t, m.rec.fills, 3)
	assert.Equal(t, fill{orderID: 1, price: 51, quantity: 30}, m.rec.fills[0])
	assert.Equal(t, fill{orderID: 2, price: 51, quantity: 30}, m.rec.fills[1])
	assert.Equal(t, fill{orderID: 3, price: 51, quantity: 60}, m.rec.fills[2])

	assert.Nil(t, book.BestAsk())
	assert.Equal(t, 0, m.Orders())
}

func TestTimeInForceAONRestsUntilFullFill(t *testing.T) {
	m := getTestManager(t)
	book := m.book(t)

	aon := types.BuyLimit(1, tstSymbolID, 50, 100)
	aon.TimeInForce = types.OrderTimeInForceAON
	require.NoError(t, m.AddOrder(aon))
	assert.Equal(t, 1, m.Orders())

	// A smaller sell cannot break into the All-Or-None order, the book
	// stays crossed with both orders resting.
	require.NoError(t, m.AddOrder(types.SellLimit(2, tstSymbolID, 50, 40)))
	assert.Empty(t, m.rec.fills)
	assert.Equal(t, 2, m.Orders())
	require.NotNil(t, book.BestBid())
	require.NotNil(t, book.BestAsk())

	// Once the opposite volume adds up exactly, the whole chain trades at
	// the All-Or-None order's price.
	require.NoError(t, m.AddOrder(types.SellLimit(3, tstSymbolID, 50, 60)))

	require.Len(t, m.rec.fills, 3)
	for _, f := range m.rec.fills {
		assert.Equal(t, int64(50), f.price)
	}
	assert.Equal(t, 0, m.Orders())
	assert.Nil(t, book.BestBid())
	assert.Nil(t, book.BestAsk())
}

func TestTimeInForceAONBlocksBiggerResting(t *testing.T) {
	m := getTestManager(t)

	aon := types.SellLimit(1, tstSymbolID, 50, 100)
	aon.TimeInForce = types.OrderTimeInForceAON
	require.NoError(t, m.AddOrder(aon))

	// The incoming order is too small for the resting All-Or-None order.
	require.NoError(t, m.AddOrder(types.BuyLimit(2, tstSymbolID, 50, 60)))
	assert.Empty(t, m.rec.fills)
	assert.Equal(t, 2, m.Orders())
}
