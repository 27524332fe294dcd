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

func TestStopOrderRests(t *testing.T) {
	m := getTestManager(t)
	book := m.book(t)

	require.NoError(t, m.AddOrder(types.SellLimit(1, tstSymbolID, 55, 10)))

	// Trigger above the market ask: the stop waits.
	require.NoError(t, m.AddOrder(types.BuyStop(2, tstSymbolID, 60, 10)))

	assert.Empty(t, m.rec.fills)
	assert.Equal(t, 2, m.Orders())
	require.NotNil(t, book.BestBuyStop())
	assert.Equal(t, int64(60), book.BestBuyStop().Price)
}

func TestStopOrderImmediateActivation(t *testing.T) {
	m := getTestManager(t)
	book := m.book(t)

	require.NoError(t, m.AddOrder(types.SellLimit(1, tstSymbolID, 55, 10)))
	m.rec.reset()

	// The market ask already satisfies the trigger: the stop converts to
	// a market order on arrival and executes.
	require.NoError(t, m.AddOrder(types.BuyStop(2, tstSymbolID, 55, 10)))

	require.Len(t, m.rec.fills, 2)
	assert.Equal(t, fill{orderID: 1, price: 55, quantity: 10}, m.rec.fills[0])
	assert.Equal(t, fill{orderID: 2, price: 55, quantity: 10}, m.rec.fills[1])
	assert.Equal(t, 0, m.Orders())
	assert.Nil(t, book.BestBuyStop())
}

func TestStopOrderActivatedByTrade(t *testing.T) {
	m := getTestManager(t)
	book := m.book(t)

	require.NoError(t, m.AddOrder(types.SellLimit(1, tstSymbolID, 55, 10)))
	require.NoError(t, m.AddOrder(types.SellLimit(2, tstSymbolID, 60, 10)))
	require.NoError(t, m.AddOrder(types.SellLimit(3, tstSymbolID, 61, 10)))

	require.NoError(t, m.AddOrder(types.BuyStop(4, tstSymbolID, 60, 10)))
	require.NotNil(t, book.BestBuyStop())
	m.rec.reset()

	// Trading up to 55 is not enough to reach the trigger at 60.
	require.NoError(t, m.AddOrder(types.BuyLimit(5, tstSymbolID, 55, 10)))
	require.NotNil(t, book.BestBuyStop())

	// Trading at 60 fires the stop, which then takes the 61 offer.
	m.rec.reset()
	require.NoError(t, m.AddOrder(types.BuyLimit(6, tstSymbolID, 60, 10)))

	require.Len(t, m.rec.fills, 4)
	assert.Equal(t, fill{orderID: 2, price: 60, quantity: 10}, m.rec.fills[0])
	assert.Equal(t, fill{orderID: 6, price: 60, quantity: 10}, m.rec.fills[1])
	assert.Equal(t, fill{orderID: 3, price: 61, quantity: 10}, m.rec.fills[2])
	assert.Equal(t, fill{orderID: 4, price: 61, quantity: 10}, m.rec.fills[3])

	assert.Nil(t, book.BestBuyStop())
	assert.Equal(t, 0, m.Orders())
}

func TestStopLimitOrderActivatesToRestingLimit(t *testing.T) {
	m := getTestManager(t)
	book := m.book(t)

	require.NoError(t, m.AddOrder(types.BuyLimit(1, tstSymbolID, 45, 10)))
	require.NoError(t, m.AddOrder(types.BuyLimit(2, tstSymbolID, 40, 10)))

	// Sell stop-limit below the market bid rests.
	require.NoError(t, m.AddOrder(types.SellStopLimit(3, tstSymbolID, 40, 39, 10)))
	require.NotNil(t, book.BestSellStop())
	assert.Equal(t, int64(40), book.BestSellStop().Price)

	// Sell through the bids down to 40 to pull the trigger.
	require.NoError(t, m.AddOrder(types.SellLimit(4, tstSymbolID, 45, 10)))
	require.NotNil(t, book.BestSellStop())
	require.NoError(t, m.AddOrder(types.SellLimit(5, tstSymbolID, 40, 10)))

	// The stop-limit converted to a limit order at 39 and rests as the
	// best ask, since no bids are left to take it.
	assert.Nil(t, book.BestSellStop())
	require.NotNil(t, book.BestAsk())
	assert.Equal(t, int64(39), book.BestAsk().Price)

	order := m.GetOrder(3)
	require.NotNil(t, order)
	assert.Equal(t, types.OrderTypeLimit, order.Type)
	assert.Equal(t, int64(0), order.StopPrice)
}

func TestTrailingSellStopSlides(t *testing.T) {
	m := getTestManager(t)
	book := m.book(t)

	// Establish a last traded bid price at 100.
	require.NoError(t, m.AddOrder(types.BuyLimit(1, tstSymbolID, 100, 10)))
	require.NoError(t, m.AddOrder(types.SellLimit(2, tstSymbolID, 100, 10)))

	// Keep a resting bid so the market stays priced.
	require.NoError(t, m.AddOrder(types.BuyLimit(3, tstSymbolID, 100, 10)))

	// Trailing sell stop, absolute distance 10: trails at 100-10=90.
	require.NoError(t, m.AddOrder(types.TrailingSellStop(4, tstSymbolID, 0, 10, 10, 0)))

	order := m.GetOrder(4)
	require.NotNil(t, order)
	assert.Equal(t, int64(90), order.StopPrice)
	require.NotNil(t, book.BestTrailingSellStop())
	assert.Equal(t, int64(90), book.BestTrailingSellStop().Price)

	// The market rises to 110: a partial fill at 110 re-anchors the
	// trailing price and the stop slides up to 100.
	require.NoError(t, m.AddOrder(types.BuyLimit(5, tstSymbolID, 110, 10)))
	require.NoError(t, m.AddOrder(types.SellLimit(6, tstSymbolID, 110, 5)))

	order = m.GetOrder(4)
	require.NotNil(t, order)
	assert.Equal(t, int64(100), order.StopPrice)
	require.NotNil(t, book.GetTrailingSellStopLevel(100))
	assert.Nil(t, book.GetTrailingSellStopLevel(90))
}

func TestTrailingBuyStopSlides(t *testing.T) {
	m := getTestManager(t)
	book := m.book(t)

	// Establish a last traded ask price at 100.
	require.NoError(t, m.AddOrder(types.SellLimit(1, tstSymbolID, 100, 10)))
	require.NoError(t, m.AddOrder(types.BuyLimit(2, tstSymbolID, 100, 10)))

	// Keep a resting ask so the market stays priced.
	require.NoError(t, m.AddOrder(types.SellLimit(3, tstSymbolID, 100, 10)))

	// Trailing buy stop, absolute distance 10: trails at 100+10=110. The
	// seed price above the market keeps it from firing on arrival.
	require.NoError(t, m.AddOrder(types.TrailingBuyStop(4, tstSymbolID, 120, 10, 10, 0)))

	order := m.GetOrder(4)
	require.NotNil(t, order)
	assert.Equal(t, int64(110), order.StopPrice)
	require.NotNil(t, book.BestTrailingBuyStop())
	assert.Equal(t, int64(110), book.BestTrailingBuyStop().Price)

	// A lower quote alone does not re-anchor the trailing price.
	require.NoError(t, m.AddOrder(types.SellLimit(5, tstSymbolID, 90, 10)))
	order = m.GetOrder(4)
	require.NotNil(t, order)
	assert.Equal(t, int64(110), order.StopPrice)

	// A partial fill at 90 does: the stop slides down to 100.
	require.NoError(t, m.AddOrder(types.BuyLimit(6, tstSymbolID, 90, 5)))

	order = m.GetOrder(4)
	require.NotNil(t, order)
	assert.Equal(t, int64(100), order.StopPrice)
	require.NotNil(t, book.GetTrailingBuyStopLevel(100))
	assert.Nil(t, book.GetTrailingBuyStopLevel(110))
}

func TestTrailingBuyStopPriceCalculation(t *testing.T) {
	m := getTestManager(t)
	book := m.book(t)

	// No priced ask side yet: the stop price stays where it is, even with
	// a percentage distance that would otherwise scale the market price.
	order := types.TrailingBuyStop(4, tstSymbolID, 500, 10, -100, 0)
	price := book.CalculateTrailingStopPrice(&order)
	assert.Equal(t, int64(500), price)

	// Trade at 10000, keep an ask at 10000 so the trailing ask price holds.
	require.NoError(t, m.AddOrder(types.SellLimit(1, tstSymbolID, 10000, 10)))
	require.NoError(t, m.AddOrder(types.BuyLimit(2, tstSymbolID, 10000, 10)))
	require.NoError(t, m.AddOrder(types.SellLimit(3, tstSymbolID, 10000, 10)))

	// Percentage distance: -100 is 1%, so 10000 trails at 10100.
	order = types.TrailingBuyStop(5, tstSymbolID, 20000, 10, -100, 0)
	price = book.CalculateTrailingStopPrice(&order)
	assert.Equal(t, int64(10100), price)

	// Absolute distance.
	order = types.TrailingBuyStop(6, tstSymbolID, 20000, 10, 250, 0)
	price = book.CalculateTrailingStopPrice(&order)
	assert.Equal(t, int64(10250), price)

	// The step keeps the stop price from chasing small moves.
	order = types.TrailingBuyStop(7, tstSymbolID, 10015, 10, 10, 5)
	price = book.CalculateTrailingStopPrice(&order)
	assert.Equal(t, int64(10010), price)

	order = types.TrailingBuyStop(8, tstSymbolID, 10013, 10, 10, 5)
	price = book.CalculateTrailingStopPrice(&order)
	assert.Equal(t, int64(10013), price)
}

func TestTrailingStopPriceCalculation(t *testing.T) {
	m := getTestManager(t)
	book := m.book(t)

	// Trade at 10000, keep a bid at 10000 so the trailing bid price holds.
	require.NoError(t, m.AddOrder(types.BuyLimit(1, tstSymbolID, 10000, 10)))
	require.NoError(t, m.AddOrder(types.SellLimit(2, tstSymbolID, 10000, 10)))
	require.NoError(t, m.AddOrder(types.BuyLimit(3, tstSymbolID, 10000, 10)))

	// Percentage distance: -100 is 1%, so 10000 trails at 9900.
	order := types.TrailingSellStop(4, tstSymbolID, 0, 10, -100, 0)
	price := book.CalculateTrailingStopPrice(&order)
	assert.Equal(t, int64(9900), price)

	// Absolute distance.
	order = types.TrailingSellStop(5, tstSymbolID, 0, 10, 250, 0)
	price = book.CalculateTrailingStopPrice(&order)
	assert.Equal(t, int64(9750), price)

	// The step keeps the stop price from chasing small moves: the stop
	// only slides when the improvement reaches the step.
	order = types.TrailingSellStop(6, tstSymbolID, 9985, 10, 10, 5)
	price = book.CalculateTrailingStopPrice(&order)
	assert.Equal(t, int64(9990), price)

	order = types.TrailingSellStop(7, tstSymbolID, 9987, 10, 10, 5)
	price = book.CalculateTrailingStopPrice(&order)
	assert.Equal(t, int64(9987), price)
}
