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

import "github.com/marlinmarkets/marlin/core/types"

// MarketHandler receives notifications about every market state change the
// manager performs. Callbacks fire synchronously, in the exact order the
// changes happen, before the command that caused them returns.
//
// The order and level values passed in are only valid for the duration of
// the call. Handlers that need them longer must copy.
type MarketHandler interface {
	OnAddSymbol(symbol types.Symbol)
	OnDeleteSymbol(symbol types.Symbol)

	OnAddOrderBook(book *OrderBook)
	OnUpdateOrderBook(book *OrderBook, top bool)
	OnDeleteOrderBook(book *OrderBook)

	OnAddLevel(book *OrderBook, level types.Level, top bool)
	OnUpdateLevel(book *OrderBook, level types.Level, top bool)
	OnDeleteLevel(book *OrderBook, level types.Level, top bool)

	OnAddOrder(order *types.Order)
	OnUpdateOrder(order *types.Order)
	OnDeleteOrder(order *types.Order)

	// OnExecuteOrder reports a fill of the given quantity at the given
	// price. The order still carries its pre-fill quantities when the
	// callback fires.
	OnExecuteOrder(order *types.Order, price, quantity int64)
}

// NoopHandler is a MarketHandler which ignores every notification. Embed it
// to implement only the callbacks you care about.
type NoopHandler struct{}

func (NoopHandler) OnAddSymbol(types.Symbol)    {}
func (NoopHandler) OnDeleteSymbol(types.Symbol) {}

func (NoopHandler) OnAddOrderBook(*OrderBook)          {}
func (NoopHandler) OnUpdateOrderBook(*OrderBook, bool) {}
func (NoopHandler) OnDeleteOrderBook(*OrderBook)       {}

func (NoopHandler) OnAddLevel(*OrderBook, types.Level, bool)    {}
func (NoopHandler) OnUpdateLevel(*OrderBook, types.Level, bool) {}
func (NoopHandler) OnDeleteLevel(*OrderBook, types.Level, bool) {}

func (NoopHandler) OnAddOrder(*types.Order)    {}
func (NoopHandler) OnUpdateOrder(*types.Order) {}
func (NoopHandler) OnDeleteOrder(*types.Order) {}

func (NoopHandler) OnExecuteOrder(*types.Order, int64, int64) {}
