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

package types

import (
	"fmt"
	"math"
)

// OrderType is the execution style of an order.
type OrderType int

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
	OrderTypeStop
	OrderTypeStopLimit
	OrderTypeTrailingStop
	OrderTypeTrailingStopLimit
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeStop:
		return "STOP"
	case OrderTypeStopLimit:
		return "STOP-LIMIT"
	case OrderTypeTrailingStop:
		return "TRAILING-STOP"
	case OrderTypeTrailingStopLimit:
		return "TRAILING-STOP-LIMIT"
	default:
		return "<unknown>"
	}
}

// Side is the buy/sell side of an order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "<unknown>"
	}
}

// OrderTimeInForce controls what happens to the unmatched part of an order
// once its initial matching completes.
type OrderTimeInForce int

const (
	// OrderTimeInForceGTC - Good-Till-Cancelled, unmatched leaves rest in
	// the book.
	OrderTimeInForceGTC OrderTimeInForce = iota
	// OrderTimeInForceIOC - Immediate-Or-Cancel, unmatched leaves are
	// deleted.
	OrderTimeInForceIOC
	// OrderTimeInForceFOK - Fill-Or-Kill, either the full quantity executes
	// immediately or nothing does and the order is deleted.
	OrderTimeInForceFOK
	// OrderTimeInForceAON - All-Or-None, like FOK for the fill-or-nothing
	// check but the order rests if it cannot fully fill.
	OrderTimeInForceAON
)

func (t OrderTimeInForce) String() string {
	switch t {
	case OrderTimeInForceGTC:
		return "GTC"
	case OrderTimeInForceIOC:
		return "IOC"
	case OrderTimeInForceFOK:
		return "FOK"
	case OrderTimeInForceAON:
		return "AON"
	default:
		return "<unknown>"
	}
}

// MaxSlippage is the slippage value meaning "unlimited walk, bounded only
// by book depth". MaxVisibleQuantity set to MaxVisible means a plain,
// fully displayed order.
const (
	MaxSlippage int64 = math.MaxInt64
	MaxVisible  int64 = math.MaxInt64
)

// Order is a trading instruction plus its live execution state. Prices and
// quantities are scaled integers; the engine never deals in floats.
type Order struct {
	ID       int64
	SymbolID uint32
	Type     OrderType
	Side     Side

	Price     int64
	StopPrice int64

	Quantity         int64
	ExecutedQuantity int64
	LeavesQuantity   int64

	TimeInForce OrderTimeInForce

	// MaxVisibleQuantity prepares 'iceberg'/'hidden' orders:
	// MaxVisibleQuantity >= LeavesQuantity - regular order,
	// MaxVisibleQuantity == 0 - hidden order,
	// MaxVisibleQuantity < LeavesQuantity - iceberg order.
	// Supported only for limit and stop-limit orders.
	MaxVisibleQuantity int64

	// Slippage bounds how far matching may walk the opposite side of the
	// book for this order. Supported only for market and stop orders.
	Slippage int64

	// TrailingDistance and TrailingStep control trailing stop orders. A
	// positive value is an absolute price distance from the market; a
	// negative value is a percentage distance in hundredths of a percent
	// (-1 means 0.01%, -10000 means 100%).
	TrailingDistance int64
	TrailingStep     int64
}

func (o *Order) IsMarket() bool            { return o.Type == OrderTypeMarket }
func (o *Order) IsLimit() bool             { return o.Type == OrderTypeLimit }
func (o *Order) IsStop() bool              { return o.Type == OrderTypeStop }
func (o *Order) IsStopLimit() bool         { return o.Type == OrderTypeStopLimit }
func (o *Order) IsTrailingStop() bool      { return o.Type == OrderTypeTrailingStop }
func (o *Order) IsTrailingStopLimit() bool { return o.Type == OrderTypeTrailingStopLimit }

func (o *Order) IsBuy() bool  { return o.Side == SideBuy }
func (o *Order) IsSell() bool { return o.Side == SideSell }

func (o *Order) IsGTC() bool { return o.TimeInForce == OrderTimeInForceGTC }
func (o *Order) IsIOC() bool { return o.TimeInForce == OrderTimeInForceIOC }
func (o *Order) IsFOK() bool { return o.TimeInForce == OrderTimeInForceFOK }
func (o *Order) IsAON() bool { return o.TimeInForce == OrderTimeInForceAON }

// IsHidden reports whether the order rests with no displayed quantity.
func (o *Order) IsHidden() bool { return o.MaxVisibleQuantity == 0 }

// IsIceberg reports whether the order caps its displayed quantity.
func (o *Order) IsIceberg() bool { return o.MaxVisibleQuantity < MaxVisible }

// HasSlippage reports whether the order carries a slippage bound.
func (o *Order) HasSlippage() bool { return o.Slippage < MaxSlippage }

// VisibleQuantity is the quantity currently displayed in the book.
func (o *Order) VisibleQuantity() int64 {
	if o.LeavesQuantity < o.MaxVisibleQuantity {
		return o.LeavesQuantity
	}
	return o.MaxVisibleQuantity
}

// HiddenQuantity is the resting quantity not displayed in the book.
func (o *Order) HiddenQuantity() int64 {
	if o.LeavesQuantity > o.MaxVisibleQuantity {
		return o.LeavesQuantity - o.MaxVisibleQuantity
	}
	return 0
}

// Validate checks the order fields make sense together. It is called
// before any engine state is mutated, so a rejected order never leaves a
// partially updated book behind it.
func (o *Order) Validate() error {
	if o.ID <= 0 {
		return ErrOrderIDInvalid
	}

	if o.Quantity <= 0 || o.Quantity < o.LeavesQuantity || o.LeavesQuantity <= 0 {
		return ErrOrderQuantityInvalid
	}

	// A negative bound would cap a market order below the touch.
	if o.Slippage < 0 {
		return ErrOrderParameterInvalid
	}

	switch o.Type {
	case OrderTypeMarket:
		if !o.IsIOC() && !o.IsFOK() {
			return ErrOrderParameterInvalid
		}
		if o.IsIceberg() {
			return ErrOrderParameterInvalid
		}
	case OrderTypeLimit:
		if o.HasSlippage() {
			return ErrOrderParameterInvalid
		}
	case OrderTypeStop, OrderTypeTrailingStop:
		if o.IsIceberg() {
			return ErrOrderParameterInvalid
		}
	case OrderTypeStopLimit, OrderTypeTrailingStopLimit:
		if o.HasSlippage() {
			return ErrOrderParameterInvalid
		}
	default:
		return ErrOrderTypeInvalid
	}

	if o.IsTrailingStop() || o.IsTrailingStopLimit() {
		if o.TrailingDistance > 0 {
			// Absolute distance: step is absolute too and strictly smaller.
			if o.TrailingStep < 0 || o.TrailingStep >= o.TrailingDistance {
				return ErrOrderParameterInvalid
			}
		} else {
			// Percentage distance, in hundredths of a percent.
			if o.TrailingDistance > -1 || o.TrailingDistance < -10000 {
				return ErrOrderParameterInvalid
			}
			if o.TrailingStep > 0 || o.TrailingStep <= o.TrailingDistance {
				return ErrOrderParameterInvalid
			}
		}
	}

	return nil
}

func (o *Order) String() string {
	s := fmt.Sprintf("Order(Id=%d; SymbolId=%d; Type=%v; Side=%v; Price=%d; StopPrice=%d; Quantity=%d; ExecutedQuantity=%d; LeavesQuantity=%d; %v",
		o.ID, o.SymbolID, o.Type, o.Side, o.Price, o.StopPrice, o.Quantity, o.ExecutedQuantity, o.LeavesQuantity, o.TimeInForce)
	if o.IsTrailingStop() || o.IsTrailingStopLimit() {
		s += fmt.Sprintf("; TrailingDistance=%d; TrailingStep=%d", o.TrailingDistance, o.TrailingStep)
	}
	if o.IsHidden() || o.IsIceberg() {
		s += fmt.Sprintf("; MaxVisibleQuantity=%d", o.MaxVisibleQuantity)
	}
	if o.HasSlippage() {
		s += fmt.Sprintf("; Slippage=%d", o.Slippage)
	}
	return s + ")"
}

func newOrder(id int64, symbol uint32, otype OrderType, side Side, price, stopPrice, quantity int64, tif OrderTimeInForce) Order {
	return Order{
		ID:                 id,
		SymbolID:           symbol,
		Type:               otype,
		Side:               side,
		Price:              price,
		StopPrice:          stopPrice,
		Quantity:           quantity,
		LeavesQuantity:     quantity,
		TimeInForce:        tif,
		MaxVisibleQuantity: MaxVisible,
		Slippage:           MaxSlippage,
	}
}

// MarketOrder prepares a new market order. Market orders are always
// immediate: the time in force defaults to IOC.
func MarketOrder(id int64, symbol uint32, side Side, quantity int64) Order {
	o := newOrder(id, symbol, OrderTypeMarket, side, 0, 0, quantity, OrderTimeInForceIOC)
	return o
}

// BuyMarket prepares a new buy market order.
func BuyMarket(id int64, symbol uint32, quantity int64) Order {
	return MarketOrder(id, symbol, SideBuy, quantity)
}

// SellMarket prepares a new sell market order.
func SellMarket(id int64, symbol uint32, quantity int64) Order {
	return MarketOrder(id, symbol, SideSell, quantity)
}

// MarketOrderSlippage prepares a new market order with a slippage bound.
func MarketOrderSlippage(id int64, symbol uint32, side Side, quantity, slippage int64) Order {
	o := MarketOrder(id, symbol, side, quantity)
	o.Slippage = slippage
	return o
}

// LimitOrder prepares a new limit order.
func LimitOrder(id int64, symbol uint32, side Side, price, quantity int64) Order {
	return newOrder(id, symbol, OrderTypeLimit, side, price, 0, quantity, OrderTimeInForceGTC)
}

// BuyLimit prepares a new buy limit order.
func BuyLimit(id int64, symbol uint32, price, quantity int64) Order {
	return LimitOrder(id, symbol, SideBuy, price, quantity)
}

// SellLimit prepares a new sell limit order.
func SellLimit(id int64, symbol uint32, price, quantity int64) Order {
	return LimitOrder(id, symbol, SideSell, price, quantity)
}

// StopOrder prepares a new stop order.
func StopOrder(id int64, symbol uint32, side Side, stopPrice, quantity int64) Order {
	return newOrder(id, symbol, OrderTypeStop, side, 0, stopPrice, quantity, OrderTimeInForceGTC)
}

// BuyStop prepares a new buy stop order.
func BuyStop(id int64, symbol uint32, stopPrice, quantity int64) Order {
	return StopOrder(id, symbol, SideBuy, stopPrice, quantity)
}

// SellStop prepares a new sell stop order.
func SellStop(id int64, symbol uint32, stopPrice, quantity int64) Order {
	return StopOrder(id, symbol, SideSell, stopPrice, quantity)
}

// StopLimitOrder prepares a new stop-limit order.
func StopLimitOrder(id int64, symbol uint32, side Side, stopPrice, price, quantity int64) Order {
	return newOrder(id, symbol, OrderTypeStopLimit, side, price, stopPrice, quantity, OrderTimeInForceGTC)
}

// BuyStopLimit prepares a new buy stop-limit order.
func BuyStopLimit(id int64, symbol uint32, stopPrice, price, quantity int64) Order {
	return StopLimitOrder(id, symbol, SideBuy, stopPrice, price, quantity)
}

// SellStopLimit prepares a new sell stop-limit order.
func SellStopLimit(id int64, symbol uint32, stopPrice, price, quantity int64) Order {
	return StopLimitOrder(id, symbol, SideSell, stopPrice, price, quantity)
}

// TrailingStopOrder prepares a new trailing stop order.
func TrailingStopOrder(id int64, symbol uint32, side Side, stopPrice, quantity, trailingDistance, trailingStep int64) Order {
	o := newOrder(id, symbol, OrderTypeTrailingStop, side, 0, stopPrice, quantity, OrderTimeInForceGTC)
	o.TrailingDistance = trailingDistance
	o.TrailingStep = trailingStep
	return o
}

// TrailingBuyStop prepares a new trailing buy stop order.
func TrailingBuyStop(id int64, symbol uint32, stopPrice, quantity, trailingDistance, trailingStep int64) Order {
	return TrailingStopOrder(id, symbol, SideBuy, stopPrice, quantity, trailingDistance, trailingStep)
}

// TrailingSellStop prepares a new trailing sell stop order.
func TrailingSellStop(id int64, symbol uint32, stopPrice, quantity, trailingDistance, trailingStep int64) Order {
	return TrailingStopOrder(id, symbol, SideSell, stopPrice, quantity, trailingDistance, trailingStep)
}

// TrailingStopLimitOrder prepares a new trailing stop-limit order.
func TrailingStopLimitOrder(id int64, symbol uint32, side Side, stopPrice, price, quantity, trailingDistance, trailingStep int64) Order {
	o := newOrder(id, symbol, OrderTypeTrailingStopLimit, side, price, stopPrice, quantity, OrderTimeInForceGTC)
	o.TrailingDistance = trailingDistance
	o.TrailingStep = trailingStep
	return o
}

// TrailingBuyStopLimit prepares a new trailing buy stop-limit order.
func TrailingBuyStopLimit(id int64, symbol uint32, stopPrice, price, quantity, trailingDistance, trailingStep int64) Order {
	return TrailingStopLimitOrder(id, symbol, SideBuy, stopPrice, price, quantity, trailingDistance, trailingStep)
}

// TrailingSellStopLimit prepares a new trailing sell stop-limit order.
func TrailingSellStopLimit(id int64, symbol uint32, stopPrice, price, quantity, trailingDistance, trailingStep int64) Order {
	return TrailingStopLimitOrder(id, symbol, SideSell, stopPrice, price, quantity, trailingDistance, trailingStep)
}
