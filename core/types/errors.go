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

import "github.com/pkg/errors"

// The closed error taxonomy returned by market manager commands. A nil
// error means OK. Nothing in the engine is fatal; every failure is one of
// these values and the book is never left partially updated by a rejected
// command.
var (
	// ErrSymbolDuplicate is returned when adding a symbol with an id which
	// is already registered.
	ErrSymbolDuplicate = errors.New("symbol duplicate")
	// ErrSymbolNotFound is returned when the given symbol id is unknown.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrOrderBookDuplicate is returned when adding an order book for a
	// symbol which already has one.
	ErrOrderBookDuplicate = errors.New("order book duplicate")
	// ErrOrderBookNotFound is returned when no order book exists for the
	// given symbol id.
	ErrOrderBookNotFound = errors.New("order book not found")
	// ErrOrderDuplicate is returned when adding an order with an id which
	// is already present in the market.
	ErrOrderDuplicate = errors.New("order duplicate")
	// ErrOrderNotFound is returned when the given order id is unknown.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderIDInvalid is returned when an order id is not greater than
	// zero.
	ErrOrderIDInvalid = errors.New("order id invalid")
	// ErrOrderTypeInvalid is returned when an order carries an
	// unrecognized type.
	ErrOrderTypeInvalid = errors.New("order type invalid")
	// ErrOrderParameterInvalid is returned when a field combination does
	// not make sense for the declared order type, e.g. slippage on a limit
	// order.
	ErrOrderParameterInvalid = errors.New("order parameter invalid")
	// ErrOrderQuantityInvalid is returned when an order quantity is not
	// greater than zero or contradicts its leaves quantity.
	ErrOrderQuantityInvalid = errors.New("order quantity invalid")
)
