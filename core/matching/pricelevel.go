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
	"fmt"
	"strings"

	"github.com/marlinmarkets/marlin/core/types"
)

// OrderNode is an order resting in a book, linked back to the price level
// holding it.
type OrderNode struct {
	types.Order

	level *PriceLevel
}

// PriceLevel holds the resting orders of one price, in strict arrival
// order, along with the aggregated level volumes. All volume bookkeeping
// funnels through the methods below so the invariant
// TotalVolume == HiddenVolume+VisibleVolume cannot drift.
type PriceLevel struct {
	types.Level

	orders []*OrderNode
}

// front returns the order with time priority at this level, nil when the
// level is empty.
func (l *PriceLevel) front() *OrderNode {
	if len(l.orders) == 0 {
		return nil
	}
	return l.orders[0]
}

// addOrder enqueues the order at the back of the level queue and accounts
// for its volumes.
func (l *PriceLevel) addOrder(n *OrderNode) {
	l.TotalVolume += n.LeavesQuantity
	l.HiddenVolume += n.HiddenQuantity()
	l.VisibleVolume += n.VisibleQuantity()

	l.orders = append(l.orders, n)
	l.Orders++
	n.level = l
}

// reduceOrder subtracts the executed or cancelled volumes from the level
// and unlinks the order when nothing of it is left. The order's own
// LeavesQuantity must already be reduced when this is called.
func (l *PriceLevel) reduceOrder(n *OrderNode, quantity, hidden, visible int64) {
	l.TotalVolume -= quantity
	l.HiddenVolume -= hidden
	l.VisibleVolume -= visible

	if n.LeavesQuantity == 0 {
		l.unlink(n)
	}
}

// deleteOrder unlinks the order and removes its remaining volumes from the
// level.
func (l *PriceLevel) deleteOrder(n *OrderNode) {
	l.TotalVolume -= n.LeavesQuantity
	l.HiddenVolume -= n.HiddenQuantity()
	l.VisibleVolume -= n.VisibleQuantity()

	l.unlink(n)
}

func (l *PriceLevel) unlink(n *OrderNode) {
	for i, o := range l.orders {
		if o == n {
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			l.Orders--
			n.level = nil
			return
		}
	}
}

// snapshot returns a copy of the aggregated level state, without the order
// queue, suitable for handler notifications.
func (l *PriceLevel) snapshot() types.Level {
	return l.Level
}

func (l *PriceLevel) print() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%v [", l.Level))
	for i, o := range l.orders {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%d:%d", o.ID, o.LeavesQuantity))
	}
	sb.WriteString("]")
	return sb.String()
}
