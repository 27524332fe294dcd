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
	"sync"

	"github.com/marlinmarkets/marlin/core/types"
)

// allocator recycles order nodes and price levels through sync.Pool so a
// busy book does not churn the garbage collector.
type allocator struct {
	orders sync.Pool
	levels sync.Pool
}

func newAllocator() *allocator {
	return &allocator{
		orders: sync.Pool{
			New: func() any { return &OrderNode{} },
		},
		levels: sync.Pool{
			New: func() any {
				return &PriceLevel{orders: make([]*OrderNode, 0, 8)}
			},
		},
	}
}

func (a *allocator) getOrder(order types.Order) *OrderNode {
	n := a.orders.Get().(*OrderNode)
	n.Order = order
	n.level = nil
	return n
}

func (a *allocator) putOrder(n *OrderNode) {
	n.Order = types.Order{}
	n.level = nil
	a.orders.Put(n)
}

func (a *allocator) getLevel(ltype types.LevelType, price int64) *PriceLevel {
	l := a.levels.Get().(*PriceLevel)
	l.Level = types.Level{Type: ltype, Price: price}
	l.orders = l.orders[:0]
	return l
}

func (a *allocator) putLevel(l *PriceLevel) {
	l.Level = types.Level{}
	l.orders = l.orders[:0]
	a.levels.Put(l)
}
