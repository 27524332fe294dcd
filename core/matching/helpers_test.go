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

	"github.com/stretchr/testify/require"

	"github.com/marlinmarkets/marlin/core/types"
	"github.com/marlinmarkets/marlin/logging"
)

const (
	tstSymbolID   uint32 = 1
	tstSymbolName        = "BTCUSD"
)

type fill struct {
	orderID  int64
	price    int64
	quantity int64
}

// eventRecorder keeps copies of every handler notification so tests can
// assert on the exact event stream.
type eventRecorder struct {
	NoopHandler

	added   []types.Order
	updated []types.Order
	deleted []types.Order
	fills   []fill

	levelAdds    int
	levelUpdates int
	levelDeletes int
	topChanges   int
}

func (r *eventRecorder) OnAddOrder(o *types.Order)    { r.added = append(r.added, *o) }
func (r *eventRecorder) OnUpdateOrder(o *types.Order) { r.updated = append(r.updated, *o) }
func (r *eventRecorder) OnDeleteOrder(o *types.Order) { r.deleted = append(r.deleted, *o) }

func (r *eventRecorder) OnExecuteOrder(o *types.Order, price, quantity int64) {
	r.fills = append(r.fills, fill{orderID: o.ID, price: price, quantity: quantity})
}

func (r *eventRecorder) OnAddLevel(_ *OrderBook, _ types.Level, top bool) {
	r.levelAdds++
	if top {
		r.topChanges++
	}
}

func (r *eventRecorder) OnUpdateLevel(_ *OrderBook, _ types.Level, top bool) {
	r.levelUpdates++
	if top {
		r.topChanges++
	}
}

func (r *eventRecorder) OnDeleteLevel(_ *OrderBook, _ types.Level, top bool) {
	r.levelDeletes++
	if top {
		r.topChanges++
	}
}

func (r *eventRecorder) reset() {
	r.added = nil
	r.updated = nil
	r.deleted = nil
	r.fills = nil
	r.levelAdds = 0
	r.levelUpdates = 0
	r.levelDeletes = 0
	r.topChanges = 0
}

type tstManager struct {
	*MarketManager

	rec *eventRecorder
}

// getTestManager returns a manager with one open book and automatic
// matching enabled.
func getTestManager(t *testing.T) *tstManager {
	t.Helper()
	m := getTestManagerNoMatching(t)
	m.EnableMatching()
	return m
}

// getTestManagerNoMatching returns a manager with one open book and
// automatic matching left off.
func getTestManagerNoMatching(t *testing.T) *tstManager {
	t.Helper()

	rec := &eventRecorder{}
	log := logging.NewTestLogger()
	m := NewMarketManager(log, NewDefaultConfig(), rec)

	symbol := types.NewSymbol(tstSymbolID, tstSymbolName)
	require.NoError(t, m.AddSymbol(symbol))
	require.NoError(t, m.AddOrderBook(symbol))

	return &tstManager{MarketManager: m, rec: rec}
}

func (m *tstManager) book(t *testing.T) *OrderBook {
	t.Helper()
	book := m.GetOrderBook(tstSymbolID)
	require.NotNil(t, book)
	return book
}
