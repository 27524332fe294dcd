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
	"math"
	"strings"

	"github.com/marlinmarkets/marlin/core/types"
)

// OrderBook holds the full depth of one market: the bid and ask limit
// sides plus the four pending stop collections. Stop collections are keyed
// by stop price, with the "best" level being the trigger closest to the
// current market. Buy stop levels are ask-typed (lowest trigger first),
// sell stop levels bid-typed (highest trigger first).
//
// The book also tracks the last, matching and trailing price pairs used
// for stop order activation. Matching prices only live for the duration of
// one market command and are reset once it completes.
type OrderBook struct {
	symbol types.Symbol
	alloc  *allocator

	bids *levelTree
	asks *levelTree

	buyStop  *levelTree
	sellStop *levelTree

	trailingBuyStop  *levelTree
	trailingSellStop *levelTree

	lastBidPrice     int64
	lastAskPrice     int64
	matchingBidPrice int64
	matchingAskPrice int64
	trailingBidPrice int64
	trailingAskPrice int64
}

func newOrderBook(symbol types.Symbol, alloc *allocator) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		alloc:  alloc,

		bids: newLevelTree(types.LevelTypeBid),
		asks: newLevelTree(types.LevelTypeAsk),

		buyStop:  newLevelTree(types.LevelTypeAsk),
		sellStop: newLevelTree(types.LevelTypeBid),

		trailingBuyStop:  newLevelTree(types.LevelTypeAsk),
		trailingSellStop: newLevelTree(types.LevelTypeBid),

		lastAskPrice:     math.MaxInt64,
		matchingAskPrice: math.MaxInt64,
		trailingAskPrice: math.MaxInt64,
	}
}

// Symbol returns the symbol this book trades.
func (b *OrderBook) Symbol() types.Symbol { return b.symbol }

// BestBid returns the highest bid level, nil when there are no bids.
func (b *OrderBook) BestBid() *PriceLevel { return b.bids.best() }

// BestAsk returns the lowest ask level, nil when there are no asks.
func (b *OrderBook) BestAsk() *PriceLevel { return b.asks.best() }

// BestBuyStop returns the buy stop level with the lowest trigger price.
func (b *OrderBook) BestBuyStop() *PriceLevel { return b.buyStop.best() }

// BestSellStop returns the sell stop level with the highest trigger price.
func (b *OrderBook) BestSellStop() *PriceLevel { return b.sellStop.best() }

// BestTrailingBuyStop returns the trailing buy stop level closest to the market.
func (b *OrderBook) BestTrailingBuyStop() *PriceLevel { return b.trailingBuyStop.best() }

// BestTrailingSellStop returns the trailing sell stop level closest to the market.
func (b *OrderBook) BestTrailingSellStop() *PriceLevel { return b.trailingSellStop.best() }

func (b *OrderBook) GetBid(price int64) *PriceLevel { return b.bids.get(price) }
func (b *OrderBook) GetAsk(price int64) *PriceLevel { return b.asks.get(price) }

func (b *OrderBook) GetBuyStopLevel(price int64) *PriceLevel  { return b.buyStop.get(price) }
func (b *OrderBook) GetSellStopLevel(price int64) *PriceLevel { return b.sellStop.get(price) }

func (b *OrderBook) GetTrailingBuyStopLevel(price int64) *PriceLevel {
	return b.trailingBuyStop.get(price)
}

func (b *OrderBook) GetTrailingSellStopLevel(price int64) *PriceLevel {
	return b.trailingSellStop.get(price)
}

// BidLevels returns the number of bid price levels in the book.
func (b *OrderBook) BidLevels() int { return b.bids.len() }

// AskLevels returns the number of ask price levels in the book.
func (b *OrderBook) AskLevels() int { return b.asks.len() }

// IsEmpty reports whether the book has no resting orders at all.
func (b *OrderBook) IsEmpty() bool {
	return b.bids.len() == 0 && b.asks.len() == 0 &&
		b.buyStop.len() == 0 && b.sellStop.len() == 0 &&
		b.trailingBuyStop.len() == 0 && b.trailingSellStop.len() == 0
}

// addOrder places a limit order node into its side of the book, creating
// the price level when needed.
func (b *OrderBook) addOrder(n *OrderNode) types.LevelUpdate {
	tree, ltype := b.asks, types.LevelTypeAsk
	if n.IsBuy() {
		tree, ltype = b.bids, types.LevelTypeBid
	}

	updateType := types.UpdateTypeUpdate
	level := tree.get(n.Price)
	if level == nil {
		level = b.alloc.getLevel(ltype, n.Price)
		tree.add(level)
		updateType = types.UpdateTypeAdd
	}

	level.addOrder(n)

	return types.LevelUpdate{
		Type:   updateType,
		Update: level.snapshot(),
		Top:    level == tree.best(),
	}
}

// reduceOrder takes the already reduced order node and subtracts the given
// volumes from its level, dropping the level once empty. The order's own
// LeavesQuantity must be reduced before calling.
func (b *OrderBook) reduceOrder(n *OrderNode, quantity, hidden, visible int64) types.LevelUpdate {
	tree := b.asks
	if n.IsBuy() {
		tree = b.bids
	}

	level := n.level
	wasBest := level == tree.best()

	level.reduceOrder(n, quantity, hidden, visible)
	snap := level.snapshot()

	if level.TotalVolume == 0 {
		tree.remove(level)
		b.alloc.putLevel(level)
		return types.LevelUpdate{Type: types.UpdateTypeDelete, Update: snap, Top: wasBest}
	}
	return types.LevelUpdate{Type: types.UpdateTypeUpdate, Update: snap, Top: wasBest}
}

// deleteOrder removes a limit order node and its remaining volumes from
// the book.
func (b *OrderBook) deleteOrder(n *OrderNode) types.LevelUpdate {
	tree := b.asks
	if n.IsBuy() {
		tree = b.bids
	}

	level := n.level
	wasBest := level == tree.best()

	level.deleteOrder(n)
	snap := level.snapshot()

	if level.TotalVolume == 0 {
		tree.remove(level)
		b.alloc.putLevel(level)
		return types.LevelUpdate{Type: types.UpdateTypeDelete, Update: snap, Top: wasBest}
	}
	return types.LevelUpdate{Type: types.UpdateTypeUpdate, Update: snap, Top: wasBest}
}

func (b *OrderBook) stopTree(n *OrderNode) (*levelTree, types.LevelType) {
	if n.IsBuy() {
		return b.buyStop, types.LevelTypeAsk
	}
	return b.sellStop, types.LevelTypeBid
}

func (b *OrderBook) trailingStopTree(n *OrderNode) (*levelTree, types.LevelType) {
	if n.IsBuy() {
		return b.trailingBuyStop, types.LevelTypeAsk
	}
	return b.trailingSellStop, types.LevelTypeBid
}

func (b *OrderBook) addStopOrder(n *OrderNode) {
	tree, ltype := b.stopTree(n)
	b.addToStopTree(tree, ltype, n)
}

func (b *OrderBook) addTrailingStopOrder(n *OrderNode) {
	tree, ltype := b.trailingStopTree(n)
	b.addToStopTree(tree, ltype, n)
}

func (b *OrderBook) addToStopTree(tree *levelTree, ltype types.LevelType, n *OrderNode) {
	level := tree.get(n.StopPrice)
	if level == nil {
		level = b.alloc.getLevel(ltype, n.StopPrice)
		tree.add(level)
	}
	level.addOrder(n)
}

func (b *OrderBook) reduceStopOrder(n *OrderNode, quantity, hidden, visible int64) {
	tree, _ := b.stopTree(n)
	b.reduceInStopTree(tree, n, quantity, hidden, visible)
}

func (b *OrderBook) reduceTrailingStopOrder(n *OrderNode, quantity, hidden, visible int64) {
	tree, _ := b.trailingStopTree(n)
	b.reduceInStopTree(tree, n, quantity, hidden, visible)
}

func (b *OrderBook) reduceInStopTree(tree *levelTree, n *OrderNode, quantity, hidden, visible int64) {
	level := n.level
	level.reduceOrder(n, quantity, hidden, visible)
	if level.TotalVolume == 0 {
		tree.remove(level)
		b.alloc.putLevel(level)
	}
}

func (b *OrderBook) deleteStopOrder(n *OrderNode) {
	tree, _ := b.stopTree(n)
	b.deleteInStopTree(tree, n)
}

func (b *OrderBook) deleteTrailingStopOrder(n *OrderNode) {
	tree, _ := b.trailingStopTree(n)
	b.deleteInStopTree(tree, n)
}

func (b *OrderBook) deleteInStopTree(tree *levelTree, n *OrderNode) {
	level := n.level
	level.deleteOrder(n)
	if level.TotalVolume == 0 {
		tree.remove(level)
		b.alloc.putLevel(level)
	}
}

// nextLevel returns the limit level one step away from the market on the
// same side as the given level.
func (b *OrderBook) nextLevel(l *PriceLevel) *PriceLevel {
	if l.IsBid() {
		return b.bids.next(l)
	}
	return b.asks.next(l)
}

// nextTrailingStopLevel returns the trailing stop level one step further
// from the market on the same collection as the given level. Trailing buy
// stop levels are ask-typed.
func (b *OrderBook) nextTrailingStopLevel(l *PriceLevel) *PriceLevel {
	if l.IsAsk() {
		return b.trailingBuyStop.next(l)
	}
	return b.trailingSellStop.next(l)
}

// GetMarketPriceBid blends the best bid with the matching bid price. Stop
// order triggering uses this, so intra-command trades move the observed
// market even when the traded level is already gone.
func (b *OrderBook) GetMarketPriceBid() int64 {
	best := int64(0)
	if l := b.bids.best(); l != nil {
		best = l.Price
	}
	if b.matchingBidPrice > best {
		return b.matchingBidPrice
	}
	return best
}

// GetMarketPriceAsk blends the best ask with the matching ask price.
func (b *OrderBook) GetMarketPriceAsk() int64 {
	best := int64(math.MaxInt64)
	if l := b.asks.best(); l != nil {
		best = l.Price
	}
	if b.matchingAskPrice < best {
		return b.matchingAskPrice
	}
	return best
}

// GetMarketTrailingStopPriceBid is the bid price trailing sell stops trail
// behind: the lower of the last traded bid price and the current best bid.
func (b *OrderBook) GetMarketTrailingStopPriceBid() int64 {
	best := int64(0)
	if l := b.bids.best(); l != nil {
		best = l.Price
	}
	if b.lastBidPrice < best {
		return b.lastBidPrice
	}
	return best
}

// GetMarketTrailingStopPriceAsk is the ask price trailing buy stops trail
// behind: the higher of the last traded ask price and the current best ask.
func (b *OrderBook) GetMarketTrailingStopPriceAsk() int64 {
	best := int64(math.MaxInt64)
	if l := b.asks.best(); l != nil {
		best = l.Price
	}
	if b.lastAskPrice > best {
		return b.lastAskPrice
	}
	return best
}

func (b *OrderBook) updateLastPrice(o *types.Order, price int64) {
	if o.IsBuy() {
		b.lastBidPrice = price
	} else {
		b.lastAskPrice = price
	}
}

func (b *OrderBook) updateMatchingPrice(o *types.Order, price int64) {
	if o.IsBuy() {
		b.matchingBidPrice = price
	} else {
		b.matchingAskPrice = price
	}
}

func (b *OrderBook) resetMatchingPrice() {
	b.matchingBidPrice = 0
	b.matchingAskPrice = math.MaxInt64
}

// CalculateTrailingStopPrice computes the stop price a trailing stop order
// should trail at given the current market. A negative trailing distance
// or step is a percentage in hundredths of a percent and is converted to
// an absolute distance first. The returned price only differs from the
// order's current stop price when the market moved in the order's favour
// by at least the trailing step.
func (b *OrderBook) CalculateTrailingStopPrice(o *types.Order) int64 {
	var marketPrice int64
	if o.IsBuy() {
		marketPrice = b.GetMarketTrailingStopPriceAsk()
		// No priced ask side yet, nothing to trail behind.
		if marketPrice == math.MaxInt64 {
			return o.StopPrice
		}
	} else {
		marketPrice = b.GetMarketTrailingStopPriceBid()
	}

	distance := o.TrailingDistance
	step := o.TrailingStep
	if distance < 0 {
		distance = -distance * marketPrice / 10000
	}
	if step < 0 {
		step = -step * marketPrice / 10000
	}

	oldPrice := o.StopPrice

	if o.IsBuy() {
		newPrice := int64(math.MaxInt64)
		if marketPrice < math.MaxInt64-distance {
			newPrice = marketPrice + distance
		}
		if newPrice < oldPrice && oldPrice-newPrice >= step {
			return newPrice
		}
		return oldPrice
	}

	newPrice := int64(0)
	if marketPrice > distance {
		newPrice = marketPrice - distance
	}
	if newPrice > oldPrice && newPrice-oldPrice >= step {
		return newPrice
	}
	return oldPrice
}

func (b *OrderBook) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("OrderBook(Symbol=%s)\n", b.symbol.NameString()))
	sb.WriteString("asks:\n")
	asks := make([]*PriceLevel, 0, b.asks.len())
	b.asks.descend(func(l *PriceLevel) bool {
		asks = append(asks, l)
		return true
	})
	// Render asks top-down so the spread sits in the middle.
	for i := len(asks) - 1; i >= 0; i-- {
		sb.WriteString("  " + asks[i].print() + "\n")
	}
	sb.WriteString("bids:\n")
	b.bids.descend(func(l *PriceLevel) bool {
		sb.WriteString("  " + l.print() + "\n")
		return true
	})
	return sb.String()
}
