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
	"math"
	"sort"

	"github.com/marlinmarkets/marlin/core/types"
	"github.com/marlinmarkets/marlin/logging"
	"github.com/marlinmarkets/marlin/metrics"
)

// MarketManager drives a set of order books, one per symbol, through the
// order lifecycle commands and runs price/time priority matching across
// them. Every state change is reported synchronously through the
// MarketHandler before the command returns.
//
// The manager is not safe for concurrent use. Run one manager per matching
// thread and shard symbols across managers.
type MarketManager struct {
	Config
	log *logging.Logger

	handler MarketHandler
	alloc   *allocator

	symbols map[uint32]*types.Symbol
	books   map[uint32]*OrderBook
	orders  map[int64]*OrderNode

	// matching enables automatic matching after every command. When
	// disabled, commands only maintain the books and crossed orders rest
	// until Match is called or matching is re-enabled.
	matching bool
}

// NewMarketManager returns a manager with empty registries and automatic
// matching disabled. A nil handler is replaced with a NoopHandler.
func NewMarketManager(log *logging.Logger, config Config, handler MarketHandler) *MarketManager {
	log = log.Named(namedLogger)
	log.SetLevel(config.Level.Get())

	if handler == nil {
		handler = NoopHandler{}
	}

	return &MarketManager{
		Config:  config,
		log:     log,
		handler: handler,
		alloc:   newAllocator(),
		symbols: map[uint32]*types.Symbol{},
		books:   map[uint32]*OrderBook{},
		orders:  map[int64]*OrderNode{},
	}
}

// ReloadConf updates the manager configuration, adjusting the log level at
// runtime.
func (m *MarketManager) ReloadConf(cfg Config) {
	m.log.SetLevel(cfg.Level.Get())
	m.Config = cfg
}

// GetSymbol returns the symbol with the given identifier, nil when unknown.
func (m *MarketManager) GetSymbol(id uint32) *types.Symbol { return m.symbols[id] }

// GetOrderBook returns the order book trading the given symbol, nil when
// there is none.
func (m *MarketManager) GetOrderBook(id uint32) *OrderBook { return m.books[id] }

// GetOrder returns the resting order with the given identifier, nil when
// unknown.
func (m *MarketManager) GetOrder(id int64) *types.Order {
	if n := m.orders[id]; n != nil {
		return &n.Order
	}
	return nil
}

// Symbols returns the number of registered symbols.
func (m *MarketManager) Symbols() int { return len(m.symbols) }

// OrderBooks returns the number of live order books.
func (m *MarketManager) OrderBooks() int { return len(m.books) }

// Orders returns the number of orders resting across all books.
func (m *MarketManager) Orders() int { return len(m.orders) }

// IsMatchingEnabled reports whether automatic matching is on.
func (m *MarketManager) IsMatchingEnabled() bool { return m.matching }

// EnableMatching turns automatic matching on and immediately matches all
// books to clear any crossed prices accumulated while it was off.
func (m *MarketManager) EnableMatching() {
	m.matching = true
	m.Match()
}

// DisableMatching turns automatic matching off.
func (m *MarketManager) DisableMatching() { m.matching = false }

// AddSymbol registers a new trading symbol.
func (m *MarketManager) AddSymbol(symbol types.Symbol) error {
	if _, ok := m.symbols[symbol.ID]; ok {
		return types.ErrSymbolDuplicate
	}

	s := symbol
	m.symbols[symbol.ID] = &s
	m.handler.OnAddSymbol(s)

	if m.log.GetLevel() == logging.DebugLevel {
		m.log.Debug("symbol added",
			logging.Uint32("symbol-id", s.ID),
			logging.String("symbol", s.NameString()))
	}
	return nil
}

// DeleteSymbol removes a trading symbol. Any order book trading it must be
// deleted separately.
func (m *MarketManager) DeleteSymbol(id uint32) error {
	s, ok := m.symbols[id]
	if !ok {
		return types.ErrSymbolNotFound
	}

	m.handler.OnDeleteSymbol(*s)
	delete(m.symbols, id)
	return nil
}

// AddOrderBook opens an order book for an already registered symbol.
func (m *MarketManager) AddOrderBook(symbol types.Symbol) error {
	if _, ok := m.symbols[symbol.ID]; !ok {
		return types.ErrSymbolNotFound
	}
	if _, ok := m.books[symbol.ID]; ok {
		return types.ErrOrderBookDuplicate
	}

	book := newOrderBook(symbol, m.alloc)
	m.books[symbol.ID] = book
	m.handler.OnAddOrderBook(book)
	return nil
}

// DeleteOrderBook closes an order book, deleting all orders resting in it
// first, in ascending order identifier order.
func (m *MarketManager) DeleteOrderBook(id uint32) error {
	book, ok := m.books[id]
	if !ok {
		return types.ErrOrderBookNotFound
	}

	ids := make([]int64, 0, len(m.orders))
	for oid, n := range m.orders {
		if n.SymbolID == id {
			ids = append(ids, oid)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, oid := range ids {
		n := m.orders[oid]
		m.handler.OnDeleteOrder(&n.Order)
		// Pull the node out of its level before it is recycled, no level
		// events fire during book teardown.
		switch n.Type {
		case types.OrderTypeLimit:
			book.deleteOrder(n)
		case types.OrderTypeStop, types.OrderTypeStopLimit:
			book.deleteStopOrder(n)
		case types.OrderTypeTrailingStop, types.OrderTypeTrailingStopLimit:
			book.deleteTrailingStopOrder(n)
		}
		m.untrackOrder(book, n)
	}

	m.handler.OnDeleteOrderBook(book)
	delete(m.books, id)
	return nil
}

// AddOrder submits a new order of any supported type. The order is
// validated up front, matched against the opposite side when automatic
// matching is on, and the unmatched part rests in the book if its time in
// force allows.
func (m *MarketManager) AddOrder(order types.Order) error {
	return m.addOrder(order, false)
}

func (m *MarketManager) addOrder(order types.Order, internal bool) error {
	if err := order.Validate(); err != nil {
		return err
	}

	switch order.Type {
	case types.OrderTypeMarket:
		return m.addMarketOrder(order, internal)
	case types.OrderTypeLimit:
		return m.addLimitOrder(order, internal)
	case types.OrderTypeStop, types.OrderTypeTrailingStop:
		return m.addStopOrder(order, internal)
	case types.OrderTypeStopLimit, types.OrderTypeTrailingStopLimit:
		return m.addStopLimitOrder(order, internal)
	default:
		return types.ErrOrderTypeInvalid
	}
}

func (m *MarketManager) addMarketOrder(order types.Order, internal bool) error {
	book := m.books[order.SymbolID]
	if book == nil {
		return types.ErrOrderBookNotFound
	}

	newOrder := order
	m.handler.OnAddOrder(&newOrder)
	metrics.OrderCounterInc(book.symbol.NameString())

	if m.matching && !internal {
		m.matchMarket(book, &newOrder)
	}

	// A market order never rests: whatever is left after matching dies.
	m.handler.OnDeleteOrder(&newOrder)

	m.postCommand(book, internal)
	return nil
}

func (m *MarketManager) addLimitOrder(order types.Order, internal bool) error {
	book := m.books[order.SymbolID]
	if book == nil {
		return types.ErrOrderBookNotFound
	}
	if _, ok := m.orders[order.ID]; ok {
		return types.ErrOrderDuplicate
	}

	newOrder := order
	m.handler.OnAddOrder(&newOrder)
	metrics.OrderCounterInc(book.symbol.NameString())

	if m.matching && !internal {
		m.matchLimit(book, &newOrder)
	}

	if newOrder.LeavesQuantity > 0 && !newOrder.IsIOC() && !newOrder.IsFOK() {
		n := m.alloc.getOrder(newOrder)
		m.trackOrder(book, n)
		m.updateLevel(book, book.addOrder(n))
	} else {
		m.handler.OnDeleteOrder(&newOrder)
	}

	m.postCommand(book, internal)
	return nil
}

func (m *MarketManager) addStopOrder(order types.Order, internal bool) error {
	book := m.books[order.SymbolID]
	if book == nil {
		return types.ErrOrderBookNotFound
	}
	if _, ok := m.orders[order.ID]; ok {
		return types.ErrOrderDuplicate
	}

	newOrder := order
	if newOrder.IsTrailingStop() {
		newOrder.StopPrice = book.CalculateTrailingStopPrice(&newOrder)
	}

	m.handler.OnAddOrder(&newOrder)
	metrics.OrderCounterInc(book.symbol.NameString())

	if m.matching && !internal {
		stopPrice := book.GetMarketPriceBid()
		arbitrage := newOrder.StopPrice >= stopPrice
		if newOrder.IsBuy() {
			stopPrice = book.GetMarketPriceAsk()
			arbitrage = newOrder.StopPrice <= stopPrice
		}

		if arbitrage {
			// The market already crossed the stop price, convert to a
			// market order and execute immediately.
			newOrder.Type = types.OrderTypeMarket
			newOrder.Price = 0
			newOrder.StopPrice = 0
			if !newOrder.IsFOK() {
				newOrder.TimeInForce = types.OrderTimeInForceIOC
			}

			m.handler.OnUpdateOrder(&newOrder)
			m.matchMarket(book, &newOrder)
			m.handler.OnDeleteOrder(&newOrder)

			m.postCommand(book, internal)
			return nil
		}
	}

	if newOrder.LeavesQuantity > 0 {
		n := m.alloc.getOrder(newOrder)
		m.trackOrder(book, n)
		if n.IsTrailingStop() {
			book.addTrailingStopOrder(n)
		} else {
			book.addStopOrder(n)
		}
	} else {
		m.handler.OnDeleteOrder(&newOrder)
	}

	m.postCommand(book, internal)
	return nil
}

func (m *MarketManager) addStopLimitOrder(order types.Order, internal bool) error {
	book := m.books[order.SymbolID]
	if book == nil {
		return types.ErrOrderBookNotFound
	}
	if _, ok := m.orders[order.ID]; ok {
		return types.ErrOrderDuplicate
	}

	newOrder := order
	if newOrder.IsTrailingStopLimit() {
		// Keep the limit price at the same distance from the recalculated
		// stop price.
		diff := newOrder.Price - newOrder.StopPrice
		newOrder.StopPrice = book.CalculateTrailingStopPrice(&newOrder)
		newOrder.Price = newOrder.StopPrice + diff
	}

	m.handler.OnAddOrder(&newOrder)
	metrics.OrderCounterInc(book.symbol.NameString())

	if m.matching && !internal {
		stopPrice := book.GetMarketPriceBid()
		arbitrage := newOrder.StopPrice >= stopPrice
		if newOrder.IsBuy() {
			stopPrice = book.GetMarketPriceAsk()
			arbitrage = newOrder.StopPrice <= stopPrice
		}

		if arbitrage {
			// The market already crossed the stop price, convert to a
			// limit order and match it at its limit price.
			newOrder.Type = types.OrderTypeLimit
			newOrder.StopPrice = 0

			m.handler.OnUpdateOrder(&newOrder)
			m.matchLimit(book, &newOrder)

			if newOrder.LeavesQuantity > 0 && !newOrder.IsIOC() && !newOrder.IsFOK() {
				n := m.alloc.getOrder(newOrder)
				m.trackOrder(book, n)
				m.updateLevel(book, book.addOrder(n))
			} else {
				m.handler.OnDeleteOrder(&newOrder)
			}

			m.postCommand(book, internal)
			return nil
		}
	}

	if newOrder.LeavesQuantity > 0 {
		n := m.alloc.getOrder(newOrder)
		m.trackOrder(book, n)
		if n.IsTrailingStopLimit() {
			book.addTrailingStopOrder(n)
		} else {
			book.addStopOrder(n)
		}
	} else {
		m.handler.OnDeleteOrder(&newOrder)
	}

	m.postCommand(book, internal)
	return nil
}

// ReduceOrder cancels the given quantity of a resting order, deleting the
// order once nothing is left of it.
func (m *MarketManager) ReduceOrder(id, quantity int64) error {
	return m.reduceOrder(id, quantity, false)
}

func (m *MarketManager) reduceOrder(id, quantity int64, internal bool) error {
	if id <= 0 {
		return types.ErrOrderIDInvalid
	}
	if quantity <= 0 {
		return types.ErrOrderQuantityInvalid
	}

	n := m.orders[id]
	if n == nil {
		return types.ErrOrderNotFound
	}
	book := m.books[n.SymbolID]
	if book == nil {
		return types.ErrOrderBookNotFound
	}

	if quantity > n.LeavesQuantity {
		quantity = n.LeavesQuantity
	}

	hidden := n.HiddenQuantity()
	visible := n.VisibleQuantity()

	n.LeavesQuantity -= quantity

	hidden -= n.HiddenQuantity()
	visible -= n.VisibleQuantity()

	if n.LeavesQuantity > 0 {
		m.handler.OnUpdateOrder(&n.Order)
		switch n.Type {
		case types.OrderTypeLimit:
			m.updateLevel(book, book.reduceOrder(n, quantity, hidden, visible))
		case types.OrderTypeStop, types.OrderTypeStopLimit:
			book.reduceStopOrder(n, quantity, hidden, visible)
		case types.OrderTypeTrailingStop, types.OrderTypeTrailingStopLimit:
			book.reduceTrailingStopOrder(n, quantity, hidden, visible)
		}
	} else {
		m.handler.OnDeleteOrder(&n.Order)
		switch n.Type {
		case types.OrderTypeLimit:
			m.updateLevel(book, book.reduceOrder(n, quantity, hidden, visible))
		case types.OrderTypeStop, types.OrderTypeStopLimit:
			book.reduceStopOrder(n, quantity, hidden, visible)
		case types.OrderTypeTrailingStop, types.OrderTypeTrailingStopLimit:
			book.reduceTrailingStopOrder(n, quantity, hidden, visible)
		}
		m.untrackOrder(book, n)
	}

	m.postCommand(book, internal)
	return nil
}

// ModifyOrder changes the price and quantity of a resting order. The order
// loses its queue position and, when automatic matching is on, a limit
// order is re-matched at its new price. The leaves quantity is reset to
// the new quantity, so an already partly filled order risks trading more
// than intended; use MitigateOrder to account for previous fills.
func (m *MarketManager) ModifyOrder(id, newPrice, newQuantity int64) error {
	return m.modifyOrder(id, newPrice, newQuantity, false, false)
}

// MitigateOrder is ModifyOrder with in-flight mitigation: the executed
// quantity so far counts against the new quantity, and the order dies when
// it already traded more than the new quantity.
func (m *MarketManager) MitigateOrder(id, newPrice, newQuantity int64) error {
	return m.modifyOrder(id, newPrice, newQuantity, true, false)
}

func (m *MarketManager) modifyOrder(id, newPrice, newQuantity int64, mitigate, internal bool) error {
	if id <= 0 {
		return types.ErrOrderIDInvalid
	}
	if newQuantity <= 0 {
		return types.ErrOrderQuantityInvalid
	}

	n := m.orders[id]
	if n == nil {
		return types.ErrOrderNotFound
	}
	book := m.books[n.SymbolID]
	if book == nil {
		return types.ErrOrderBookNotFound
	}

	// Pull the order out of the book before rewriting it.
	switch n.Type {
	case types.OrderTypeLimit:
		m.updateLevel(book, book.deleteOrder(n))
	case types.OrderTypeStop, types.OrderTypeStopLimit:
		book.deleteStopOrder(n)
	case types.OrderTypeTrailingStop, types.OrderTypeTrailingStopLimit:
		book.deleteTrailingStopOrder(n)
	}

	n.Price = newPrice
	n.Quantity = newQuantity
	n.LeavesQuantity = newQuantity
	if mitigate {
		n.LeavesQuantity = 0
		if newQuantity > n.ExecutedQuantity {
			n.LeavesQuantity = newQuantity - n.ExecutedQuantity
		}
	}

	if n.LeavesQuantity > 0 {
		m.handler.OnUpdateOrder(&n.Order)

		if m.matching && !internal && n.IsLimit() {
			m.matchLimit(book, &n.Order)
		}

		if n.LeavesQuantity > 0 {
			switch n.Type {
			case types.OrderTypeLimit:
				m.updateLevel(book, book.addOrder(n))
			case types.OrderTypeStop, types.OrderTypeStopLimit:
				book.addStopOrder(n)
			case types.OrderTypeTrailingStop, types.OrderTypeTrailingStopLimit:
				book.addTrailingStopOrder(n)
			}
		}
	}

	if n.LeavesQuantity == 0 {
		m.handler.OnDeleteOrder(&n.Order)
		m.untrackOrder(book, n)
	}

	m.postCommand(book, internal)
	return nil
}

// ReplaceOrder atomically cancels a resting limit order and submits a new
// limit order with a different identifier, price and quantity in its
// place.
func (m *MarketManager) ReplaceOrder(id, newID, newPrice, newQuantity int64) error {
	return m.replaceOrder(id, newID, newPrice, newQuantity, false)
}

func (m *MarketManager) replaceOrder(id, newID, newPrice, newQuantity int64, internal bool) error {
	if id <= 0 || newID <= 0 {
		return types.ErrOrderIDInvalid
	}
	if newQuantity <= 0 {
		return types.ErrOrderQuantityInvalid
	}

	n := m.orders[id]
	if n == nil {
		return types.ErrOrderNotFound
	}
	if !n.IsLimit() {
		return types.ErrOrderTypeInvalid
	}
	if newID != id {
		if _, ok := m.orders[newID]; ok {
			return types.ErrOrderDuplicate
		}
	}
	book := m.books[n.SymbolID]
	if book == nil {
		return types.ErrOrderBookNotFound
	}

	// Cancel the old order.
	m.updateLevel(book, book.deleteOrder(n))
	m.handler.OnDeleteOrder(&n.Order)
	delete(m.orders, id)
	metrics.OrderGaugeAdd(-1, book.symbol.NameString())

	// Reuse the node for the replacement.
	n.ID = newID
	n.Price = newPrice
	n.Quantity = newQuantity
	n.ExecutedQuantity = 0
	n.LeavesQuantity = newQuantity

	m.handler.OnAddOrder(&n.Order)
	metrics.OrderCounterInc(book.symbol.NameString())

	if m.matching && !internal {
		m.matchLimit(book, &n.Order)
	}

	if n.LeavesQuantity > 0 {
		m.trackOrder(book, n)
		m.updateLevel(book, book.addOrder(n))
	} else {
		m.handler.OnDeleteOrder(&n.Order)
		m.alloc.putOrder(n)
	}

	m.postCommand(book, internal)
	return nil
}

// DeleteOrder cancels a resting order.
func (m *MarketManager) DeleteOrder(id int64) error {
	return m.deleteOrder(id, false)
}

func (m *MarketManager) deleteOrder(id int64, internal bool) error {
	if id <= 0 {
		return types.ErrOrderIDInvalid
	}

	n := m.orders[id]
	if n == nil {
		return types.ErrOrderNotFound
	}
	book := m.books[n.SymbolID]
	if book == nil {
		return types.ErrOrderBookNotFound
	}

	switch n.Type {
	case types.OrderTypeLimit:
		m.updateLevel(book, book.deleteOrder(n))
	case types.OrderTypeStop, types.OrderTypeStopLimit:
		book.deleteStopOrder(n)
	case types.OrderTypeTrailingStop, types.OrderTypeTrailingStopLimit:
		book.deleteTrailingStopOrder(n)
	}

	m.handler.OnDeleteOrder(&n.Order)

	if m.LogRemovedOrdersDebug && m.log.GetLevel() == logging.DebugLevel {
		m.log.Debug("order removed", logging.Int64("order-id", n.ID))
	}

	m.untrackOrder(book, n)

	m.postCommand(book, internal)
	return nil
}

// ExecuteOrder executes the given quantity of a resting order at the
// order's own price. This is the manual execution command used when
// matching is driven externally.
func (m *MarketManager) ExecuteOrder(id, quantity int64) error {
	if id <= 0 {
		return types.ErrOrderIDInvalid
	}
	if quantity <= 0 {
		return types.ErrOrderQuantityInvalid
	}
	n := m.orders[id]
	if n == nil {
		return types.ErrOrderNotFound
	}
	return m.manualExecute(n, n.Price, quantity)
}

// ExecuteOrderAtPrice executes the given quantity of a resting order at an
// explicit price.
func (m *MarketManager) ExecuteOrderAtPrice(id, price, quantity int64) error {
	if id <= 0 {
		return types.ErrOrderIDInvalid
	}
	if quantity <= 0 {
		return types.ErrOrderQuantityInvalid
	}
	n := m.orders[id]
	if n == nil {
		return types.ErrOrderNotFound
	}
	return m.manualExecute(n, price, quantity)
}

func (m *MarketManager) manualExecute(n *OrderNode, price, quantity int64) error {
	book := m.books[n.SymbolID]
	if book == nil {
		return types.ErrOrderBookNotFound
	}

	if quantity > n.LeavesQuantity {
		quantity = n.LeavesQuantity
	}

	m.execute(book, &n.Order, price, quantity)

	hidden := n.HiddenQuantity()
	visible := n.VisibleQuantity()

	n.ExecutedQuantity += quantity
	n.LeavesQuantity -= quantity

	hidden -= n.HiddenQuantity()
	visible -= n.VisibleQuantity()

	switch n.Type {
	case types.OrderTypeLimit:
		m.updateLevel(book, book.reduceOrder(n, quantity, hidden, visible))
	case types.OrderTypeStop, types.OrderTypeStopLimit:
		book.reduceStopOrder(n, quantity, hidden, visible)
	case types.OrderTypeTrailingStop, types.OrderTypeTrailingStopLimit:
		book.reduceTrailingStopOrder(n, quantity, hidden, visible)
	}

	if n.LeavesQuantity > 0 {
		m.handler.OnUpdateOrder(&n.Order)
	} else {
		m.handler.OnDeleteOrder(&n.Order)
		m.untrackOrder(book, n)
	}

	m.postCommand(book, false)
	return nil
}

// Match matches crossed orders in all books. Useful when automatic
// matching is disabled.
func (m *MarketManager) Match() {
	for _, book := range m.books {
		m.match(book)
		book.resetMatchingPrice()
	}
}

// postCommand runs the automatic matching that closes every public
// command. Internal calls made while matching is already in progress skip
// it, the outermost command picks the work up.
func (m *MarketManager) postCommand(book *OrderBook, internal bool) {
	if internal {
		return
	}
	if m.matching {
		m.match(book)
	}
	book.resetMatchingPrice()
}

func (m *MarketManager) trackOrder(book *OrderBook, n *OrderNode) {
	m.orders[n.ID] = n
	metrics.OrderGaugeAdd(1, book.symbol.NameString())
}

func (m *MarketManager) untrackOrder(book *OrderBook, n *OrderNode) {
	delete(m.orders, n.ID)
	metrics.OrderGaugeAdd(-1, book.symbol.NameString())
	m.alloc.putOrder(n)
}

// execute reports one fill and moves the book's last and matching prices.
func (m *MarketManager) execute(book *OrderBook, o *types.Order, price, quantity int64) {
	m.handler.OnExecuteOrder(o, price, quantity)
	book.updateLastPrice(o, price)
	book.updateMatchingPrice(o, price)
	metrics.OrderExecutionInc(book.symbol.NameString())
}

func (m *MarketManager) updateLevel(book *OrderBook, update types.LevelUpdate) {
	switch update.Type {
	case types.UpdateTypeAdd:
		m.handler.OnAddLevel(book, update.Update, update.Top)
	case types.UpdateTypeUpdate:
		m.handler.OnUpdateLevel(book, update.Update, update.Top)
	case types.UpdateTypeDelete:
		m.handler.OnDeleteLevel(book, update.Update, update.Top)
	}

	m.handler.OnUpdateOrderBook(book, update.Top)

	if m.LogPriceLevelsDebug && m.log.GetLevel() == logging.DebugLevel {
		m.log.Debug("price level updated",
			logging.String("symbol", book.symbol.NameString()),
			logging.String("level", update.Update.String()),
			logging.Bool("top", update.Top))
	}
}

// match clears the crossed part of a book, then activates any stop orders
// the resulting trades triggered, and repeats until the book settles.
func (m *MarketManager) match(book *OrderBook) {
	for {
		for {
			bid := book.bids.best()
			ask := book.asks.best()
			if bid == nil || ask == nil || bid.Price < ask.Price {
				break
			}

			bidOrder := bid.front()
			askOrder := ask.front()

			// All-Or-None orders only trade through a full matching chain.
			if bidOrder.IsAON() || askOrder.IsAON() {
				chain := m.calculateCrossChain(book, bid, ask)
				if chain == 0 {
					return
				}

				// The first All-Or-None order dictates the execution price.
				price := askOrder.Price
				if bidOrder.IsAON() {
					price = bidOrder.Price
				}

				m.executeMatchingChain(book, book.bids, price, chain)
				m.executeMatchingChain(book, book.asks, price, chain)
				continue
			}

			// The smaller order executes in full, at its own price.
			executing, reducing := bidOrder, askOrder
			if executing.LeavesQuantity > reducing.LeavesQuantity {
				executing, reducing = reducing, executing
			}

			quantity := executing.LeavesQuantity
			price := executing.Price

			m.execute(book, &executing.Order, price, quantity)
			executing.ExecutedQuantity += quantity
			_ = m.reduceOrder(executing.ID, quantity, true)

			m.execute(book, &reducing.Order, price, quantity)
			reducing.ExecutedQuantity += quantity
			_ = m.reduceOrder(reducing.ID, quantity, true)
		}

		if !m.activateStopOrders(book) {
			break
		}
	}
}

func (m *MarketManager) matchLimit(book *OrderBook, order *types.Order) {
	m.matchOrder(book, order)
}

// matchMarket caps the market order price at the best opposite price plus
// the allowed slippage, then matches it like a limit order.
func (m *MarketManager) matchMarket(book *OrderBook, order *types.Order) {
	if order.IsBuy() {
		level := book.asks.best()
		if level == nil {
			return
		}
		order.Price = level.Price
		if order.Price > math.MaxInt64-order.Slippage {
			order.Price = math.MaxInt64
		} else {
			order.Price += order.Slippage
		}
	} else {
		level := book.bids.best()
		if level == nil {
			return
		}
		order.Price = level.Price
		if order.Price < order.Slippage {
			order.Price = 0
		} else {
			order.Price -= order.Slippage
		}
	}

	m.matchOrder(book, order)
}

// matchOrder walks the opposite side of the book best-first, executing the
// incoming order against resting orders in price/time priority until the
// order is done or prices no longer cross.
func (m *MarketManager) matchOrder(book *OrderBook, order *types.Order) {
	for {
		level := book.bids.best()
		if order.IsBuy() {
			level = book.asks.best()
		}
		if level == nil {
			return
		}

		arbitrage := order.Price <= level.Price
		if order.IsBuy() {
			arbitrage = order.Price >= level.Price
		}
		if !arbitrage {
			return
		}

		// Fill-Or-Kill and All-Or-None orders execute through a matching
		// chain covering the full quantity, or not at all.
		if order.IsFOK() || order.IsAON() {
			chain := m.calculateMatchingChain(book, level, order.Price, order.LeavesQuantity)
			if chain == 0 {
				return
			}

			opposite := book.bids
			if order.IsBuy() {
				opposite = book.asks
			}
			m.executeMatchingChain(book, opposite, order.Price, chain)

			m.execute(book, order, order.Price, order.LeavesQuantity)
			order.ExecutedQuantity += order.LeavesQuantity
			order.LeavesQuantity = 0
			return
		}

		for {
			executing := level.front()
			if executing == nil {
				break
			}

			// A resting All-Or-None order bigger than the incoming one
			// blocks matching at this price.
			if executing.IsAON() && executing.LeavesQuantity > order.LeavesQuantity {
				return
			}

			quantity := executing.LeavesQuantity
			if order.LeavesQuantity < quantity {
				quantity = order.LeavesQuantity
			}
			price := executing.Price

			m.execute(book, &executing.Order, price, quantity)
			executing.ExecutedQuantity += quantity
			_ = m.reduceOrder(executing.ID, quantity, true)

			m.execute(book, order, price, quantity)
			order.ExecutedQuantity += quantity
			order.LeavesQuantity -= quantity
			if order.LeavesQuantity == 0 {
				return
			}
		}
	}
}

// calculateMatchingChain checks whether the full volume can execute
// against the opposite side starting from the given level without price
// arbitrage, and returns the executable volume, or 0 when a complete fill
// is impossible.
func (m *MarketManager) calculateMatchingChain(book *OrderBook, level *PriceLevel, price, volume int64) int64 {
	available := int64(0)
	index := 0

	for level != nil {
		arbitrage := price >= level.Price
		if level.IsBid() {
			arbitrage = price <= level.Price
		}
		if !arbitrage {
			return 0
		}

		for index < len(level.orders) {
			n := level.orders[index]

			need := volume - available
			quantity := n.LeavesQuantity
			if !n.IsAON() && quantity > need {
				quantity = need
			}
			available += quantity

			if volume == available {
				return volume
			}
			if volume < available {
				return 0
			}

			index++
		}

		level = book.nextLevel(level)
		index = 0
	}

	return 0
}

// chainCursor walks one side of the book order by order, best level first.
type chainCursor struct {
	level *PriceLevel
	index int
}

func (c *chainCursor) order() *OrderNode {
	if c.level == nil || c.index >= len(c.level.orders) {
		return nil
	}
	return c.level.orders[c.index]
}

func (c *chainCursor) nextLevel(book *OrderBook) {
	c.level = book.nextLevel(c.level)
	c.index = 0
}

// calculateCrossChain looks for a volume which fills a chain of crossed
// bid and ask orders exactly, honouring All-Or-None orders on both sides.
// It keeps a "longest" cursor at the chain whose required volume is
// currently larger and grows the "shortest" one towards it, swapping the
// two whenever the shorter chain overtakes.
func (m *MarketManager) calculateCrossChain(book *OrderBook, bidLevel, askLevel *PriceLevel) int64 {
	longest := chainCursor{level: bidLevel}
	shortest := chainCursor{level: askLevel}

	lo := longest.order()
	so := shortest.order()

	required := lo.LeavesQuantity
	if so.IsAON() && (!lo.IsAON() || so.LeavesQuantity > lo.LeavesQuantity) {
		longest, shortest = shortest, longest
		required = so.LeavesQuantity
	}

	available := int64(0)
	for longest.level != nil && shortest.level != nil {
		for {
			lo, so = longest.order(), shortest.order()
			if lo == nil || so == nil {
				break
			}

			need := required - available
			quantity := so.LeavesQuantity
			if !so.IsAON() && quantity > need {
				quantity = need
			}
			available += quantity

			if required == available {
				return required
			}

			if required < available {
				// The chains change roles: the new shortest resumes right
				// after the order the old longest was parked on.
				next := longest
				next.index++
				longest, shortest = shortest, next
				required, available = available, required
				continue
			}

			shortest.index++
		}

		if longest.order() == nil {
			longest.nextLevel(book)
		}
		if shortest.order() == nil {
			shortest.nextLevel(book)
		}
	}

	return 0
}

// executeMatchingChain executes the given volume against one side of the
// book at a single price, consuming orders best level first in time
// priority. The volume must come from a chain calculation so All-Or-None
// orders are always consumed whole.
func (m *MarketManager) executeMatchingChain(book *OrderBook, tree *levelTree, price, volume int64) {
	for volume > 0 {
		level := tree.best()
		if level == nil {
			return
		}

		for volume > 0 {
			n := level.front()
			if n == nil {
				break
			}

			quantity := n.LeavesQuantity
			if !n.IsAON() && quantity > volume {
				quantity = volume
			}

			m.execute(book, &n.Order, price, quantity)
			n.ExecutedQuantity += quantity
			_ = m.reduceOrder(n.ID, quantity, true)

			volume -= quantity
		}
	}
}

// activateStopOrders runs the activation fix point: trades move the
// market, the market triggers stops, triggered stops trade and move the
// market again. Returns true when anything was activated.
func (m *MarketManager) activateStopOrders(book *OrderBook) bool {
	result := false

	for again := true; again; {
		again = false

		askPrice := book.GetMarketPriceAsk()
		if m.activateStopOrdersLevel(book, book.buyStop.best(), askPrice) ||
			m.activateStopOrdersLevel(book, book.trailingBuyStop.best(), askPrice) {
			result = true
			again = true
		}

		m.recalculateTrailingStopPrice(book, types.LevelTypeAsk)

		bidPrice := book.GetMarketPriceBid()
		if m.activateStopOrdersLevel(book, book.sellStop.best(), bidPrice) ||
			m.activateStopOrdersLevel(book, book.trailingSellStop.best(), bidPrice) {
			result = true
			again = true
		}

		m.recalculateTrailingStopPrice(book, types.LevelTypeBid)
	}

	return result
}

func (m *MarketManager) activateStopOrdersLevel(book *OrderBook, level *PriceLevel, stopPrice int64) bool {
	if level == nil {
		return false
	}

	// Buy stop levels are ask-typed: they trigger once the market price
	// reaches the stop price from below. Sell stop levels mirror that.
	arbitrage := stopPrice >= level.Price
	if level.IsBid() {
		arbitrage = stopPrice <= level.Price
	}
	if !arbitrage {
		return false
	}

	result := false
	orders := append([]*OrderNode(nil), level.orders...)
	for _, n := range orders {
		switch n.Type {
		case types.OrderTypeStop, types.OrderTypeTrailingStop:
			result = m.activateStopOrder(book, n) || result
		case types.OrderTypeStopLimit, types.OrderTypeTrailingStopLimit:
			result = m.activateStopLimitOrder(book, n) || result
		}
	}
	return result
}

func (m *MarketManager) activateStopOrder(book *OrderBook, n *OrderNode) bool {
	if n.IsTrailingStop() {
		book.deleteTrailingStopOrder(n)
	} else {
		book.deleteStopOrder(n)
	}

	// An activated stop order becomes an immediate market order.
	n.Type = types.OrderTypeMarket
	n.Price = 0
	n.StopPrice = 0
	if !n.IsFOK() {
		n.TimeInForce = types.OrderTimeInForceIOC
	}

	m.handler.OnUpdateOrder(&n.Order)
	m.matchMarket(book, &n.Order)
	m.handler.OnDeleteOrder(&n.Order)
	m.untrackOrder(book, n)

	return true
}

func (m *MarketManager) activateStopLimitOrder(book *OrderBook, n *OrderNode) bool {
	if n.IsTrailingStopLimit() {
		book.deleteTrailingStopOrder(n)
	} else {
		book.deleteStopOrder(n)
	}

	// An activated stop-limit order becomes a plain limit order.
	n.Type = types.OrderTypeLimit
	n.StopPrice = 0

	m.handler.OnUpdateOrder(&n.Order)
	m.matchLimit(book, &n.Order)

	if n.LeavesQuantity > 0 && !n.IsIOC() && !n.IsFOK() {
		m.updateLevel(book, book.addOrder(n))
	} else {
		m.handler.OnDeleteOrder(&n.Order)
		m.untrackOrder(book, n)
	}

	return true
}

// recalculateTrailingStopPrice slides trailing stop orders after the
// market moved in their favour: behind a falling ask for trailing buy
// stops, behind a rising bid for trailing sell stops.
func (m *MarketManager) recalculateTrailingStopPrice(book *OrderBook, ltype types.LevelType) {
	// Skip the walk when the market moved the wrong way.
	if ltype == types.LevelTypeAsk {
		old := book.trailingAskPrice
		book.trailingAskPrice = book.GetMarketTrailingStopPriceAsk()
		if book.trailingAskPrice >= old {
			return
		}
	} else {
		old := book.trailingBidPrice
		book.trailingBidPrice = book.GetMarketTrailingStopPriceBid()
		if book.trailingBidPrice <= old {
			return
		}
	}

	best := func() *PriceLevel {
		if ltype == types.LevelTypeAsk {
			return book.trailingBuyStop.best()
		}
		return book.trailingSellStop.best()
	}

	var previous *PriceLevel
	current := best()
	for current != nil {
		recalculated := false

		orders := append([]*OrderNode(nil), current.orders...)
		for _, n := range orders {
			oldStop := n.StopPrice
			newStop := book.CalculateTrailingStopPrice(&n.Order)
			if newStop == oldStop {
				continue
			}

			book.deleteTrailingStopOrder(n)

			switch n.Type {
			case types.OrderTypeTrailingStop:
				n.StopPrice = newStop
			case types.OrderTypeTrailingStopLimit:
				diff := n.Price - n.StopPrice
				n.StopPrice = newStop
				n.Price = newStop + diff
			}

			m.handler.OnUpdateOrder(&n.Order)
			book.addTrailingStopOrder(n)
			recalculated = true
		}

		if recalculated {
			// The current level may be gone, restart from solid ground.
			if previous != nil {
				current = previous
			} else {
				current = best()
			}
		} else {
			previous = current
			current = book.nextTrailingStopLevel(current)
		}
	}
}
