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

package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marlinmarkets/marlin/core/matching"
	"github.com/marlinmarkets/marlin/core/types"
	"github.com/marlinmarkets/marlin/logging"
	"github.com/marlinmarkets/marlin/metrics"
)

const (
	benchSymbolID   uint32 = 1
	benchSymbolName        = "TEST"
	basePrice       int64  = 10000
)

type benchOptions struct {
	orders      int
	levels      int64
	seed        int64
	uniform     bool
	reportEvery int
	metricsAddr string
	logLevel    string
}

// countingHandler tallies what the engine did so the benchmark can report
// more than raw command throughput.
type countingHandler struct {
	matching.NoopHandler

	executions int
	tradedQty  int64
}

func (h *countingHandler) OnExecuteOrder(order *types.Order, price, quantity int64) {
	h.executions++
	h.tradedQty += quantity
}

func runBenchmark(opts benchOptions) error {
	log := logging.NewProdLogger()
	defer log.AtExit()

	level, err := logging.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	if opts.metricsAddr != "" {
		if err := metrics.Register(); err != nil {
			return err
		}
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(opts.metricsAddr, nil); err != nil {
				log.Error("metrics server stopped", logging.Error(err))
			}
		}()
	}

	reportEvery := opts.reportEvery
	if reportEvery == 0 {
		reportEvery = opts.orders
	}

	config := matching.NewDefaultConfig()
	config.Level.Level = level

	handler := &countingHandler{}
	manager := matching.NewMarketManager(log, config, handler)

	symbol := types.NewSymbol(benchSymbolID, benchSymbolName)
	if err := manager.AddSymbol(symbol); err != nil {
		return err
	}
	if err := manager.AddOrderBook(symbol); err != nil {
		return err
	}
	manager.EnableMatching()

	rng := rand.New(rand.NewSource(opts.seed))

	start := time.Now()
	for i := 0; i < opts.orders; i++ {
		size := int64(50)
		if !opts.uniform {
			size = int64(rng.Intn(250) + 1)
		}
		price := basePrice + rng.Int63n(opts.levels) - opts.levels/2
		side := types.Side(rng.Intn(2))

		order := types.LimitOrder(int64(i+1), benchSymbolID, side, price, size)
		if err := manager.AddOrder(order); err != nil {
			return err
		}

		if (i+1)%reportEvery == 0 {
			elapsed := time.Since(start)
			fmt.Printf("%12d orders %12d executions %14d traded %10.0f orders/sec\n",
				i+1, handler.executions, handler.tradedQty,
				float64(i+1)/elapsed.Seconds())
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("\nsubmitted %d orders in %v (%.0f orders/sec)\n",
		opts.orders, elapsed.Round(time.Millisecond),
		float64(opts.orders)/elapsed.Seconds())
	fmt.Printf("executions: %d, traded quantity: %d, resting orders: %d\n",
		handler.executions, handler.tradedQty, manager.Orders())

	return nil
}
