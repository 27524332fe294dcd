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

// Package metrics exposes the engine counters through prometheus. The
// instruments stay nil until Register is called, and every helper treats a
// nil instrument as a no-op, so library users who do not care about
// metrics pay nothing.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrInstrumentAlreadyRegistered is returned when Register is called twice.
	ErrInstrumentAlreadyRegistered = errors.New("metrics instruments already registered")

	orderCounter     *prometheus.CounterVec
	executionCounter *prometheus.CounterVec
	orderGauge       *prometheus.GaugeVec
)

// Register creates and registers the engine instruments with the default
// prometheus registerer.
func Register() error {
	if orderCounter != nil || executionCounter != nil || orderGauge != nil {
		return ErrInstrumentAlreadyRegistered
	}

	oc := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marlin",
		Subsystem: "matching",
		Name:      "orders_total",
		Help:      "Number of orders accepted by the engine",
	}, []string{"market"})
	if err := prometheus.Register(oc); err != nil {
		return errors.Wrap(err, "unable to register the order counter")
	}

	ec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marlin",
		Subsystem: "matching",
		Name:      "executions_total",
		Help:      "Number of order executions (one per filled order per trade)",
	}, []string{"market"})
	if err := prometheus.Register(ec); err != nil {
		return errors.Wrap(err, "unable to register the execution counter")
	}

	og := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "marlin",
		Subsystem: "matching",
		Name:      "orders_resting",
		Help:      "Number of orders currently resting in the books",
	}, []string{"market"})
	if err := prometheus.Register(og); err != nil {
		return errors.Wrap(err, "unable to register the order gauge")
	}

	orderCounter = oc
	executionCounter = ec
	orderGauge = og
	return nil
}

// OrderCounterInc increments the accepted order counter for a market.
func OrderCounterInc(labelValues ...string) {
	if orderCounter == nil {
		return
	}
	orderCounter.WithLabelValues(labelValues...).Inc()
}

// OrderExecutionInc increments the execution counter for a market.
func OrderExecutionInc(labelValues ...string) {
	if executionCounter == nil {
		return
	}
	executionCounter.WithLabelValues(labelValues...).Inc()
}

// OrderGaugeAdd adds the given (possibly negative) count of resting orders
// for a market.
func OrderGaugeAdd(n int, labelValues ...string) {
	if orderGauge == nil {
		return
	}
	orderGauge.WithLabelValues(labelValues...).Add(float64(n))
}
