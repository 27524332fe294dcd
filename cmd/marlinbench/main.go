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
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:           "marlinbench",
		Short:         "Flood the matching engine with random orders and report throughput",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(opts)
		},
	}

	cmd.Flags().IntVar(&opts.orders, "orders", 1000000, "number of orders to submit")
	cmd.Flags().Int64Var(&opts.levels, "levels", 100, "width of the random price band")
	cmd.Flags().Int64Var(&opts.seed, "seed", 1, "random seed")
	cmd.Flags().BoolVar(&opts.uniform, "uniform", false, "use the same size for all orders")
	cmd.Flags().IntVar(&opts.reportEvery, "report-every", 0, "report stats every n orders (0 reports only at the end)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while the benchmark runs")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warning, error)")

	return cmd
}
