// Copyright 2026 The Event Horizon Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eventhorizon/horizon/internal/config"
	"github.com/eventhorizon/horizon/internal/observability/logger"
)

func main() {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "horizon",
		Short:         "Event Horizon credential service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded

			logger.InitLogger(logger.Config{
				Level:       cfg.Observability.LogLevel,
				Format:      cfg.Observability.LogFormat,
				ServiceName: cfg.Observability.ServiceName,
			})
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server and the key rotation scheduler",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the public key directory schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context(), cfg)
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "horizon: %v\n", err)
		os.Exit(1)
	}
}
