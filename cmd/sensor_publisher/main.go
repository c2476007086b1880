// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/sensorhub/internal/app"
	"github.com/relabs-tech/sensorhub/internal/config"
)

func main() {
	configPath := flag.String("config", "./sensorhub_config.txt", "path to configuration file")
	useMock := flag.Bool("mock", false, "use the synthesized mock backend instead of the configured one")
	flag.Parse()

	log.Println("starting sensorhub publisher (sensors → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunPublisher(*useMock); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
