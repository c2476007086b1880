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
	flag.Parse()

	log.Println("starting sensorhub web viewer (MQTT → HTTP/websocket)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunWeb(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
