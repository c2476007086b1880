// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/relabs-tech/sensorhub/internal/app"
	"github.com/relabs-tech/sensorhub/internal/config"
	"github.com/relabs-tech/sensorhub/internal/hub"
	"github.com/relabs-tech/sensorhub/internal/props"
)

func main() {
	configPath := flag.String("config", "./sensorhub_config.txt", "path to configuration file")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	b, err := app.OpenBackend()
	if err != nil {
		log.Fatalf("backend error: %v", err)
	}

	h, _, err := hub.Start(b, props.NewStore())
	if err != nil {
		log.Fatalf("sensor hub error: %v", err)
	}
	defer h.Stop()

	ids, err := h.Sensors()
	if err != nil {
		log.Fatalf("enumerate error: %v", err)
	}
	if len(ids) == 0 {
		fmt.Println("no sensors connected")
		return
	}

	fmt.Printf("%-4s %-36s %-10s %s\n", "ID", "NAME", "TYPE", "PLATFORM")
	for _, id := range ids {
		fmt.Printf("%-4d %-36s %-10s %d\n", id, h.Name(id), h.TypeOf(id), h.NonPortableType(id))
	}
}
