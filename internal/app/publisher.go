// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/sensorhub/internal/backend"
	"github.com/relabs-tech/sensorhub/internal/config"
	"github.com/relabs-tech/sensorhub/internal/hub"
	"github.com/relabs-tech/sensorhub/internal/props"
	"github.com/relabs-tech/sensorhub/internal/sensor"
)

// RunPublisher drives the update cycle and publishes every open
// sensor's readings to MQTT. With useMock it substitutes a synthesized
// data source for the configured backend.
func RunPublisher(useMock bool) error {
	cfg := config.Get()

	// --- open the sensor backend ---
	var (
		b   backend.Backend
		err error
	)
	if useMock {
		log.Println("using synthesized mock backend")
		b = backend.NewSynthesized()
	} else {
		b, err = OpenBackend()
		if err != nil {
			return err
		}
	}

	// --- start the sensor subsystem ---
	var opts []hub.Option
	if cfg.OpenSensorLimit > 0 {
		opts = append(opts, hub.WithOpenLimit(cfg.OpenSensorLimit))
	}
	h, tok, err := hub.Start(b, props.NewStore(), opts...)
	if err != nil {
		return err
	}
	defer h.Stop()

	// --- connect to MQTT ---
	mqttOpts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDPublisher)

	client := mqtt.NewClient(mqttOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)

	log.Println("connected to MQTT, starting publish loop")

	// handles we have opened, by instance ID
	handles := make(map[sensor.InstanceID]*hub.Handle)
	var buf []float64

	ticker := time.NewTicker(time.Duration(cfg.SampleInterval) * time.Millisecond)
	defer ticker.Stop()

	for t := range ticker.C {
		if err := h.Update(tok); err != nil {
			return err
		}

		ids, err := h.Sensors()
		if err != nil {
			return err
		}

		// open anything that attached since the last tick
		connected := make(map[sensor.InstanceID]bool, len(ids))
		for _, id := range ids {
			connected[id] = true
			if _, ok := handles[id]; ok {
				continue
			}
			hd, err := h.Open(id)
			if err != nil {
				log.Printf("open sensor %d: %v", id, err)
				continue
			}
			log.Printf("publishing sensor %d (%s, %s)", id, hd.Name(), hd.Type())
			handles[id] = hd
		}

		for id, hd := range handles {
			// a detached sensor keeps its last values; skip rather
			// than republish stale data
			if !connected[id] {
				continue
			}

			if want := hd.Values(); want > len(buf) {
				buf = make([]float64, want)
			}
			n, err := hd.Read(buf)
			if err != nil {
				log.Printf("read sensor %d: %v", id, err)
				hd.Close()
				delete(handles, id)
				continue
			}

			reading := sensor.Reading{
				Instance: id,
				Name:     hd.Name(),
				Type:     hd.Type().String(),
				Values:   append([]float64(nil), buf[:n]...),
				Time:     t.UTC().Format(time.RFC3339Nano),
			}
			payload, err := json.Marshal(reading)
			if err != nil {
				log.Printf("json marshal error (sensor %d): %v", id, err)
				continue
			}

			topic := cfg.TopicReadings + "/" + reading.Type
			if token := client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
				log.Printf("MQTT publish error (%s): %v", topic, token.Error())
			}
		}
	}
	return nil
}
