package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/sensorhub/internal/config"
	"github.com/relabs-tech/sensorhub/internal/sensor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// readings viewer is served from the same host; no origin policy
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RunWeb serves the latest sensor readings over HTTP: a JSON snapshot
// at /api/sensors and a live websocket stream at /ws. Readings arrive
// via MQTT from the publisher.
func RunWeb() error {
	cfg := config.Get()

	var (
		mu     sync.RWMutex
		latest = make(map[sensor.InstanceID]sensor.Reading)

		clientMu sync.Mutex
		clients  = make(map[*websocket.Conn]chan []byte)
	)

	// 1) Connect to MQTT broker
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Subscribe to all reading topics and cache the latest per sensor
	topic := cfg.TopicReadings + "/#"
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r sensor.Reading
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("MQTT payload unmarshal error: %v", err)
			return
		}
		mu.Lock()
		latest[r.Instance] = r
		mu.Unlock()

		clientMu.Lock()
		for _, ch := range clients {
			select {
			case ch <- msg.Payload():
			default:
				// slow client, drop rather than stall the MQTT callback
			}
		}
		clientMu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("subscribed to MQTT topic %s", topic)

	// 3) JSON API endpoint: latest reading of every sensor
	http.HandleFunc("/api/sensors", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		readings := make([]sensor.Reading, 0, len(latest))
		for _, rd := range latest {
			readings = append(readings, rd)
		}
		mu.RUnlock()

		sort.Slice(readings, func(i, j int) bool { return readings[i].Instance < readings[j].Instance })

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(readings); err != nil {
			log.Printf("json encode error: %v", err)
		}
	})

	// 4) Websocket: push each reading as it arrives
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade error: %v", err)
			return
		}

		ch := make(chan []byte, 32)
		clientMu.Lock()
		clients[conn] = ch
		clientMu.Unlock()

		defer func() {
			clientMu.Lock()
			delete(clients, conn)
			clientMu.Unlock()
			conn.Close()
		}()

		// drain client frames so we notice the peer going away
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case payload := <-ch:
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						log.Printf("websocket write error: %v", err)
					}
					return
				}
			case <-done:
				return
			}
		}
	})

	// 5) Static files from ./web as the root
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
