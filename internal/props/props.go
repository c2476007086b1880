// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package props

import (
	"sync"

	"github.com/relabs-tech/sensorhub/internal/sensor"
)

// Store hands out property bags: small string key/value maps named by a
// PropertiesID. Open sensor handles create a bag lazily and destroy it
// on close. IDs are allocated monotonically and never reused.
type Store struct {
	mu   sync.Mutex
	next sensor.PropertiesID
	bags map[sensor.PropertiesID]map[string]string
}

// NewStore returns an empty property store.
func NewStore() *Store {
	return &Store{
		next: 1,
		bags: make(map[sensor.PropertiesID]map[string]string),
	}
}

// CreateProperties allocates a new empty property bag.
func (s *Store) CreateProperties() (sensor.PropertiesID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.bags[id] = make(map[string]string)
	return id, nil
}

// DestroyProperties releases a bag. Unknown IDs are ignored.
func (s *Store) DestroyProperties(id sensor.PropertiesID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bags, id)
}

// Set stores a key/value pair in a bag. Setting on a destroyed or
// never-created bag is a no-op.
func (s *Store) Set(id sensor.PropertiesID, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bag, ok := s.bags[id]; ok {
		bag[key] = value
	}
}

// Get reads a value from a bag.
func (s *Store) Get(id sensor.PropertiesID, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bag, ok := s.bags[id]
	if !ok {
		return "", false
	}
	v, ok := bag[key]
	return v, ok
}

// Count returns the number of live bags.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bags)
}
