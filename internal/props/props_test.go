package props

import "testing"

func TestCreateSetGetDestroy(t *testing.T) {
	s := NewStore()

	id, err := s.CreateProperties()
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("PropertiesID 0 is reserved for none")
	}

	s.Set(id, "orientation", "upright")
	v, ok := s.Get(id, "orientation")
	if !ok || v != "upright" {
		t.Errorf("Get = %q, %v", v, ok)
	}

	if _, ok := s.Get(id, "missing"); ok {
		t.Error("unexpected hit for a missing key")
	}

	s.DestroyProperties(id)
	if _, ok := s.Get(id, "orientation"); ok {
		t.Error("bag readable after destroy")
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d after destroy", s.Count())
	}

	// destroying again is harmless
	s.DestroyProperties(id)
}

func TestIDsAreNotReused(t *testing.T) {
	s := NewStore()
	seen := make(map[uint32]bool)
	for i := 0; i < 20; i++ {
		id, err := s.CreateProperties()
		if err != nil {
			t.Fatal(err)
		}
		if seen[uint32(id)] {
			t.Fatalf("PropertiesID %d issued twice", id)
		}
		seen[uint32(id)] = true
		s.DestroyProperties(id)
	}
}

func TestSetOnDestroyedBagIsNoOp(t *testing.T) {
	s := NewStore()
	id, err := s.CreateProperties()
	if err != nil {
		t.Fatal(err)
	}
	s.DestroyProperties(id)
	s.Set(id, "k", "v")
	if _, ok := s.Get(id, "k"); ok {
		t.Error("set on a destroyed bag took effect")
	}
}
