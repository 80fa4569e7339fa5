package profile

import "testing"

func TestMemoryCache_PutGet(t *testing.T) {
	c := NewMemoryCache()

	c.Put(Profile{Phone: "3001234567", Name: "Marta", LastAddress: "Cra 7 #45-10"})
	p, ok := c.Get("3001234567")
	if !ok {
		t.Fatal("profile not found")
	}
	if p.Name != "Marta" || p.LastAddress != "Cra 7 #45-10" {
		t.Errorf("got %+v", p)
	}
	if p.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}

func TestMemoryCache_PhoneNormalization(t *testing.T) {
	c := NewMemoryCache()

	c.Put(Profile{Phone: "300 123-4567", Name: "Marta"})
	if _, ok := c.Get("3001234567"); !ok {
		t.Error("formatted and bare phone should hit the same entry")
	}
	if _, ok := c.Get("(300) 123.4567"); !ok {
		t.Error("punctuation variants should hit the same entry")
	}
}

func TestMemoryCache_GetUnknown(t *testing.T) {
	c := NewMemoryCache()
	if _, ok := c.Get("3009999999"); ok {
		t.Error("unknown phone should miss")
	}
}

func TestMemoryCache_RecordOrder(t *testing.T) {
	c := NewMemoryCache()

	c.RecordOrder("3001234567", "Marta", "Cra 7 #45-10", 4.651, -74.061)
	c.RecordOrder("3001234567", "", "Cl 93 #11-20", 4.676, -74.048)

	p, ok := c.Get("3001234567")
	if !ok {
		t.Fatal("profile not found")
	}
	if p.OrderCount != 2 {
		t.Errorf("order count = %d, want 2", p.OrderCount)
	}
	if p.Name != "Marta" {
		t.Errorf("empty name should keep the remembered one, got %q", p.Name)
	}
	if p.LastAddress != "Cl 93 #11-20" {
		t.Errorf("last address = %q, want most recent", p.LastAddress)
	}
	if p.LastLat != 4.676 || p.LastLng != -74.048 {
		t.Errorf("coordinates not refreshed: %v,%v", p.LastLat, p.LastLng)
	}
}

func TestMemoryCache_IgnoresEmptyPhone(t *testing.T) {
	c := NewMemoryCache()
	c.Put(Profile{Phone: "  ", Name: "ghost"})
	c.RecordOrder("", "ghost", "", 0, 0)
	if _, ok := c.Get(""); ok {
		t.Error("empty phone must not create an entry")
	}
}
