package storage

import (
	"context"
	"testing"
)

type bookingContext struct {
	IsBookingFlow  bool   `json:"isBookingFlow"`
	SelectedSlotID string `json:"selectedSlotId"`
}

func TestNamespace_KeysArePrefixed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ns := NewNamespace(store, NamespaceSignup)

	if ns.Name() != NamespaceSignup {
		t.Errorf("Name = %q, want %q", ns.Name(), NamespaceSignup)
	}
	if err := ns.SetString(ctx, "step", "email"); err != nil {
		t.Fatalf("SetString returned error: %v", err)
	}

	v, ok, _ := store.Get(ctx, "signup:step")
	if !ok || v != "email" {
		t.Errorf("raw Get = (%q, %v), want (\"email\", true)", v, ok)
	}
}

func TestNamespace_JSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	ns := NewNamespace(NewMemoryStore(), NamespaceBooking)

	var empty bookingContext
	ok, err := ns.GetJSON(ctx, "context", &empty)
	if err != nil || ok {
		t.Fatalf("GetJSON on missing key = (%v, %v), want (false, nil)", ok, err)
	}

	want := bookingContext{IsBookingFlow: true, SelectedSlotID: "slot_42"}
	if err := ns.SetJSON(ctx, "context", want); err != nil {
		t.Fatalf("SetJSON returned error: %v", err)
	}
	var got bookingContext
	ok, err = ns.GetJSON(ctx, "context", &got)
	if err != nil || !ok {
		t.Fatalf("GetJSON = (%v, %v)", ok, err)
	}
	if got != want {
		t.Errorf("GetJSON = %+v, want %+v", got, want)
	}
}

func TestNamespace_GetJSON_CorruptValue_ReturnsError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Set(ctx, "booking:context", "{oops")

	var got bookingContext
	if _, err := NewNamespace(store, NamespaceBooking).GetJSON(ctx, "context", &got); err == nil {
		t.Fatal("expected decode error, got nil")
	}
}

func TestNamespace_Bool(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ns := NewNamespace(store, NamespaceNavigation)

	if b, err := ns.GetBool(ctx, "isFirstVisit"); err != nil || b {
		t.Errorf("GetBool on missing key = (%v, %v), want (false, nil)", b, err)
	}
	if err := ns.SetBool(ctx, "isFirstVisit", true); err != nil {
		t.Fatalf("SetBool returned error: %v", err)
	}
	if b, _ := ns.GetBool(ctx, "isFirstVisit"); !b {
		t.Error("GetBool = false, want true")
	}

	// パースできない値はfalse扱い
	_ = store.Set(ctx, "navigation:isFirstVisit", "maybe")
	if b, err := ns.GetBool(ctx, "isFirstVisit"); err != nil || b {
		t.Errorf("GetBool on garbage = (%v, %v), want (false, nil)", b, err)
	}
}

func TestNamespace_ClearOnlyAffectsOwnKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	signup := NewNamespace(store, NamespaceSignup)
	session := NewNamespace(store, NamespaceSession)

	_ = signup.SetString(ctx, "step", "otp")
	_ = signup.SetString(ctx, "data", "{}")
	_ = session.SetString(ctx, "accessToken", "tok")

	if err := signup.Clear(ctx); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}

	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
	if _, ok, _ := session.GetString(ctx, "accessToken"); !ok {
		t.Error("session key should survive clearing signup namespace")
	}
}

func TestClearAll_RemovesEveryNamespace(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, name := range AllNamespaces {
		if err := NewNamespace(store, name).SetString(ctx, "k", "v"); err != nil {
			t.Fatalf("SetString(%s) returned error: %v", name, err)
		}
	}
	// 名前空間外のキーは対象外
	_ = store.Set(ctx, "unrelated", "v")

	if err := ClearAll(ctx, store); err != nil {
		t.Fatalf("ClearAll returned error: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}
