package navigation

import (
	"context"
	"testing"

	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/storage"
)

func TestRestore_EmptyStore(t *testing.T) {
	n := NewNavigator(storage.NewMemoryStore())

	snap, err := n.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if snap.Section != SectionHome {
		t.Errorf("Section = %q, want %q", snap.Section, SectionHome)
	}
	if snap.SelectedCity != nil {
		t.Errorf("SelectedCity = %+v, want nil", snap.SelectedCity)
	}
	if snap.FirstVisitCompleted {
		t.Error("FirstVisitCompleted should be false")
	}
}

func TestLand_RecordsPersistableSections(t *testing.T) {
	ctx := context.Background()
	n := NewNavigator(storage.NewMemoryStore())

	tests := []struct {
		section  Section
		recorded bool
		restored Section
	}{
		{SectionEvents, true, SectionEvents},
		{SectionLocation, false, SectionEvents},
		{SectionBookings, true, SectionBookings},
		{SectionAreaSelection, false, SectionBookings},
		{SectionProfile, true, SectionProfile},
	}

	for _, tt := range tests {
		recorded, err := n.Land(ctx, tt.section)
		if err != nil {
			t.Fatalf("Land(%q) returned error: %v", tt.section, err)
		}
		if recorded != tt.recorded {
			t.Errorf("Land(%q) recorded = %v, want %v", tt.section, recorded, tt.recorded)
		}
		snap, err := n.Restore(ctx)
		if err != nil {
			t.Fatalf("Restore returned error: %v", err)
		}
		if snap.Section != tt.restored {
			t.Errorf("after Land(%q): Section = %q, want %q", tt.section, snap.Section, tt.restored)
		}
	}
}

func TestLand_UnknownSection(t *testing.T) {
	n := NewNavigator(storage.NewMemoryStore())
	if _, err := n.Land(context.Background(), "settings"); err == nil {
		t.Fatal("expected error for unknown section, got nil")
	}
}

func TestRestore_SurvivesReloadAndClearsOnLogout(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	n := NewNavigator(store)

	city := model.City{ID: "bengaluru", Name: "Bengaluru", IsAvailable: true}
	if err := n.SetSelectedCity(ctx, city); err != nil {
		t.Fatalf("SetSelectedCity returned error: %v", err)
	}
	if _, err := n.Land(ctx, SectionBookings); err != nil {
		t.Fatalf("Land returned error: %v", err)
	}
	if err := n.CompleteFirstVisit(ctx); err != nil {
		t.Fatalf("CompleteFirstVisit returned error: %v", err)
	}

	// 再読み込み
	snap, err := NewNavigator(store).Restore(ctx)
	if err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if snap.Section != SectionBookings {
		t.Errorf("Section = %q, want %q", snap.Section, SectionBookings)
	}
	if snap.SelectedCity == nil || snap.SelectedCity.ID != "bengaluru" {
		t.Errorf("SelectedCity = %+v, want bengaluru", snap.SelectedCity)
	}
	if !snap.FirstVisitCompleted {
		t.Error("FirstVisitCompleted should be true")
	}

	if err := storage.ClearAll(ctx, store); err != nil {
		t.Fatalf("ClearAll returned error: %v", err)
	}
	snap, err = n.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if snap.Section != SectionHome || snap.SelectedCity != nil || snap.FirstVisitCompleted {
		t.Errorf("snapshot after logout = %+v, want empty", snap)
	}
}

func TestRestore_IgnoresTamperedSection(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Set(ctx, "navigation:section", "area-selection"); err != nil {
		t.Fatal(err)
	}

	snap, err := NewNavigator(store).Restore(ctx)
	if err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if snap.Section != SectionHome {
		t.Errorf("Section = %q, want %q", snap.Section, SectionHome)
	}
}

func TestRoutes(t *testing.T) {
	if got := EventRoute("slot_42"); got != "/events/slot_42" {
		t.Errorf("EventRoute = %q, want /events/slot_42", got)
	}
	if got := EventRoute("a/b"); got != "/events/a%2Fb" {
		t.Errorf("EventRoute = %q, want escaped id", got)
	}
	if got := SectionProfile.Route(); got != RouteProfile {
		t.Errorf("Route = %q, want %q", got, RouteProfile)
	}
	if got := Section("bogus").Route(); got != RouteHome {
		t.Errorf("Route = %q, want %q", got, RouteHome)
	}
}
