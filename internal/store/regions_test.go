package store

import (
	"testing"

	"markd/types"
)

func seedRegions(t *testing.T) *Store {
	t.Helper()
	st := New(t.TempDir())
	if err := st.AddRegion("central", "Центральный", []string{"central@example.com"}); err != nil {
		t.Fatal(err)
	}
	if err := st.AddRegion("south", "Южный", []string{"south@example.com"}); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestAddTCToRegion_Exclusive(t *testing.T) {
	st := seedRegions(t)

	if err := st.AddTCToRegion("ТЦ-1", "central"); err != nil {
		t.Fatalf("AddTCToRegion() error = %v", err)
	}
	// Reassignment moves the outlet, it never duplicates it.
	if err := st.AddTCToRegion("ТЦ-1", "south"); err != nil {
		t.Fatalf("AddTCToRegion() reassign error = %v", err)
	}

	regions, err := st.LoadRegions()
	if err != nil {
		t.Fatal(err)
	}
	if len(regions["central"].TCList) != 0 {
		t.Errorf("central TCList = %v, want empty", regions["central"].TCList)
	}
	if len(regions["south"].TCList) != 1 || regions["south"].TCList[0] != "ТЦ-1" {
		t.Errorf("south TCList = %v, want [ТЦ-1]", regions["south"].TCList)
	}
}

func TestAddTCToRegion_UnknownRegion(t *testing.T) {
	st := seedRegions(t)
	if err := st.AddTCToRegion("ТЦ-1", "nowhere"); err == nil {
		t.Error("AddTCToRegion() expected error for unknown region")
	}
}

func TestAddRegion_UpdatePreservesOutlets(t *testing.T) {
	st := seedRegions(t)
	if err := st.AddTCToRegion("ТЦ-1", "central"); err != nil {
		t.Fatal(err)
	}
	if err := st.AddRegion("central", "Центральный ФО", []string{"new@example.com"}); err != nil {
		t.Fatalf("AddRegion() update error = %v", err)
	}

	regions, err := st.LoadRegions()
	if err != nil {
		t.Fatal(err)
	}
	central := regions["central"]
	if central.Name != "Центральный ФО" {
		t.Errorf("Name = %q", central.Name)
	}
	if len(central.Emails) != 1 || central.Emails[0] != "new@example.com" {
		t.Errorf("Emails = %v", central.Emails)
	}
	if len(central.TCList) != 1 || central.TCList[0] != "ТЦ-1" {
		t.Errorf("TCList = %v, want preserved [ТЦ-1]", central.TCList)
	}
}

func TestRemoveTCFromRegion(t *testing.T) {
	st := seedRegions(t)
	if err := st.AddTCToRegion("ТЦ-1", "central"); err != nil {
		t.Fatal(err)
	}
	if err := st.RemoveTCFromRegion("ТЦ-1", "central"); err != nil {
		t.Fatalf("RemoveTCFromRegion() error = %v", err)
	}
	// Removing again is a no-op, not an error.
	if err := st.RemoveTCFromRegion("ТЦ-1", "central"); err != nil {
		t.Fatalf("RemoveTCFromRegion() repeat error = %v", err)
	}
}

func TestRegionForTC(t *testing.T) {
	st := seedRegions(t)
	if err := st.AddTCToRegion("ТЦ-1", "south"); err != nil {
		t.Fatal(err)
	}

	got, err := st.RegionForTC("ТЦ-1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "south" {
		t.Errorf("RegionForTC(ТЦ-1) = %q, want %q", got, "south")
	}

	got, err = st.RegionForTC("ТЦ-99")
	if err != nil {
		t.Fatal(err)
	}
	if got != types.UndefinedRegion {
		t.Errorf("RegionForTC(ТЦ-99) = %q, want %q", got, types.UndefinedRegion)
	}
}

func TestDeleteRegion(t *testing.T) {
	st := seedRegions(t)
	if err := st.DeleteRegion("south"); err != nil {
		t.Fatalf("DeleteRegion() error = %v", err)
	}
	if err := st.DeleteRegion("south"); err == nil {
		t.Error("DeleteRegion() expected error for missing region")
	}
	regions, err := st.LoadRegions()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := regions["south"]; ok {
		t.Error("south still present after delete")
	}
}
