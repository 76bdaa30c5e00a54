package domain

import (
	"errors"
	"testing"
)

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusActive, StatusExpired, true},
		{StatusActive, StatusCancelled, true},
		{StatusActive, StatusActive, true},
		{StatusExpired, StatusActive, false},
		{StatusCancelled, StatusActive, false},
		{StatusExpired, StatusCancelled, false},
		{StatusCancelled, StatusExpired, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCall_Validate(t *testing.T) {
	valid := Call{ID: "c1", Chain: ChainSOL, Address: "mint", Caller: Caller{UserID: "u1"}, Status: StatusActive}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid call, got %v", err)
	}

	bad := valid
	bad.Chain = "ETH"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidChain) {
		t.Errorf("expected ErrInvalidChain, got %v", err)
	}

	bad = valid
	bad.Caller.UserID = ""
	if err := bad.Validate(); !errors.Is(err, ErrMissingCaller) {
		t.Errorf("expected ErrMissingCaller, got %v", err)
	}
}

func TestCall_AddMultipliersKeepsSortedSet(t *testing.T) {
	c := &Call{}
	c.AddMultipliers(4, 2)
	c.AddMultipliers(2, 10)

	want := []float64{2, 4, 10}
	if len(c.MultipliersHit) != len(want) {
		t.Fatalf("got %v, want %v", c.MultipliersHit, want)
	}
	for i := range want {
		if c.MultipliersHit[i] != want[i] {
			t.Fatalf("got %v, want %v", c.MultipliersHit, want)
		}
	}
}

func TestCall_MultipleUnknownEntry(t *testing.T) {
	c := &Call{EntryValue: 0, LastValue: 500}
	if m := c.Multiple(); m != 0 {
		t.Errorf("expected 0 for unknown entry, got %v", m)
	}

	c.EntryValue = 100
	if m := c.Multiple(); m != 5 {
		t.Errorf("expected 5, got %v", m)
	}
}

func TestCall_CloneIsDeep(t *testing.T) {
	name := "alice"
	c := &Call{MultipliersHit: []float64{2}, Caller: Caller{UserID: "u", DisplayName: &name}}
	cp := c.Clone()
	cp.MultipliersHit[0] = 99
	*cp.Caller.DisplayName = "bob"

	if c.MultipliersHit[0] != 2 {
		t.Error("clone shares MultipliersHit backing array")
	}
	if *c.Caller.DisplayName != "alice" {
		t.Error("clone shares DisplayName pointer")
	}
}
