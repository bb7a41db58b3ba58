package realtime

import "testing"

func TestAdmissionBelowSoftLimit(t *testing.T) {
	a := NewAdmission(5, 10)
	result := a.Admit()
	if !result.Accepted || result.Saturated {
		t.Fatalf("expected clean acceptance, got %+v", result)
	}
	if result.Current != 1 || result.Max != 10 {
		t.Errorf("unexpected counts: %+v", result)
	}
}

func TestAdmissionSoftLimitWarns(t *testing.T) {
	a := NewAdmission(2, 10)
	a.Admit()
	result := a.Admit()
	if !result.Accepted {
		t.Fatal("expected acceptance at soft limit")
	}
	if !result.Saturated {
		t.Error("expected saturation warning at soft limit")
	}
}

func TestAdmissionHardLimitRejects(t *testing.T) {
	a := NewAdmission(1, 2)
	a.Admit()
	a.Admit()

	result := a.Admit()
	if result.Accepted {
		t.Fatal("expected rejection at hard limit")
	}
	if result.RetryAfterSeconds <= 0 {
		t.Error("expected a retry hint on rejection")
	}

	// The rejected attempt must not consume a slot.
	if current, _, _ := a.Snapshot(); current != 2 {
		t.Errorf("expected count to stay at 2, got %d", current)
	}

	a.Release()
	if result := a.Admit(); !result.Accepted {
		t.Error("expected acceptance after a slot was released")
	}
}

func TestAdmissionReleaseFloorsAtZero(t *testing.T) {
	a := NewAdmission(1, 2)
	a.Release()
	if current, _, _ := a.Snapshot(); current != 0 {
		t.Errorf("expected count 0, got %d", current)
	}
}
