package bandit

import "testing"

func TestSelect_UniformDuringWarmup(t *testing.T) {
	p := NewWithParams([]string{"a", "b"}, DefaultDelta, 5, DefaultRidge)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		seen[p.Select()] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected both arms sampled during warmup, got %v", seen)
	}
}

func TestUpdate_ClampsRewardToUnitInterval(t *testing.T) {
	p := New([]string{"a"})
	p.Update("a", 5)
	p.Update("a", -5)
	snap := p.Snapshot()
	if snap["a"].Pulls != 2 {
		t.Fatalf("expected 2 pulls, got %d", snap["a"].Pulls)
	}
	if snap["a"].Mean < 0 || snap["a"].Mean > 1 {
		t.Fatalf("expected mean clamped to [0,1], got %f", snap["a"].Mean)
	}
}

func TestUpdate_UnknownArmIgnored(t *testing.T) {
	p := New([]string{"a"})
	p.Update("nonexistent", 1)
	snap := p.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected only the configured arm to exist, got %v", snap)
	}
}

// TestStoppingTest_FiresOnClearSeparation covers spec §8's testable
// property: once one arm's rewards are clearly separated from the rest
// past min_pulls, the GLR stopping test fires and commits to it.
func TestStoppingTest_FiresOnClearSeparation(t *testing.T) {
	p := NewWithParams([]string{"good", "bad"}, 0.05, 10, DefaultRidge)

	for i := 0; i < 500; i++ {
		if name, stopped := p.Stopped(); stopped {
			if name != "good" {
				t.Fatalf("stopping test identified the wrong arm: %s", name)
			}
			return
		}
		arm := p.Select()
		if arm == "good" {
			p.Update(arm, 1.0)
		} else {
			p.Update(arm, 0.0)
		}
	}
	t.Fatal("stopping test never fired after 500 rounds of clearly separated rewards")
}

func TestStoppingTest_CommitsSelectAfterStopping(t *testing.T) {
	p := NewWithParams([]string{"good", "bad"}, 0.05, 10, DefaultRidge)
	for i := 0; i < 1000; i++ {
		if _, stopped := p.Stopped(); stopped {
			break
		}
		arm := p.Select()
		if arm == "good" {
			p.Update(arm, 1.0)
		} else {
			p.Update(arm, 0.0)
		}
	}
	name, stopped := p.Stopped()
	if !stopped {
		t.Fatal("expected stopping test to have fired")
	}
	for i := 0; i < 5; i++ {
		if got := p.Select(); got != name {
			t.Fatalf("expected Select to commit to %s after stopping, got %s", name, got)
		}
	}
}

func TestPickAllocated_TieBreaksByVariancePerPull(t *testing.T) {
	p := NewWithParams([]string{"a", "b"}, DefaultDelta, 0, DefaultRidge)
	// Both arms start with zero pulls: variance() falls back to the
	// uninformative prior (1) for both, so varianceWithRidge ties exactly
	// and the tie-break must fall through to variance-per-pull.
	got := p.pickAllocated()
	if got != "a" && got != "b" {
		t.Fatalf("expected a deterministic tie-break result, got %q", got)
	}
}
