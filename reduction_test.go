package rigid3d_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/nyxphys/rigid3d"
)

func TestReduceManifoldLeavesSmallManifoldsUnchanged(t *testing.T) {
	contacts := []rigid3d.ManifoldContact{
		{OffsetOnA: mgl64.Vec3{0, 0, 0}, Normal: mgl64.Vec3{0, 1, 0}, Depth: 0.1, FeatureID: 1},
		{OffsetOnA: mgl64.Vec3{1, 0, 0}, Normal: mgl64.Vec3{0, 1, 0}, Depth: 0.2, FeatureID: 2},
	}
	got := rigid3d.ReduceManifold(contacts)
	if len(got) != 2 {
		t.Errorf("len = %d, want 2 (unchanged)", len(got))
	}
}

func TestReduceManifoldCapsAtFourContacts(t *testing.T) {
	contacts := make([]rigid3d.ManifoldContact, 8)
	for i := range contacts {
		contacts[i] = rigid3d.ManifoldContact{
			OffsetOnA: mgl64.Vec3{float64(i), float64(i % 3), float64(-i)},
			Normal:    mgl64.Vec3{0, 1, 0},
			Depth:     0.01 * float64(i),
			FeatureID: uint32(i),
		}
	}
	got := rigid3d.ReduceManifold(contacts)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	seen := map[uint32]bool{}
	for _, c := range got {
		if seen[c.FeatureID] {
			t.Errorf("duplicate contact %d in reduced set", c.FeatureID)
		}
		seen[c.FeatureID] = true
	}
}

func TestReduceManifoldPrefersNonSpeculativeStart(t *testing.T) {
	contacts := []rigid3d.ManifoldContact{
		{OffsetOnA: mgl64.Vec3{10, 10, 10}, Normal: mgl64.Vec3{0, 1, 0}, Depth: -0.5, FeatureID: 1},
		{OffsetOnA: mgl64.Vec3{0, 0, 0}, Normal: mgl64.Vec3{0, 1, 0}, Depth: 0.01, FeatureID: 2},
		{OffsetOnA: mgl64.Vec3{0, 0, 1}, Normal: mgl64.Vec3{1, 0, 0}, Depth: 0.02, FeatureID: 3},
		{OffsetOnA: mgl64.Vec3{1, 0, 0}, Normal: mgl64.Vec3{0, 0, 1}, Depth: 0.03, FeatureID: 4},
		{OffsetOnA: mgl64.Vec3{1, 1, 0}, Normal: mgl64.Vec3{1, 1, 0}, Depth: 0.04, FeatureID: 5},
	}
	got := rigid3d.ReduceManifold(contacts)
	if got[0].Depth < 0 {
		t.Errorf("starting contact has depth %v, want a non-speculative start", got[0].Depth)
	}
	foundNonSpeculative := false
	for _, c := range got {
		if c.Depth >= 0 {
			foundNonSpeculative = true
		}
	}
	if !foundNonSpeculative {
		t.Error("expected the reduced set to retain at least one non-speculative contact")
	}
}

func TestMatchImpulsesInheritsOnFeatureIDMatch(t *testing.T) {
	previous := []rigid3d.ManifoldContact{{FeatureID: 7}, {FeatureID: 9}}
	prevN := []float64{1.5, 2.5}
	prevT := [][2]float64{{0.1, 0}, {0.2, 0.3}}

	surviving := []rigid3d.ManifoldContact{{FeatureID: 9}, {FeatureID: 42}}
	n, tg := rigid3d.MatchImpulses(surviving, previous, prevN, prevT)

	if n[0] != 2.5 || tg[0] != [2]float64{0.2, 0.3} {
		t.Errorf("matched contact impulses = (%v,%v), want (2.5,{0.2 0.3})", n[0], tg[0])
	}
	if n[1] != 0 || tg[1] != ([2]float64{}) {
		t.Errorf("unmatched contact impulses = (%v,%v), want (0,{0 0})", n[1], tg[1])
	}
}

func TestMixFeatureIDVariesByChildIndex(t *testing.T) {
	a := rigid3d.MixFeatureID(5, 0)
	b := rigid3d.MixFeatureID(5, 1)
	if a == b {
		t.Error("expected different child indices to mix to different feature ids")
	}
}
