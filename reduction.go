package rigid3d

import "github.com/go-gl/mathgl/mgl64"

// extremityAxis is the fixed, non-axis-aligned direction the reduction's
// starting-contact heuristic projects onto. spec.md §9 leaves the source
// engine's literal (0.28, 0.559, 0.780) undocumented and explicitly asks a
// rewrite to preserve the *property* — a fixed non-axis-aligned axis for
// cross-frame stability — without necessarily reusing those numbers. This
// is a different fixed unit vector with the same property.
var extremityAxis = mgl64.Vec3{0.30151134, 0.60302269, 0.73836234}.Normalize()

const (
	speculativeStartPenalty = 1000.0
	speculativeAddPenalty   = 0.2
	tieBreakEpsilon         = 1e-9
)

// MixFeatureID folds a child shape index into a feature id so compound
// parts don't collide id spaces, spec.md §4.5's feature-id requirement.
func MixFeatureID(featureID uint32, childIndex uint32) uint32 {
	return featureID ^ (childIndex*2654435761 + 0x9e3779b9)
}

// ReduceManifold selects the 4 most-constraining contacts out of more than
// 4 candidates, following spec.md §4.5's most-constraining subset
// selection: an extremity+depth heuristic picks the starting contact, then
// contacts are added one at a time by largest residual impulse against an
// idealized unit-mass solve of the contacts already chosen, with
// speculative contacts penalized. contacts with length <= 4 is returned
// unchanged.
func ReduceManifold(contacts []ManifoldContact) []ManifoldContact {
	if len(contacts) <= 4 {
		return contacts
	}

	chosen := make([]int, 0, 4)
	chosen = append(chosen, startingContact(contacts))

	for len(chosen) < 4 {
		next, ok := mostConstrainingContact(contacts, chosen)
		if !ok {
			break
		}
		chosen = append(chosen, next)
	}

	out := make([]ManifoldContact, len(chosen))
	for i, idx := range chosen {
		out[i] = contacts[idx]
	}
	return out
}

func startingContact(contacts []ManifoldContact) int {
	best, bestScore := 0, negInf
	for i, c := range contacts {
		score := c.OffsetOnA.Dot(extremityAxis)
		if c.Depth >= 0 {
			score += speculativeStartPenalty
		}
		score += float64(i) * tieBreakEpsilon
		if score > bestScore {
			bestScore, best = score, i
		}
	}
	return best
}

const negInf = -1e300

func contains(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// mostConstrainingContact approximates "residual constraint-space impulse
// after an idealized unit-mass solve against the already-chosen contacts":
// a candidate is valuable both for its own penetration and for pointing in
// a direction the chosen set does not already constrain, so the score
// rewards depth and penalizes normal alignment with contacts already
// picked.
func mostConstrainingContact(contacts []ManifoldContact, chosen []int) (int, bool) {
	best, bestResidual, found := -1, 0.0, false
	for i, c := range contacts {
		if contains(chosen, i) {
			continue
		}
		residual := residualImpulse(c, contacts, chosen)
		if c.Depth < 0 {
			residual *= speculativeAddPenalty
		}
		if !found || residual > bestResidual {
			best, bestResidual, found = i, residual, true
		}
	}
	return best, found
}

func residualImpulse(c ManifoldContact, contacts []ManifoldContact, chosen []int) float64 {
	normal := c.Normal
	if normal == (mgl64.Vec3{}) {
		normal = extremityAxis
	}
	independence := 1.0
	for _, idx := range chosen {
		other := contacts[idx].Normal
		if other == (mgl64.Vec3{}) {
			other = extremityAxis
		}
		independence *= 1 - absFloat(normal.Dot(other))
	}
	depthTerm := c.Depth
	if depthTerm < 0 {
		depthTerm = -depthTerm * 0.1
	}
	return depthTerm + independence
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// MatchImpulses matches surviving contacts against the previous frame's
// contacts by feature id, inheriting normal and (both directions of)
// tangent impulse on a match and zeroing otherwise. Unmatched previous
// impulses are discarded rather than redistributed, the documented
// tradeoff of spec.md §4.5 and the only policy this package offers for
// spec.md §9's open warm-start-redistribution question.
func MatchImpulses(surviving []ManifoldContact, previous []ManifoldContact, previousNormalImpulse []float64, previousTangentImpulse [][2]float64) (normalImpulse []float64, tangentImpulse [][2]float64) {
	normalImpulse = make([]float64, len(surviving))
	tangentImpulse = make([][2]float64, len(surviving))
	for i, c := range surviving {
		for j, p := range previous {
			if p.FeatureID == c.FeatureID {
				normalImpulse[i] = previousNormalImpulse[j]
				tangentImpulse[i] = previousTangentImpulse[j]
				break
			}
		}
	}
	return normalImpulse, tangentImpulse
}
