package geo

// DefaultCheckinRadiusMeters is the canonical check-in threshold.
const DefaultCheckinRadiusMeters = 500.0

// Eligibility is derived from the user and museum positions and never stored.
type Eligibility struct {
	DistanceMeters float64
	CanCheckin     bool
	Formatted      string
	// Known is false when either position was unavailable and the
	// result is fail-open.
	Known bool
}

// Evaluate computes eligibility of user against museum for the given
// threshold. A nil position on either side yields a fail-open result.
func Evaluate(user, museum *Point, thresholdMeters float64) Eligibility {
	if user == nil || museum == nil {
		return Eligibility{CanCheckin: true, Formatted: UnknownDistance}
	}
	d := user.DistanceTo(*museum)
	return Eligibility{
		DistanceMeters: d,
		CanCheckin:     d <= thresholdMeters,
		Formatted:      FormatDistance(d),
		Known:          true,
	}
}
