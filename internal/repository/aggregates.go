package repository

// Reference implementations of the numeric rules the Store's raw SQL
// aggregates encode. The SQL in the gorm store mirrors these; the tests pin
// both sides to the same worked examples, so a drift in either one shows up
// against its twin.

// CompositeMember is one stock's contribution to a group composite on a date.
type CompositeMember struct {
	MarketCap float64
	RS        *float64
}

// CapWeightedMean is the group composite weighting: the market-cap-weighted
// mean of relative strength over the qualifying members. A member qualifies
// with a positive cap and a present rs; the weights renormalize over whatever
// qualifies. ok is false when nothing does.
func CapWeightedMean(members []CompositeMember) (value float64, ok bool) {
	var weighted, caps float64
	for _, m := range members {
		if m.RS == nil || m.MarketCap <= 0 {
			continue
		}
		weighted += *m.RS * m.MarketCap
		caps += m.MarketCap
	}
	if caps == 0 {
		return 0, false
	}
	return weighted / caps, true
}

// VolumeEligible reports whether a ticker's rolling volume average covers a
// full window on a date. Short histories never gate breadth or breakouts.
func VolumeEligible(volRows, window int) bool {
	return window > 0 && volRows >= window
}

// HighVolume reports whether a full-window day's volume clears its rolling
// average.
func HighVolume(volume int64, avgVolume float64, volRows, window int) bool {
	return VolumeEligible(volRows, window) && avgVolume > 0 && float64(volume) > avgVolume
}

// Breakout is the high-volume breakout predicate: a full-window day whose
// volume clears multiple times its rolling average while the close advances
// over the prior close.
func Breakout(volume int64, avgVolume float64, volRows, window int, multiple float64, close float64, prevClose *float64) bool {
	if !VolumeEligible(volRows, window) || avgVolume <= 0 {
		return false
	}
	if float64(volume) <= avgVolume*multiple {
		return false
	}
	return prevClose != nil && close > *prevClose
}
