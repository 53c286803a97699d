package flood

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Posterior applies Bayes' rule with equal priors to the flood hypothesis,
// sig0 drawn from N(wbsc, waterStd), and the non-flood hypothesis, sig0 drawn
// from N(hbsc, std). The decision is 1 when flooding is more likely, 0
// otherwise, and NaN when any input is NaN.
func Posterior(sig0, std, wbsc, hbsc, waterStd float64) (nf, f, decision float64) {
	if math.IsNaN(sig0) || math.IsNaN(std) || math.IsNaN(wbsc) || math.IsNaN(hbsc) {
		return math.NaN(), math.NaN(), math.NaN()
	}
	logF := distuv.Normal{Mu: wbsc, Sigma: waterStd}.LogProb(sig0)
	logNF := distuv.Normal{Mu: hbsc, Sigma: std}.LogProb(sig0)

	// 0.5*a / (0.5*a + 0.5*b) in log space, so that far tails do not
	// underflow to 0/0.
	f = 1 / (1 + math.Exp(logNF-logF))
	nf = 1 / (1 + math.Exp(logF-logNF))
	if math.IsNaN(f) || math.IsNaN(nf) {
		return math.NaN(), math.NaN(), math.NaN()
	}
	if f > nf {
		return nf, f, 1
	}
	return nf, f, 0
}

// passes reports whether one pixel survives every quality mask.
func (c Calibration) passes(sig0, std, incidence, wbsc, hbsc, fPost float64) bool {
	if !(incidence >= c.MinIncidence && incidence <= c.MaxIncidence) {
		return false
	}
	if !(hbsc > wbsc+c.SeparationFactor*c.WaterStd) {
		return false
	}
	plausibleLand := sig0 > hbsc-c.OutlierFactor*std && sig0 < hbsc+c.OutlierFactor*std
	plausibleWater := sig0 < wbsc+c.OutlierFactor*c.WaterStd
	if !(plausibleLand || plausibleWater) {
		return false
	}
	return fPost > c.ProbabilityThreshold
}

// Filter multiplies the decision with the quality masks. Failing pixels become
// 0 and a NaN decision stays NaN.
func (c Calibration) Filter(decision, sig0, std, incidence, wbsc, hbsc, fPost float64) float64 {
	if math.IsNaN(decision) || c.passes(sig0, std, incidence, wbsc, hbsc, fPost) {
		return decision
	}
	return 0
}
