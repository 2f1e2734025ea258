package rating

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

func cdf(x float64) float64 { return distuv.UnitNormal.CDF(x) }

func pdf(x float64) float64 { return distuv.UnitNormal.Prob(x) }

func ppf(p float64) float64 { return distuv.UnitNormal.Quantile(p) }

// drawMargin converts a draw probability into a performance margin for n players
func drawMargin(p float64, n int, beta float64) float64 {
	return ppf((p+1)/2) * math.Sqrt(float64(n)) * beta
}

// vWin and wWin are the mean and variance corrections of a Gaussian truncated
// at the draw margin, for a decisive result. diff and margin are scaled by c.
func vWin(diff, margin float64) float64 {
	x := diff - margin
	if denom := cdf(x); denom > 0 {
		return pdf(x) / denom
	}
	return -x
}

func wWin(diff, margin float64) float64 {
	x := diff - margin
	v := vWin(diff, margin)
	return clampW(v * (v + x))
}

// vDraw and wDraw are the corrections for a Gaussian doubly truncated to
// [-margin, margin]
func vDraw(diff, margin float64) float64 {
	abs := math.Abs(diff)
	a, b := margin-abs, -margin-abs

	v := a
	if denom := cdf(a) - cdf(b); denom > 0 {
		v = (pdf(b) - pdf(a)) / denom
	}
	if diff < 0 {
		return -v
	}
	return v
}

func wDraw(diff, margin float64) float64 {
	abs := math.Abs(diff)
	a, b := margin-abs, -margin-abs

	denom := cdf(a) - cdf(b)
	if denom <= 0 {
		return clampW(1)
	}
	v := vDraw(abs, margin)
	return clampW(v*v + (a*pdf(a)-b*pdf(b))/denom)
}

// clampW keeps the variance factor inside [0, 1) so sigma never collapses to zero
func clampW(w float64) float64 {
	const ceiling = 1 - 1e-9
	switch {
	case math.IsNaN(w), w < 0:
		return 0
	case w > ceiling:
		return ceiling
	}
	return w
}
