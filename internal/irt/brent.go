package irt

import "math"

var (
	sqrtEps    = math.Sqrt(2.220446049250313e-16)
	goldenMean = 0.5 * (3.0 - math.Sqrt(5.0))
)

// minimizeBounded finds a local minimum of f on [lo, hi] with Brent's method
// (golden-section steps with parabolic interpolation). It reports
// converged=false when maxEval evaluations are spent before the bracket
// shrinks below xatol, or when the best value is not finite.
func minimizeBounded(f func(float64) float64, lo, hi, xatol float64, maxEval int) (x, fx float64, converged bool) {
	a, b := lo, hi
	fulc := a + goldenMean*(b-a)
	nfc, xf := fulc, fulc
	var rat, e float64

	fx = f(xf)
	evals := 1
	ffulc, fnfc := fx, fx
	xm := 0.5 * (a + b)
	tol1 := sqrtEps*math.Abs(xf) + xatol/3.0
	tol2 := 2.0 * tol1

	converged = true
	for math.Abs(xf-xm) > tol2-0.5*(b-a) {
		useGolden := true

		if math.Abs(e) > tol1 {
			useGolden = false
			r := (xf - nfc) * (fx - ffulc)
			q := (xf - fulc) * (fx - fnfc)
			p := (xf-fulc)*q - (xf-nfc)*r
			q = 2.0 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			r = e
			e = rat

			if math.Abs(p) < math.Abs(0.5*q*r) && p > q*(a-xf) && p < q*(b-xf) {
				rat = p / q
				u := xf + rat
				if (u-a) < tol2 || (b-u) < tol2 {
					rat = tol1 * signOrOne(xm-xf)
				}
			} else {
				useGolden = true
			}
		}

		if useGolden {
			if xf >= xm {
				e = a - xf
			} else {
				e = b - xf
			}
			rat = goldenMean * e
		}

		u := xf + signOrOne(rat)*math.Max(math.Abs(rat), tol1)
		fu := f(u)
		evals++

		if fu <= fx {
			if u >= xf {
				a = xf
			} else {
				b = xf
			}
			fulc, ffulc = nfc, fnfc
			nfc, fnfc = xf, fx
			xf, fx = u, fu
		} else {
			if u < xf {
				a = u
			} else {
				b = u
			}
			if fu <= fnfc || nfc == xf {
				fulc, ffulc = nfc, fnfc
				nfc, fnfc = u, fu
			} else if fu <= ffulc || fulc == xf || fulc == nfc {
				fulc, ffulc = u, fu
			}
		}

		xm = 0.5 * (a + b)
		tol1 = sqrtEps*math.Abs(xf) + xatol/3.0
		tol2 = 2.0 * tol1

		if evals >= maxEval {
			converged = false
			break
		}
	}

	if math.IsNaN(fx) || math.IsInf(fx, 0) {
		converged = false
	}
	return xf, fx, converged
}

func signOrOne(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
