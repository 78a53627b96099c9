package foundations

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

func gamma0(alpha, beta float64) float64 {
	ab1 := alpha + beta + 1.
	a1 := alpha + 1.
	b1 := beta + 1.
	return math.Gamma(a1) * math.Gamma(b1) * math.Pow(2, ab1) / ab1 / math.Gamma(ab1)
}

func gamma1(alpha, beta float64) float64 {
	ab := alpha + beta
	a1 := alpha + 1.
	b1 := beta + 1.
	return a1 * b1 * gamma0(alpha, beta) / (ab + 3.0)
}

// JacobiGQ returns the N+1 Gauss quadrature points and weights for the
// Jacobi weight (1-x)^alpha (1+x)^beta, by Golub-Welsch.
func JacobiGQ(alpha, beta float64, N int) (X, W []float64) {
	var (
		fac        float64
		h1, d0, d1 []float64
		VVr        *mat.Dense
	)
	if N == 0 {
		X = []float64{-(alpha - beta) / (alpha + beta + 2.)}
		W = []float64{gamma0(alpha, beta)}
		return
	}

	h1 = make([]float64, N+1)
	for i := 0; i < N+1; i++ {
		h1[i] = 2*float64(i) + alpha + beta
	}

	// main diagonal: -1/2*(alpha^2-beta^2)/(h1+2)/h1
	d0 = make([]float64, N+1)
	fac = -.5 * (alpha*alpha - beta*beta)
	for i := 0; i < N+1; i++ {
		val := h1[i]
		d0[i] = fac / (val * (val + 2.))
	}
	// Handle division by zero
	eps := 1.e-16
	if alpha+beta < 10*eps {
		d0[0] = 0.
	}

	// 1st upper diagonal
	var ip1 float64
	d1 = make([]float64, N)
	for i := 0; i < N; i++ {
		ip1 = float64(i + 1)
		val := h1[i]
		d1[i] = 2. / (val + 2.)
		d1[i] *= math.Sqrt(ip1 * (ip1 + alpha + beta) * (ip1 + alpha) * (ip1 + beta) / ((val + 1.) * (val + 3.)))
	}

	JJ := mat.NewSymDense(N+1, nil)
	for i := 0; i < N+1; i++ {
		JJ.SetSym(i, i, d0[i])
		if i < N {
			JJ.SetSym(i, i+1, d1[i])
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(JJ, true); !ok {
		panic("eigenvalue decomposition failed")
	}
	X = eig.Values(nil)

	VVr = mat.NewDense(N+1, N+1, nil)
	eig.VectorsTo(VVr)
	W = make([]float64, N+1)
	g0 := gamma0(alpha, beta)
	for j, v := range VVr.RawRowView(0) {
		W[j] = v * v * g0
	}
	return
}

// JacobiGL returns the N+1 Gauss-Lobatto points for the Jacobi weight
func JacobiGL(alpha, beta float64, N int) (X []float64) {
	X = make([]float64, N+1)
	X[0] = -1
	X[N] = 1
	if N == 1 {
		return
	}
	xint, _ := JacobiGQ(alpha+1, beta+1, N-2)
	copy(X[1:N], xint)
	return
}

// JacobiP evaluates the normalized Jacobi polynomial of order N at r
func JacobiP(r []float64, alpha, beta float64, N int) (p []float64) {
	var (
		Nc = len(r)
	)
	rg := 1. / math.Sqrt(gamma0(alpha, beta))
	p = make([]float64, Nc)
	if N == 0 {
		for i := range p {
			p[i] = rg
		}
		return
	}
	var (
		ab    = alpha + beta
		rg1   = 1. / math.Sqrt(gamma1(alpha, beta))
		a1    = alpha + 1.
		b1    = beta + 1.
		ab1   = ab + 1.
		aold0 = 2.0 * math.Sqrt(a1*b1/(ab+3.0)) / (ab + 2.0)
	)
	for i, x := range r {
		pm1 := rg
		pc := rg1 * ((ab+2.0)*x/2.0 + (alpha-beta)/2.0)
		aold := aold0
		for n := 0; n < N-1; n++ {
			np1 := float64(n + 1)
			np2 := np1 + 1
			h1 := 2.0*np1 + ab
			anew := 2.0 / (h1 + 2.0) * math.Sqrt(np2*(np1+ab1)*(np1+a1)*(np1+b1)/(h1+1.0)/(h1+3.0))
			bnew := -(alpha*alpha - beta*beta) / h1 / (h1 + 2.0)
			pn := (-aold*pm1 + (x-bnew)*pc) / anew
			pm1, pc = pc, pn
			aold = anew
		}
		p[i] = pc
	}
	return
}

// GradJacobiP evaluates the derivative of the normalized Jacobi polynomial
func GradJacobiP(r []float64, alpha, beta float64, N int) (p []float64) {
	if N == 0 {
		p = make([]float64, len(r))
		return
	}
	p = JacobiP(r, alpha+1, beta+1, N-1)
	fN := float64(N)
	fac := math.Sqrt(fN * (fN + alpha + beta + 1))
	for i, val := range p {
		p[i] = val * fac
	}
	return
}

// JacobiPoly evaluates the classical (unnormalized) Jacobi polynomial
// P^{alpha,beta}_n(x) by the three term recurrence.
func JacobiPoly(x, alpha, beta float64, n int) float64 {
	if n == 0 {
		return 1.
	}
	var (
		ab  = alpha + beta
		pm1 = 1.
		p   = 0.5 * (alpha - beta + (ab+2.)*x)
	)
	for k := 2; k <= n; k++ {
		fk := float64(k)
		a1 := 2. * fk * (fk + ab) * (2.*fk + ab - 2.)
		a2 := (2.*fk + ab - 1.) * (alpha*alpha - beta*beta)
		a3 := (2.*fk + ab - 2.) * (2.*fk + ab - 1.) * (2.*fk + ab)
		a4 := 2. * (fk + alpha - 1.) * (fk + beta - 1.) * (2.*fk + ab)
		pn := ((a2+a3*x)*p - a4*pm1) / a1
		pm1, p = p, pn
	}
	return p
}

// JacobiPolyDeriv is d/dx P^{alpha,beta}_n(x)
func JacobiPolyDeriv(x, alpha, beta float64, n int) float64 {
	if n == 0 {
		return 0.
	}
	return 0.5 * (float64(n) + alpha + beta + 1.) * JacobiPoly(x, alpha+1., beta+1., n-1)
}
