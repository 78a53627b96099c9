// Package assembly maps element local coefficients to global degrees of
// freedom. Global boundary coefficients come first, with the Dirichlet ones
// leading, followed by element interior coefficients.
package assembly

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/cespare/xxhash/v2"

	"github.com/notargets/gohp/comm"
	"github.com/notargets/gohp/utils"
)

type MapKind uint8

const (
	Continuous MapKind = iota
	Discontinuous
)

func (mk MapKind) String() string {
	switch mk {
	case Continuous:
		return "Continuous"
	case Discontinuous:
		return "Discontinuous"
	}
	return fmt.Sprintf("MapKind(%d)", uint8(mk))
}

type SolnType uint8

const (
	DirectFull SolnType = iota
	DirectStaticCond
	DirectMultiLevelStaticCond
	IterativeFull
	IterativeStaticCond
)

var solnTypeNames = []string{"DirectFull", "DirectStaticCond", "DirectMultiLevelStaticCond",
	"IterativeFull", "IterativeStaticCond"}

func (st SolnType) String() string {
	if int(st) < len(solnTypeNames) {
		return solnTypeNames[st]
	}
	return fmt.Sprintf("SolnType(%d)", uint8(st))
}

func (st SolnType) IsIterative() bool { return st == IterativeFull || st == IterativeStaticCond }
func (st SolnType) IsStaticCond() bool {
	return st == DirectStaticCond || st == DirectMultiLevelStaticCond || st == IterativeStaticCond
}

func ParseSolnType(name string) (SolnType, error) {
	for i, n := range solnTypeNames {
		if n == name {
			return SolnType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown solution type %q", utils.ErrConfig, name)
}

type PreconType uint8

const (
	PreconNull PreconType = iota
	PreconDiagonal
)

func (pt PreconType) String() string {
	switch pt {
	case PreconNull:
		return "Null"
	case PreconDiagonal:
		return "Diagonal"
	}
	return fmt.Sprintf("PreconType(%d)", uint8(pt))
}

func ParsePreconType(name string) (PreconType, error) {
	switch name {
	case "Null", "":
		return PreconNull, nil
	case "Diagonal":
		return PreconDiagonal, nil
	}
	return 0, fmt.Errorf("%w: unknown preconditioner %q", utils.ErrConfig, name)
}

// Options control map construction
type Options struct {
	SolnType SolnType
	Precon   PreconType
	// RCM renumbers the non-Dirichlet boundary coefficients by reverse
	// Cuthill-McKee to reduce the bandwidth of the boundary system
	RCM  bool
	Comm comm.Communicator
	// Elements lists the mesh element of each expansion, nil for all in order
	Elements []int
	// Partition is the rank of every mesh element, nil when unpartitioned
	Partition []int
	Logger    *slog.Logger
}

func (o *Options) comm() comm.Communicator {
	if o.Comm == nil {
		return comm.Serial{}
	}
	return o.Comm
}

func (o *Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Map is an immutable local to global mapping. Local coefficients are the
// element coefficients concatenated in element order; local boundary
// coefficients are each element's boundary modes concatenated likewise.
type Map struct {
	kind     MapKind
	solnType SolnType
	precon   PreconType
	comm     comm.Communicator

	numLocalCoeffs, numLocalBndCoeffs                   int
	numLocalDirBndCoeffs                                int
	numGlobalBndCoeffs, numGlobalDirBndCoeffs           int
	numGlobalCoeffs                                     int
	nonDirVertexModes, nonDirEdgeModes, nonDirFaceModes int

	elements    []int
	offsets     []int // Local coefficient offset per element, plus the total
	bndOffsets  []int
	elmtBndMaps [][]int
	elmtIntMaps [][]int

	localToGlobal        []int
	localToGlobalSign    []float64
	localToGlobalBnd     []int
	localToGlobalBndSign []float64

	bndCondCoeffsToGlobal     []int
	bndCondCoeffsToGlobalSign []float64
	bndCondOffsets            []int
	bndCondTraceToGlobalTrace []int

	globalToUniversal          []int
	globalToUniversalBnd       []int
	globalToUniversalBndUnique []int

	signChange bool
	bandwidth  int
	hash       uint64

	trace *traceData // Discontinuous maps only
}

func (am *Map) Kind() MapKind           { return am.kind }
func (am *Map) SolnType() SolnType      { return am.solnType }
func (am *Map) PreconType() PreconType  { return am.precon }
func (am *Map) Comm() comm.Communicator { return am.comm }

func (am *Map) NumLocalCoeffs() int        { return am.numLocalCoeffs }
func (am *Map) NumLocalBndCoeffs() int     { return am.numLocalBndCoeffs }
func (am *Map) NumLocalDirBndCoeffs() int  { return am.numLocalDirBndCoeffs }
func (am *Map) NumGlobalBndCoeffs() int    { return am.numGlobalBndCoeffs }
func (am *Map) NumGlobalDirBndCoeffs() int { return am.numGlobalDirBndCoeffs }
func (am *Map) NumGlobalCoeffs() int       { return am.numGlobalCoeffs }

// NumNonDirModes returns the global non-Dirichlet vertex, edge and face mode counts
func (am *Map) NumNonDirModes() (vertex, edge, face int) {
	return am.nonDirVertexModes, am.nonDirEdgeModes, am.nonDirFaceModes
}

// SingularSystem is true when every global boundary coefficient is
// Dirichlet, so no boundary solve is required
func (am *Map) SingularSystem() bool { return am.numGlobalBndCoeffs == am.numGlobalDirBndCoeffs }

func (am *Map) SignChange() bool { return am.signChange }

// Bandwidth of the non-Dirichlet global boundary system
func (am *Map) Bandwidth() int { return am.bandwidth }
func (am *Map) Hash() uint64   { return am.hash }

func (am *Map) NumElmts() int { return len(am.elements) }

// Element returns the mesh element id of local element i
func (am *Map) Element(i int) int { return am.elements[i] }

func (am *Map) ElmtOffset(i int) int    { return am.offsets[i] }
func (am *Map) ElmtBndOffset(i int) int { return am.bndOffsets[i] }

// ElmtBndMap and ElmtIntMap are the element coefficient indices of the
// boundary and interior modes of local element i
func (am *Map) ElmtBndMap(i int) []int { return am.elmtBndMaps[i] }
func (am *Map) ElmtIntMap(i int) []int { return am.elmtIntMaps[i] }

func (am *Map) LocalToGlobalMap() []int              { return am.localToGlobal }
func (am *Map) LocalToGlobalSign() []float64         { return am.localToGlobalSign }
func (am *Map) LocalToGlobalBndMap() []int           { return am.localToGlobalBnd }
func (am *Map) LocalToGlobalBndSign() []float64      { return am.localToGlobalBndSign }
func (am *Map) BndCondCoeffsToGlobalMap() []int      { return am.bndCondCoeffsToGlobal }
func (am *Map) BndCondCoeffsToGlobalSign() []float64 { return am.bndCondCoeffsToGlobalSign }
func (am *Map) BndCondTraceToGlobalTraceMap() []int  { return am.bndCondTraceToGlobalTrace }
func (am *Map) GlobalToUniversalMap() []int          { return am.globalToUniversal }
func (am *Map) GlobalToUniversalBndMap() []int       { return am.globalToUniversalBnd }
func (am *Map) GlobalToUniversalBndMapUnique() []int { return am.globalToUniversalBndUnique }

// BndCondCoeffs returns the global ids and signs of the coefficients of
// boundary condition facet i
func (am *Map) BndCondCoeffs(i int) (ids []int, signs []float64) {
	lo, hi := am.bndCondOffsets[i], am.bndCondOffsets[i+1]
	return am.bndCondCoeffsToGlobal[lo:hi], am.bndCondCoeffsToGlobalSign[lo:hi]
}

func (am *Map) NumBndCondFacets() int { return len(am.bndCondOffsets) - 1 }

func checkLen(op string, v []float64, n int) {
	if len(v) != n {
		panic(fmt.Errorf("%s: vector length %d, want %d", op, len(v), n))
	}
}

// LocalToGlobal sets glob[map[i]] = sign[i]*loc[i]; shared slots receive
// consistent duplicates, the last write wins
func (am *Map) LocalToGlobal(loc, glob []float64) {
	checkLen("LocalToGlobal local", loc, am.numLocalCoeffs)
	checkLen("LocalToGlobal global", glob, am.numGlobalCoeffs)
	for i, g := range am.localToGlobal {
		glob[g] = am.localToGlobalSign[i] * loc[i]
	}
}

func (am *Map) LocalToGlobalNoSign(loc, glob []float64) {
	checkLen("LocalToGlobalNoSign local", loc, am.numLocalCoeffs)
	checkLen("LocalToGlobalNoSign global", glob, am.numGlobalCoeffs)
	for i, g := range am.localToGlobal {
		glob[g] = loc[i]
	}
}

// GlobalToLocal sets loc[i] = sign[i]*glob[map[i]]
func (am *Map) GlobalToLocal(glob, loc []float64) {
	checkLen("GlobalToLocal global", glob, am.numGlobalCoeffs)
	checkLen("GlobalToLocal local", loc, am.numLocalCoeffs)
	for i, g := range am.localToGlobal {
		loc[i] = am.localToGlobalSign[i] * glob[g]
	}
}

func (am *Map) GlobalToLocalNoSign(glob, loc []float64) {
	checkLen("GlobalToLocalNoSign global", glob, am.numGlobalCoeffs)
	checkLen("GlobalToLocalNoSign local", loc, am.numLocalCoeffs)
	for i, g := range am.localToGlobal {
		loc[i] = glob[g]
	}
}

// Assemble zeroes glob, then accumulates glob[map[i]] += sign[i]*loc[i]
func (am *Map) Assemble(loc, glob []float64) {
	checkLen("Assemble local", loc, am.numLocalCoeffs)
	checkLen("Assemble global", glob, am.numGlobalCoeffs)
	utils.Zero(glob)
	for i, g := range am.localToGlobal {
		glob[g] += am.localToGlobalSign[i] * loc[i]
	}
}

func (am *Map) AssembleNoSign(loc, glob []float64) {
	checkLen("AssembleNoSign local", loc, am.numLocalCoeffs)
	checkLen("AssembleNoSign global", glob, am.numGlobalCoeffs)
	utils.Zero(glob)
	for i, g := range am.localToGlobal {
		glob[g] += loc[i]
	}
}

// UniversalAssemble sums, across partitions, the entries of glob that share
// a universal id. Repeated calls accumulate again.
func (am *Map) UniversalAssemble(ctx context.Context, glob []float64) error {
	checkLen("UniversalAssemble global", glob, am.numGlobalCoeffs)
	return am.comm.GatherScatterSum(ctx, am.globalToUniversal, glob)
}

// AssembleUniversal is Assemble followed by UniversalAssemble
func (am *Map) AssembleUniversal(ctx context.Context, loc, glob []float64) error {
	am.Assemble(loc, glob)
	return am.UniversalAssemble(ctx, glob)
}

// AssembleElmtAtomic adds sign*loc of local element i into glob with per
// entry compare and swap, so elements may be scattered concurrently.
// glob is not zeroed.
func (am *Map) AssembleElmtAtomic(i int, loc, glob []float64) {
	lo, hi := am.offsets[i], am.offsets[i+1]
	checkLen("AssembleElmtAtomic local", loc, hi-lo)
	checkLen("AssembleElmtAtomic global", glob, am.numGlobalCoeffs)
	for j, v := range loc {
		g := am.localToGlobal[lo+j]
		atomicAdd(&glob[g], am.localToGlobalSign[lo+j]*v)
	}
}

func atomicAdd(p *float64, v float64) {
	u := (*uint64)(unsafe.Pointer(p))
	for {
		old := atomic.LoadUint64(u)
		if atomic.CompareAndSwapUint64(u, old, math.Float64bits(math.Float64frombits(old)+v)) {
			return
		}
	}
}

func (am *Map) checkBnd(op string, glob []float64, offset int) {
	if offset < 0 || offset > am.numGlobalBndCoeffs {
		panic(fmt.Errorf("%s: offset %d outside [0, %d]", op, offset, am.numGlobalBndCoeffs))
	}
	checkLen(op+" global", glob, am.numGlobalBndCoeffs-offset)
}

// LocalBndToGlobal sets glob[map[i]-offset] = sign[i]*loc[i] over the local
// boundary coefficients, skipping global ids below offset
func (am *Map) LocalBndToGlobal(loc, glob []float64, offset int) {
	checkLen("LocalBndToGlobal local", loc, am.numLocalBndCoeffs)
	am.checkBnd("LocalBndToGlobal", glob, offset)
	for i, g := range am.localToGlobalBnd {
		if g >= offset {
			glob[g-offset] = am.localToGlobalBndSign[i] * loc[i]
		}
	}
}

// GlobalToLocalBnd gathers boundary values; local entries mapping below
// offset are zeroed
func (am *Map) GlobalToLocalBnd(glob, loc []float64, offset int) {
	am.checkBnd("GlobalToLocalBnd", glob, offset)
	checkLen("GlobalToLocalBnd local", loc, am.numLocalBndCoeffs)
	for i, g := range am.localToGlobalBnd {
		if g >= offset {
			loc[i] = am.localToGlobalBndSign[i] * glob[g-offset]
		} else {
			loc[i] = 0
		}
	}
}

func (am *Map) AssembleBnd(loc, glob []float64, offset int) {
	checkLen("AssembleBnd local", loc, am.numLocalBndCoeffs)
	am.checkBnd("AssembleBnd", glob, offset)
	utils.Zero(glob)
	for i, g := range am.localToGlobalBnd {
		if g >= offset {
			glob[g-offset] += am.localToGlobalBndSign[i] * loc[i]
		}
	}
}

func (am *Map) UniversalAssembleBnd(ctx context.Context, glob []float64, offset int) error {
	am.checkBnd("UniversalAssembleBnd", glob, offset)
	return am.comm.GatherScatterSum(ctx, am.globalToUniversalBnd[offset:], glob)
}

// GlobalToLocalElmt gathers the coefficients of local element i
func (am *Map) GlobalToLocalElmt(i int, glob, loc []float64) {
	lo, hi := am.offsets[i], am.offsets[i+1]
	checkLen("GlobalToLocalElmt local", loc, hi-lo)
	for j := range loc {
		loc[j] = am.localToGlobalSign[lo+j] * glob[am.localToGlobal[lo+j]]
	}
}

// finish computes the derived flags, bandwidth and hash
func (am *Map) finish() {
	for _, s := range am.localToGlobalSign {
		if s != 1 {
			am.signChange = true
			break
		}
	}
	nDir := am.numGlobalDirBndCoeffs
	for i := range am.elements {
		lo, hi := am.bndOffsets[i], am.bndOffsets[i+1]
		gmin, gmax := math.MaxInt, -1
		for _, g := range am.localToGlobalBnd[lo:hi] {
			if g >= nDir {
				gmin, gmax = min(gmin, g), max(gmax, g)
			}
		}
		if gmax >= 0 {
			am.bandwidth = max(am.bandwidth, gmax-gmin)
		}
	}
	var (
		d   = xxhash.New()
		buf [8]byte
	)
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	put(uint64(am.kind))
	put(uint64(am.numGlobalCoeffs))
	put(uint64(nDir))
	for i, g := range am.localToGlobal {
		put(uint64(g))
		put(math.Float64bits(am.localToGlobalSign[i]))
	}
	am.hash = d.Sum64()
}
