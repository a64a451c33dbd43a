package model

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/cwbudde/lensmount/internal/mount"
	"github.com/cwbudde/lensmount/internal/opt"
	"gopkg.in/yaml.v3"
)

type surfaceKind int

const (
	kindStandard surfaceKind = iota
	kindCoordBreak
	kindReturn
	kindDummy
)

type surface struct {
	kind      surfaceKind
	comment   string
	thickness float64
	variable  bool
	params    mount.Params
	pickup    int // source coordinate break of a return surface
}

// meritRow is one operand row of the merit function.
type meritRow struct {
	Op      string
	Comment string
	Surface int
	Target  float64
}

// Merit operand names used by the simulated model.
const (
	opDefault    = "DMFS"
	opBlank      = "BLNK"
	opSpot       = "RSCE"
	opWave       = "RWCE"
	opMinAirGap  = "MNCA"
	opMaxAirGap  = "MXCA"
	noConstraint = "No air or glass constraints."
)

const (
	simNumericalAperture = 0.1
	simWavelength        = 0.00055 // mm
	simPenaltyWeight     = 100.0

	maxAutoPasses = 8
)

// Prescription is the file format read by Sim.Load.
type Prescription struct {
	Surfaces []PrescriptionSurface `yaml:"surfaces"`
}

// PrescriptionSurface is one surface of a prescription file.
type PrescriptionSurface struct {
	Comment   string  `yaml:"comment"`
	Thickness float64 `yaml:"thickness"`
}

// Sim is an in-memory optical model with a paraxial misalignment merit
// function. Optimise varies the variable thicknesses within their air gap
// constraints.
type Sim struct {
	surfaces     []surface
	nominalTrack float64
	merit        []meritRow
	meritKind    MeritKind
	autoCycles   int
	convergence  opt.ConvergenceConfig
	newOptimizer func(iters int) opt.Optimizer
	loaded       bool
}

// SimOption configures a Sim.
type SimOption func(*Sim)

// WithSurfaces preloads a prescription with the given thicknesses for
// surfaces 0..n. The last surface is the image.
func WithSurfaces(thicknesses ...float64) SimOption {
	return func(s *Sim) {
		p := Prescription{}
		for _, t := range thicknesses {
			p.Surfaces = append(p.Surfaces, PrescriptionSurface{Thickness: t})
		}
		s.setPrescription(p)
	}
}

// WithOptimizer sets the optimiser factory used by Optimise.
func WithOptimizer(factory func(iters int) opt.Optimizer) SimOption {
	return func(s *Sim) {
		if factory != nil {
			s.newOptimizer = factory
		}
	}
}

// WithAutoCycles sets how many iterations each CyclesAuto pass runs.
func WithAutoCycles(n int) SimOption {
	return func(s *Sim) {
		if n > 0 {
			s.autoCycles = n
		}
	}
}

// NewSim creates a simulated model.
func NewSim(opts ...SimOption) *Sim {
	s := &Sim{
		autoCycles:  50,
		convergence: opt.DefaultConvergenceConfig(),
		newOptimizer: func(iters int) opt.Optimizer {
			return opt.NewMayfly(iters, 20, 42)
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sim) setPrescription(p Prescription) {
	s.surfaces = make([]surface, len(p.Surfaces))
	for i, ps := range p.Surfaces {
		s.surfaces[i] = surface{comment: ps.Comment, thickness: ps.Thickness}
	}
	s.merit = nil
	s.meritKind = ""
	s.nominalTrack = s.track()
	s.loaded = len(s.surfaces) >= 2
}

// Load reads a YAML prescription file.
func (s *Sim) Load(_ context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read prescription %s: %w", path, err)
	}

	var p Prescription
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to parse prescription %s: %w", path, err)
	}
	if len(p.Surfaces) < 2 {
		return fmt.Errorf("prescription %s: need at least object and image surfaces", path)
	}

	s.setPrescription(p)
	slog.Debug("Loaded prescription", "path", path, "surfaces", len(s.surfaces))
	return nil
}

func (s *Sim) SurfaceCount(_ context.Context) (int, error) {
	if err := s.checkLoaded(); err != nil {
		return 0, err
	}
	return len(s.surfaces), nil
}

func (s *Sim) Comment(_ context.Context, surf int) (string, error) {
	if err := s.checkSurface(surf); err != nil {
		return "", err
	}
	return s.surfaces[surf].comment, nil
}

func (s *Sim) SetComment(_ context.Context, surf int, comment string, appendTo bool) error {
	if err := s.checkSurface(surf); err != nil {
		return err
	}
	if old := s.surfaces[surf].comment; appendTo && old != "" {
		comment = comment + ";" + old
	}
	s.surfaces[surf].comment = comment
	return nil
}

// InsertTiltDecentre wraps surfaces start..end in a coordinate break pair.
// The air gap after end moves onto a new dummy surface.
func (s *Sim) InsertTiltDecentre(_ context.Context, start, end int, p mount.Params) (Breaks, error) {
	if err := s.checkLoaded(); err != nil {
		return Breaks{}, err
	}
	last := len(s.surfaces) - 1
	if start < 1 || end < start || end >= last {
		return Breaks{}, fmt.Errorf("invalid element range %d-%d (image is surface %d)", start, end, last)
	}

	// Renumber existing references before the three surfaces go in.
	remap := func(r int) int {
		switch {
		case r > end:
			return r + 3
		case r >= start:
			return r + 1
		}
		return r
	}
	for i := range s.merit {
		if s.merit[i].Surface > 0 {
			s.merit[i].Surface = remap(s.merit[i].Surface)
		}
	}
	for i := range s.surfaces {
		if s.surfaces[i].kind == kindReturn {
			s.surfaces[i].pickup = remap(s.surfaces[i].pickup)
		}
	}

	gap := s.surfaces[end].thickness
	s.surfaces[end].thickness = 0

	s.surfaces = slices.Insert(s.surfaces, start, surface{kind: kindCoordBreak, params: p})
	s.surfaces = slices.Insert(s.surfaces, end+2,
		surface{kind: kindReturn, pickup: start},
		surface{kind: kindDummy, thickness: gap},
	)

	return Breaks{Coord: start, Return: end + 2, Dummy: end + 3}, nil
}

func (s *Sim) SetTiltDecentre(_ context.Context, surf int, p mount.Params) error {
	if err := s.checkSurface(surf); err != nil {
		return err
	}
	if s.surfaces[surf].kind != kindCoordBreak {
		return fmt.Errorf("surface %d is not a coordinate break", surf)
	}
	s.surfaces[surf].params = p
	return nil
}

// TiltDecentre returns the parameters of a coordinate break. A return break
// reports the negated parameters of the break it picks up.
func (s *Sim) TiltDecentre(_ context.Context, surf int) (mount.Params, error) {
	if err := s.checkSurface(surf); err != nil {
		return mount.Params{}, err
	}
	if s.surfaces[surf].kind == kindReturn {
		p := s.surfaces[s.surfaces[surf].pickup].params
		return mount.Params{XDecentre: -p.XDecentre, YDecentre: -p.YDecentre, XTilt: -p.XTilt, YTilt: -p.YTilt}, nil
	}
	return s.surfaces[surf].params, nil
}

func (s *Sim) Thickness(_ context.Context, surf int) (float64, error) {
	if err := s.checkSurface(surf); err != nil {
		return 0, err
	}
	return s.surfaces[surf].thickness, nil
}

func (s *Sim) SetThicknessVariable(_ context.Context, surf int) error {
	if err := s.checkSurface(surf); err != nil {
		return err
	}
	s.surfaces[surf].variable = true
	return nil
}

// CreateMerit builds the default merit function for kind.
func (s *Sim) CreateMerit(_ context.Context, kind MeritKind) error {
	if err := s.checkLoaded(); err != nil {
		return err
	}

	op := opSpot
	if kind == MeritWave {
		op = opWave
	} else if kind != MeritSpot {
		return fmt.Errorf("unknown merit function kind %q", kind)
	}

	s.meritKind = kind
	s.merit = []meritRow{
		{Op: opDefault, Comment: "Default merit function"},
		{Op: opBlank, Comment: noConstraint},
		{Op: opBlank, Comment: "Sequential merit function"},
		{Op: op},
	}
	return nil
}

// FindMeritRow returns the 1-based number of the first row with op whose
// comment contains comment.
func (s *Sim) FindMeritRow(_ context.Context, op, comment string) (int, error) {
	for i, r := range s.merit {
		if r.Op == op && strings.Contains(r.Comment, comment) {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q", ErrMeritRowNotFound, op, comment)
}

func (s *Sim) DeleteMeritRow(_ context.Context, row int) error {
	if row < 1 || row > len(s.merit) {
		return fmt.Errorf("merit row %d out of range (1-%d)", row, len(s.merit))
	}
	s.merit = slices.Delete(s.merit, row-1, row)
	return nil
}

func (s *Sim) InsertAirGapConstraint(_ context.Context, row, surf int, minGap, maxGap float64) error {
	if err := s.checkSurface(surf); err != nil {
		return err
	}
	if row < 1 || row > len(s.merit)+1 {
		return fmt.Errorf("merit row %d out of range (1-%d)", row, len(s.merit)+1)
	}
	s.merit = slices.Insert(s.merit, row-1,
		meritRow{Op: opMinAirGap, Surface: surf, Target: minGap},
		meritRow{Op: opMaxAirGap, Surface: surf, Target: maxGap},
	)
	return nil
}

// Push is a no-op: edits apply immediately.
func (s *Sim) Push(_ context.Context) error {
	return s.checkLoaded()
}

// Optimise returns the merit value after running cycles optimiser iterations
// over the variable thicknesses.
func (s *Sim) Optimise(ctx context.Context, cycles int) (float64, error) {
	if s.meritKind == "" {
		return 0, fmt.Errorf("merit function not defined")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	vars := s.variables()
	if cycles == CyclesNone || len(vars) == 0 {
		return s.evaluate(), nil
	}

	lower := make([]float64, len(vars))
	upper := make([]float64, len(vars))
	for i, surf := range vars {
		lower[i], upper[i] = s.bounds(surf)
	}

	startCost := s.evaluate()
	if cycles != CyclesAuto {
		s.optimisePass(vars, lower, upper, cycles)
		slog.Debug("Simulated optimisation complete", "variables", len(vars), "iterations", cycles, "start", startCost, "merit", s.evaluate())
		return s.evaluate(), nil
	}

	// Automatic cycles refine in passes, halving the search box around the
	// current thicknesses until the merit value stops improving.
	minLower, maxUpper := slices.Clone(lower), slices.Clone(upper)
	tracker := opt.NewConvergenceTracker(s.convergence)
	for pass := 0; pass < maxAutoPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if tracker.Update(s.optimisePass(vars, lower, upper, s.autoCycles)) {
			break
		}
		for i, surf := range vars {
			t := s.surfaces[surf].thickness
			quarter := (upper[i] - lower[i]) / 4
			lower[i] = math.Max(minLower[i], t-quarter)
			upper[i] = math.Min(maxUpper[i], t+quarter)
		}
	}

	slog.Debug("Simulated optimisation complete", "variables", len(vars), "passes", tracker.Passes(), "start", startCost, "merit", s.evaluate())
	return s.evaluate(), nil
}

// optimisePass runs one optimiser pass over vars and returns the resulting
// merit value. The current thicknesses are kept if the optimiser does not
// beat them.
func (s *Sim) optimisePass(vars []int, lower, upper []float64, iters int) float64 {
	saved := make([]float64, len(vars))
	for i, surf := range vars {
		saved[i] = s.surfaces[surf].thickness
	}
	objective := func(x []float64) float64 {
		for i, surf := range vars {
			s.surfaces[surf].thickness = x[i]
		}
		return s.evaluate()
	}

	startCost := s.evaluate()
	best, bestCost := s.newOptimizer(iters).Run(objective, lower, upper, len(vars))
	if bestCost > startCost {
		best, bestCost = saved, startCost
	}
	for i, surf := range vars {
		s.surfaces[surf].thickness = best[i]
	}
	return bestCost
}

func (s *Sim) Close() error {
	return nil
}

func (s *Sim) variables() []int {
	var vars []int
	for i, surf := range s.surfaces {
		if surf.variable {
			vars = append(vars, i)
		}
	}
	return vars
}

// bounds returns the optimiser range of a variable thickness: its air gap
// constraints if any, otherwise zero to twice its current value.
func (s *Sim) bounds(surf int) (float64, float64) {
	lo, hi := 0.0, 2*s.surfaces[surf].thickness+1
	for _, r := range s.merit {
		if r.Surface != surf {
			continue
		}
		switch r.Op {
		case opMinAirGap:
			lo = r.Target
		case opMaxAirGap:
			hi = r.Target
		}
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func (s *Sim) track() float64 {
	var t float64
	for i := 1; i < len(s.surfaces)-1; i++ {
		t += s.surfaces[i].thickness
	}
	return t
}

// evaluate computes the merit value of the current state.
//
// Every coordinate break displaces the image by its decentre plus the tilt
// projected over the distance to the image. Defocus is the change in total
// track. Air gap rows add a quadratic penalty when violated.
func (s *Sim) evaluate() float64 {
	var ex, ey float64
	for i, surf := range s.surfaces {
		if surf.kind != kindCoordBreak {
			continue
		}
		var lever float64
		for j := i; j < len(s.surfaces)-1; j++ {
			lever += s.surfaces[j].thickness
		}
		p := surf.params
		ex += p.XDecentre + math.Tan(p.YTilt*math.Pi/180)*lever
		ey += p.YDecentre + math.Tan(p.XTilt*math.Pi/180)*lever
	}

	lateral := math.Hypot(ex, ey)
	defocus := s.track() - s.nominalTrack

	var primary float64
	switch s.meritKind {
	case MeritWave:
		na := simNumericalAperture
		primary = math.Hypot(lateral*na, defocus*na*na/2) / simWavelength
	default:
		primary = math.Hypot(lateral, defocus*simNumericalAperture)
	}

	var penalty float64
	for _, r := range s.merit {
		if r.Surface <= 0 || r.Surface >= len(s.surfaces) {
			continue
		}
		t := s.surfaces[r.Surface].thickness
		switch {
		case r.Op == opMinAirGap && t < r.Target:
			penalty += simPenaltyWeight * (r.Target - t) * (r.Target - t)
		case r.Op == opMaxAirGap && t > r.Target:
			penalty += simPenaltyWeight * (t - r.Target) * (t - r.Target)
		}
	}

	return math.Sqrt(primary*primary + penalty)
}

func (s *Sim) checkLoaded() error {
	if !s.loaded {
		return fmt.Errorf("no model loaded")
	}
	return nil
}

func (s *Sim) checkSurface(surf int) error {
	if err := s.checkLoaded(); err != nil {
		return err
	}
	if surf < 0 || surf >= len(s.surfaces) {
		return fmt.Errorf("surface %d out of range (0-%d)", surf, len(s.surfaces)-1)
	}
	return nil
}
