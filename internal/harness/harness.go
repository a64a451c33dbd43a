// Package harness drives a complete mount selection run: it prepares the
// optical model, scores every mount combination and re-applies the winner.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cwbudde/lensmount/internal/lens"
	"github.com/cwbudde/lensmount/internal/model"
	"github.com/cwbudde/lensmount/internal/mount"
)

// DefaultMaxTuples caps the number of raw tuples a run may enumerate.
const DefaultMaxTuples = 1_000_000

// ErrTooManyTuples is returned when a configuration would enumerate more
// tuples than Options.MaxTuples allows.
var ErrTooManyTuples = errors.New("too many mount combinations")

// Options controls a run.
type Options struct {
	AxisType        string
	Cycles          int
	Merit           model.MeritKind
	VariableAirGaps bool
	MaxTuples       int

	// BaseDir resolves a relative model file, normally the directory of the
	// lens configuration.
	BaseDir string
}

// DefaultOptions matches the behaviour of a run without flags.
func DefaultOptions() Options {
	return Options{
		AxisType:  lens.DefaultAxisType,
		Cycles:    model.CyclesNone,
		Merit:     model.MeritSpot,
		MaxTuples: DefaultMaxTuples,
	}
}

func (o Options) withDefaults() Options {
	if o.AxisType == "" {
		o.AxisType = lens.DefaultAxisType
	}
	if o.Merit == "" {
		o.Merit = model.MeritSpot
	}
	if o.MaxTuples <= 0 {
		o.MaxTuples = DefaultMaxTuples
	}
	return o
}

// Layout records the surfaces inserted for every lens.
type Layout struct {
	CoordBreaks map[string]int // lens label -> coordinate break surface
	Dummies     map[string]int // lens label -> air gap surface
}

// Observer receives progress while combinations are scored.
type Observer interface {
	OnScored(index, total int, c mount.Combination, score float64)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(index, total int, c mount.Combination, score float64)

func (f ObserverFunc) OnScored(index, total int, c mount.Combination, score float64) {
	f(index, total, c, score)
}

// Result is the outcome of a run.
type Result struct {
	Combinations []mount.Combination
	Scores       []float64
	BestIndex    int
	Best         mount.Combination
	BestScore    float64
	// FinalScore is the merit value after the winner was re-applied and
	// optimised once more.
	FinalScore float64
	Layout     *Layout
}

// Prepare loads the model and inserts a coordinate break pair around every
// lens, then builds the merit function with the air gap constraints.
func Prepare(ctx context.Context, m model.Model, cfg *lens.Config, opts Options) (*Layout, error) {
	opts = opts.withDefaults()

	modelPath := cfg.General.ModelFile
	if modelPath == "" {
		return nil, fmt.Errorf("lens configuration does not name a model file")
	}
	if !filepath.IsAbs(modelPath) && opts.BaseDir != "" {
		modelPath = filepath.Join(opts.BaseDir, modelPath)
	}
	if err := m.Load(ctx, modelPath); err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	slog.Info("Adding surface comments", "lenses", len(cfg.Lenses))
	for _, l := range cfg.Lenses {
		for surf := l.StartSurface; surf <= l.EndSurface; surf++ {
			if err := m.SetComment(ctx, surf, l.Label, true); err != nil {
				return nil, fmt.Errorf("failed to comment surface %d of %s: %w", surf, l.Label, err)
			}
		}
	}

	layout := &Layout{
		CoordBreaks: make(map[string]int, len(cfg.Lenses)),
		Dummies:     make(map[string]int, len(cfg.Lenses)),
	}

	// Every insertion shifts the surfaces behind it, so lenses go in front to back.
	offset := 0
	for _, l := range cfg.SortedByStart() {
		start, end := l.StartSurface+offset, l.EndSurface+offset
		br, err := m.InsertTiltDecentre(ctx, start, end, mount.Params{})
		if err != nil {
			return nil, fmt.Errorf("failed to add coordinate breaks for %s: %w", l.Label, err)
		}
		layout.CoordBreaks[l.Label] = br.Coord
		layout.Dummies[l.Label] = br.Dummy
		offset += br.Dummy - end
		slog.Debug("Added coordinate breaks", "label", l.Label, "coord", br.Coord, "return", br.Return, "dummy", br.Dummy)
	}

	// Comments move with their surfaces, so every lens must now start right
	// behind its coordinate break.
	for _, l := range cfg.Lenses {
		first, err := model.FindSurfaceByComment(ctx, m, l.Label)
		if err != nil {
			return nil, fmt.Errorf("failed to locate %s after inserting coordinate breaks: %w", l.Label, err)
		}
		if first != layout.CoordBreaks[l.Label]+1 {
			return nil, fmt.Errorf("%s starts at surface %d, expected %d", l.Label, first, layout.CoordBreaks[l.Label]+1)
		}
	}

	if opts.VariableAirGaps {
		slog.Info("Setting air gaps as variable")
		for _, l := range cfg.Lenses {
			if err := m.SetThicknessVariable(ctx, layout.Dummies[l.Label]); err != nil {
				return nil, fmt.Errorf("failed to make air gap of %s variable: %w", l.Label, err)
			}
		}
	}

	slog.Info("Creating merit function", "merit", opts.Merit)
	if err := m.CreateMerit(ctx, opts.Merit); err != nil {
		return nil, fmt.Errorf("failed to create merit function: %w", err)
	}

	row, err := m.FindMeritRow(ctx, "BLNK", "No air or glass constraints.")
	if err != nil {
		return nil, fmt.Errorf("failed to find air gap placeholder: %w", err)
	}
	if err := m.DeleteMeritRow(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to delete air gap placeholder: %w", err)
	}
	for _, l := range cfg.Lenses {
		if err := m.InsertAirGapConstraint(ctx, row, layout.Dummies[l.Label], l.MinAirGap, l.MaxAirGap); err != nil {
			return nil, fmt.Errorf("failed to set air gap constraints of %s: %w", l.Label, err)
		}
	}

	return layout, nil
}

// Plan enumerates the combinations of cfg and checks that each of them has
// axis data. It makes no model calls.
func Plan(cfg *lens.Config, opts Options) ([]mount.Combination, error) {
	opts = opts.withDefaults()
	groups := cfg.Groups()

	if n := mount.TupleCount(groups); n > opts.MaxTuples {
		return nil, fmt.Errorf("%w: %d tuples exceed the limit of %d", ErrTooManyTuples, n, opts.MaxTuples)
	}

	combos := mount.Enumerate(groups)
	if len(combos) == 0 {
		return nil, mount.ErrNoValidCombinations
	}

	for _, c := range combos {
		if err := mount.Resolve(c, opts.AxisType); err != nil {
			return nil, err
		}
	}
	return combos, nil
}

// Run scores every mount combination of cfg on m and leaves the model set to
// the best one. obs may be nil.
func Run(ctx context.Context, m model.Model, cfg *lens.Config, opts Options, obs Observer) (*Result, error) {
	opts = opts.withDefaults()

	combos, err := Plan(cfg, opts)
	if err != nil {
		return nil, err
	}
	slog.Info("Enumerated mount combinations", "combinations", len(combos), "axis", opts.AxisType)

	layout, err := Prepare(ctx, m, cfg, opts)
	if err != nil {
		return nil, err
	}

	sess := model.NewSession(m, layout.CoordBreaks, opts.Cycles)
	total := len(combos)
	scores, err := mount.ScoreAll(ctx, sess, combos, opts.AxisType, func(i int, c mount.Combination, score float64) {
		slog.Info("Scored combination", "index", i, "combination", c.String(), "score", score)
		if obs != nil {
			obs.OnScored(i, total, c, score)
		}
	})
	if err != nil {
		return nil, err
	}

	idx, best, bestScore, err := mount.SelectBest(combos, scores)
	if err != nil {
		return nil, err
	}
	slog.Info("Selected best combination", "index", idx, "combination", best.String(), "score", bestScore)

	final, err := mount.Score(ctx, sess, best, opts.AxisType)
	if err != nil {
		return nil, fmt.Errorf("failed to re-apply best combination: %w", err)
	}

	return &Result{
		Combinations: combos,
		Scores:       scores,
		BestIndex:    idx,
		Best:         best,
		BestScore:    bestScore,
		FinalScore:   final,
		Layout:       layout,
	}, nil
}

// Applied is the model state after Apply.
type Applied struct {
	Score  float64
	Layout *Layout
	// Params are read back from the coordinate break of every lens.
	Params map[string]mount.Params
}

// Apply prepares the model and applies a single stored combination to it,
// then runs the configured optimisation cycles.
func Apply(ctx context.Context, m model.Model, cfg *lens.Config, opts Options, tags []mount.Tag) (*Applied, error) {
	opts = opts.withDefaults()

	combo := make(mount.Combination, 0, len(tags))
	for _, tag := range tags {
		p, err := cfg.Lookup(tag.Label, tag.Position, opts.AxisType)
		if err != nil {
			return nil, err
		}
		combo = append(combo, mount.Candidate{Tag: tag, Axes: map[string]mount.Params{opts.AxisType: p}})
	}

	layout, err := Prepare(ctx, m, cfg, opts)
	if err != nil {
		return nil, err
	}
	score, err := mount.Score(ctx, model.NewSession(m, layout.CoordBreaks, opts.Cycles), combo, opts.AxisType)
	if err != nil {
		return nil, err
	}

	params := make(map[string]mount.Params, len(tags))
	for _, tag := range tags {
		p, err := m.TiltDecentre(ctx, layout.CoordBreaks[tag.Label])
		if err != nil {
			return nil, fmt.Errorf("failed to read back %s: %w", tag.Label, err)
		}
		params[tag.Label] = p
	}
	return &Applied{Score: score, Layout: layout, Params: params}, nil
}
