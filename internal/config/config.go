// Package config reads bhtree's INI configuration files.
package config

import (
	"fmt"
	"strings"

	"gopkg.in/gcfg.v1"

	"github.com/quillaja/bhtree/internal/logger"
	"github.com/quillaja/bhtree/internal/tree"
)

// TreeConfig is the [Tree] section.
type TreeConfig struct {
	Theta         float64
	Criterion     string
	UseQuad       bool
	RootSize      float64
	MaxDepth      int
	ParallelDepth int
}

// RunConfig is the [Run] section. It describes the scattered bodies the
// command line tool builds trees from and how many steps to run.
type RunConfig struct {
	Bodies   int
	Clusters int
	Spread   float64
	Seed     int64
	Steps    int
	Dt       float64
	Workers  int
}

// StoreConfig is the [Store] section. An empty Path disables the ledger.
type StoreConfig struct {
	Path      string
	DumpNodes bool
}

// LogConfig is the [Log] section.
type LogConfig struct {
	Level string
}

// Wrapper is the whole file.
type Wrapper struct {
	Tree  TreeConfig
	Run   RunConfig
	Store StoreConfig
	Log   LogConfig
}

// Default returns a wrapper holding every default value. Values read from
// a file are layered on top of it.
func Default() *Wrapper {
	opts := tree.DefaultOptions()
	return &Wrapper{
		Tree: TreeConfig{
			Theta:         opts.Theta,
			Criterion:     opts.Criterion.String(),
			UseQuad:       opts.UseQuad,
			RootSize:      opts.RootSize,
			MaxDepth:      opts.MaxDepth,
			ParallelDepth: opts.ParallelDepth,
		},
		Run: RunConfig{
			Bodies:   10000,
			Clusters: 2,
			Spread:   1,
			Seed:     1,
			Steps:    10,
			Dt:       0.01,
			Workers:  1,
		},
		Log: LogConfig{Level: "info"},
	}
}

// ReadFile reads fname on top of the defaults and checks the result.
func ReadFile(fname string) (*Wrapper, error) {
	w := Default()
	if err := gcfg.ReadFileInto(w, fname); err != nil {
		return nil, err
	}
	if err := w.CheckInit(); err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}
	return w, nil
}

// ReadString is ReadFile for configuration text held in memory.
func ReadString(str string) (*Wrapper, error) {
	w := Default()
	if err := gcfg.ReadStringInto(w, str); err != nil {
		return nil, err
	}
	if err := w.CheckInit(); err != nil {
		return nil, err
	}
	return w, nil
}

// CheckInit validates every section.
func (w *Wrapper) CheckInit() error {
	if err := w.Tree.CheckInit(); err != nil {
		return err
	}
	if err := w.Run.CheckInit(); err != nil {
		return err
	}
	if !logger.ValidLevel(w.Log.Level) {
		return fmt.Errorf(
			"Log Level must be one of [debug | info | warn | error], but is '%s'",
			w.Log.Level,
		)
	}
	return nil
}

// CheckInit validates the [Tree] section.
func (con *TreeConfig) CheckInit() error {
	if con.Theta < 0 {
		return fmt.Errorf("Theta must be non-negative, but is %g", con.Theta)
	} else if con.RootSize <= 0 {
		return fmt.Errorf("RootSize must be positive, but is %g", con.RootSize)
	} else if con.MaxDepth < 1 {
		return fmt.Errorf("MaxDepth must be at least 1, but is %d", con.MaxDepth)
	} else if con.ParallelDepth < 0 {
		return fmt.Errorf("ParallelDepth must be non-negative, but is %d", con.ParallelDepth)
	}

	if _, err := tree.ParseCriterion(con.Criterion); err != nil {
		return fmt.Errorf(
			"Criterion must be one of [Exact | FixedAngle | MaxCornerDistance | "+
				"OffsetAugmented]. '%s' is not recognized", con.Criterion,
		)
	}
	return nil
}

// Options converts the [Tree] section into tree options.
func (con *TreeConfig) Options() (tree.Options, error) {
	crit, err := tree.ParseCriterion(con.Criterion)
	if err != nil {
		return tree.Options{}, err
	}
	return tree.Options{
		Theta:         con.Theta,
		Criterion:     crit,
		UseQuad:       con.UseQuad,
		RootSize:      con.RootSize,
		MaxDepth:      con.MaxDepth,
		ParallelDepth: con.ParallelDepth,
	}, nil
}

// CheckInit validates the [Run] section.
func (con *RunConfig) CheckInit() error {
	if con.Bodies < 0 {
		return fmt.Errorf("Bodies must be non-negative, but is %d", con.Bodies)
	} else if con.Clusters < 0 {
		return fmt.Errorf("Clusters must be non-negative, but is %d", con.Clusters)
	} else if con.Spread <= 0 {
		return fmt.Errorf("Spread must be positive, but is %g", con.Spread)
	} else if con.Steps < 1 {
		return fmt.Errorf("Steps must be at least 1, but is %d", con.Steps)
	} else if con.Workers < 1 {
		return fmt.Errorf("Workers must be at least 1, but is %d", con.Workers)
	}
	return nil
}

// ExampleConfig is a commented configuration file holding the defaults.
func ExampleConfig() string {
	w := Default()
	var b strings.Builder
	fmt.Fprintf(&b, `[Tree]
# Opening angle. 0 opens every cell.
Theta = %g
# Exact, FixedAngle (BH86), MaxCornerDistance (SW93) or OffsetAugmented.
Criterion = %s
UseQuad = %t
# Starting width of the root cell; it doubles until the bodies fit.
RootSize = %g
MaxDepth = %d
# Levels of the aggregation passes that run in parallel.
ParallelDepth = %d

[Run]
Bodies = %d
Clusters = %d
Spread = %g
Seed = %d
Steps = %d
Dt = %g
Workers = %d

[Store]
# sqlite file for the build ledger. Leave empty to disable.
# Path = builds.sqlite
DumpNodes = %t

[Log]
Level = %s
`,
		w.Tree.Theta, w.Tree.Criterion, w.Tree.UseQuad, w.Tree.RootSize,
		w.Tree.MaxDepth, w.Tree.ParallelDepth,
		w.Run.Bodies, w.Run.Clusters, w.Run.Spread, w.Run.Seed, w.Run.Steps,
		w.Run.Dt, w.Run.Workers,
		w.Store.DumpNodes,
		w.Log.Level,
	)
	return b.String()
}
