package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/quillaja/bhtree/internal/body"
	"github.com/quillaja/bhtree/internal/config"
	"github.com/quillaja/bhtree/internal/logger"
	"github.com/quillaja/bhtree/internal/metrics"
	"github.com/quillaja/bhtree/internal/runner"
	"github.com/quillaja/bhtree/internal/store"
	"github.com/quillaja/bhtree/internal/tree"
)

// cli holds the flags and the configuration they resolve to.
type cli struct {
	configPath  string
	logLevel    string
	metricsAddr string

	con *config.Wrapper
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "bhtree",
		Short: "Build Barnes-Hut octrees over scattered bodies",
		Long: `bhtree scatters bodies in rotating clusters, builds a Barnes-Hut
octree over them every step and reports what the tree looks like.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "",
		"INI configuration file; defaults are used when empty")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "",
		"overrides [Log] Level")

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build one tree and print its statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.build(cmd.Context(), cmd.OutOrStdout())
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Rebuild the tree every step while the bodies drift",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd.Context(), cmd.OutOrStdout())
		},
	}
	runCmd.Flags().StringVar(&c.metricsAddr, "metrics-addr", "",
		"serve Prometheus metrics on this address, e.g. :9100")

	exampleCmd := &cobra.Command{
		Use:   "example-config",
		Short: "Print a configuration file holding the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), config.ExampleConfig())
			return err
		},
	}

	rootCmd.AddCommand(buildCmd, runCmd, exampleCmd)
	return rootCmd
}

func (c *cli) load() error {
	con := config.Default()
	if c.configPath != "" {
		var err error
		if con, err = config.ReadFile(c.configPath); err != nil {
			return err
		}
	}
	if c.logLevel != "" {
		if !logger.ValidLevel(c.logLevel) {
			return fmt.Errorf("unknown log level '%s'", c.logLevel)
		}
		con.Log.Level = c.logLevel
	}
	logger.Init(con.Log.Level)
	c.con = con
	return nil
}

// scatter creates the bodies described by the [Run] section.
func (c *cli) scatter() body.Store {
	run := c.con.Run
	return body.Scatter(run.Bodies, clusterCores(run.Clusters, run.Bodies, run.Spread), run.Spread, run.Seed)
}

func (c *cli) newTree() (*tree.Tree, error) {
	opts, err := c.con.Tree.Options()
	if err != nil {
		return nil, err
	}
	return tree.New(opts), nil
}

func (c *cli) build(ctx context.Context, out io.Writer) error {
	tr, err := c.newTree()
	if err != nil {
		return err
	}
	bodies := c.scatter()
	if err := tr.Build(ctx, bodies); err != nil {
		return err
	}
	printStats(out, tr.Options(), tr.Stats())
	return nil
}

func (c *cli) run(ctx context.Context, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tr, err := c.newTree()
	if err != nil {
		return err
	}
	log := logger.WithComponent("cli")

	// each run gets its own registry so that runs in one process do not
	// register the same collectors twice
	reg := prometheus.NewRegistry()
	r := &runner.Runner{
		Tree:      tr,
		Advancer:  drift(c.con.Run.Dt),
		Metrics:   metrics.New(reg),
		Workers:   c.con.Run.Workers,
		DumpNodes: c.con.Store.DumpNodes,
	}

	if c.metricsAddr != "" {
		srv := &http.Server{Addr: c.metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "error", err)
			}
		}()
		defer srv.Close()
		log.Info("serving metrics", "addr", c.metricsAddr)
	}

	var ledger *store.Store
	if c.con.Store.Path != "" {
		if ledger, err = store.Open(c.con.Store.Path); err != nil {
			return err
		}
		defer ledger.Close()
		r.Recorder = ledger
	}

	// print parameters
	bodies := c.scatter()
	opts := tr.Options()
	fmt.Fprintf(out, "bodies: %d\nclusters: %d\ncriterion: %s\ntheta: %g\nquad: %t\nsteps: %d\nledger: %q\n",
		len(bodies),
		c.con.Run.Clusters,
		opts.Criterion,
		opts.Theta,
		opts.UseQuad,
		c.con.Run.Steps,
		c.con.Store.Path)

	start := time.Now()
	if err := r.Run(ctx, bodies, c.con.Run.Steps); err != nil {
		return err
	}

	if ledger != nil {
		if err := ledger.CreateIndices(); err != nil {
			return err
		}
	}
	printStats(out, opts, tr.Stats())
	fmt.Fprintf(out, "Done. Took %s\n", time.Since(start).Truncate(time.Millisecond))
	return nil
}

// drift moves the bodies along their velocities. Force evaluation is not
// part of this tool, so the tree is only built and never walked here.
func drift(dt float64) runner.Advancer {
	return runner.AdvanceFunc(func(_ context.Context, _ *tree.Tree, bodies body.Store) error {
		bodies.Drift(dt)
		return nil
	})
}

// clusterCores spaces n heavy cores evenly on a ring in the xy plane. The
// cores carry a tenth of the scattered mass between them and spin about z.
func clusterCores(n, bodies int, spread float64) []body.Core {
	if n == 0 {
		return nil
	}
	cores := make([]body.Core, n)
	mass := math.Max(float64(bodies)/10/float64(n), 1)
	radius := 0.0
	if n > 1 {
		radius = 8 * spread
	}
	for i := range cores {
		a := 2 * math.Pi * float64(i) / float64(n)
		cores[i] = body.Core{
			Mass: mass,
			Pos:  mgl64.Vec3{radius * math.Cos(a), radius * math.Sin(a), 0},
			Axis: mgl64.Vec3{0, 0, 1},
		}
	}
	return cores
}

func printStats(out io.Writer, opts tree.Options, st tree.Stats) {
	fmt.Fprintf(out, "criterion: %s\nbodies: %d\ncells: %d (%d allocated)\nmax level: %d\nroot size: %g\nmass: %.4f\ncenter of mass: [%.4f, %.4f, %.4f]\nbuild: %s\n",
		opts.Criterion,
		st.Bodies,
		st.Cells,
		st.Allocated,
		st.MaxLevel,
		st.RootSize,
		st.Mass,
		st.COM[0], st.COM[1], st.COM[2],
		st.Elapsed.Truncate(time.Microsecond))
}
