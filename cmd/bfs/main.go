// Command bfs is a thin CLI over the bftw traversal engine: it wires
// cobra/pflag flags to a bftw.Config, installs a callback that prints each
// entry's path and any attached error, and sets the process exit code from
// fserrors.Errored(). The expression language, -printf, and colorized
// output a real find(1) replacement would have are out of scope here; this
// binary exists to exercise bftw and ioq end to end, not to replace bfs(1).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danie-dejager/bfs/bftw"
	"github.com/danie-dejager/bfs/fs/fserrors"
	"github.com/danie-dejager/bfs/lib/rlimit"
)

var (
	threads      int
	strategy     string
	mountPolicy  string
	followPolicy string
	postOrder    bool
	recover_     bool
	minDepth     int
	maxDepth     int
	ioBackend    string
	ringBatch    int
)

func main() {
	root := &cobra.Command{
		Use:           "bfs [paths...]",
		Short:         "Parallel breadth-first directory traversal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	flags := root.Flags()
	flags.IntVarP(&threads, "threads", "j", 4, "number of worker threads")
	flags.StringVarP(&strategy, "strategy", "S", "bfs", "traversal strategy: bfs, dfs, ids, eds")
	flags.StringVarP(&mountPolicy, "mount-policy", "x", "crossing", "mount policy: crossing, no-cross, same-fs")
	flags.StringVarP(&followPolicy, "follow-policy", "H", "physical", "symlink follow policy: physical, comfollow, logical")
	flags.BoolVar(&postOrder, "post-order", false, "also visit directories after their children")
	flags.BoolVar(&recover_, "recover", false, "surface mid-directory readdir errors instead of truncating silently")
	flags.IntVar(&minDepth, "min-depth", 0, "suppress callbacks above this depth")
	flags.IntVar(&maxDepth, "max-depth", -1, "do not descend at or beyond this depth")
	flags.StringVar(&ioBackend, "io-backend", "threadpool", "I/O queue backend: threadpool, ring")
	flags.IntVar(&ringBatch, "ring-batch", 0, "batch size for the ring backend (0: defaults to --threads)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bfs:", err)
		os.Exit(1)
	}
	if fserrors.Errored() {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{"."}
	}

	strat, err := parseStrategy(strategy)
	if err != nil {
		return err
	}
	mount, err := parseMountPolicy(mountPolicy)
	if err != nil {
		return err
	}
	follow, err := parseFollowPolicy(followPolicy)
	if err != nil {
		return err
	}
	backend, err := parseIOBackend(ioBackend)
	if err != nil {
		return err
	}

	capacity, err := rlimit.Capacity()
	if err != nil {
		capacity = 0 // bftw.Walk falls back to its own default.
	}

	var flags bftw.Flags
	if postOrder {
		flags |= bftw.FlagPostOrder
	}
	if recover_ {
		flags |= bftw.FlagRecover
	}
	flags |= bftw.FlagHonorPrune

	cfg := bftw.Config{
		Paths:           args,
		Flags:           flags,
		Strategy:        strat,
		NThreads:        threads,
		MountPolicy:     mount,
		FollowPolicy:    follow,
		MinDepth:        minDepth,
		MaxDepth:        maxDepth,
		FDCacheCapacity: capacity,
		IOBackend:       backend,
		RingBatchSize:   ringBatch,
	}

	_, err = bftw.Walk(cfg, func(e *bftw.Entry) bftw.Control {
		if e.Err != nil {
			fmt.Fprintf(os.Stderr, "bfs: %s: %v\n", e.Path(), fserrors.Count(e.Err))
			return bftw.Continue
		}
		if e.Visit != bftw.PostOrder {
			fmt.Println(e.Path())
		}
		return bftw.Continue
	})
	return err
}

func parseStrategy(s string) (bftw.Strategy, error) {
	switch s {
	case "bfs":
		return bftw.StrategyBFS, nil
	case "dfs":
		return bftw.StrategyDFS, nil
	case "ids":
		return bftw.StrategyIDS, nil
	case "eds":
		return bftw.StrategyEDS, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q", s)
	}
}

func parseMountPolicy(s string) (bftw.MountPolicy, error) {
	switch s {
	case "crossing":
		return bftw.MountCrossing, nil
	case "no-cross":
		return bftw.MountNoCross, nil
	case "same-fs":
		return bftw.MountSameFSAsRoot, nil
	default:
		return 0, fmt.Errorf("unknown mount policy %q", s)
	}
}

func parseIOBackend(s string) (bftw.IOBackend, error) {
	switch s {
	case "threadpool":
		return bftw.BackendThreadPool, nil
	case "ring":
		return bftw.BackendRing, nil
	default:
		return 0, fmt.Errorf("unknown io backend %q", s)
	}
}

func parseFollowPolicy(s string) (bftw.FollowPolicy, error) {
	switch s {
	case "physical":
		return bftw.FollowPhysical, nil
	case "comfollow":
		return bftw.FollowComFollow, nil
	case "logical":
		return bftw.FollowLogical, nil
	default:
		return 0, fmt.Errorf("unknown follow policy %q", s)
	}
}
