package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	persistlog "multigrid.ai/internal/persistence/log"
	"multigrid.ai/internal/sim/tuning"
)

func main() {
	var (
		dataDir      = flag.String("data", "./data", "runtime data directory containing ticks/")
		file         = flag.String("file", "", "replay a single ticks-*.jsonl.zst file instead of the whole data dir")
		episode      = flag.String("episode", "", "only verify this episode id (optional)")
		tuningPath   = flag.String("tuning", "", "tuning.yaml whose shaping block produced the log (needed with -check_rewards)")
		checkRewards = flag.Bool("check_rewards", false, "also compare per-agent rewards")
	)
	flag.Parse()

	base := tuning.Defaults()
	if *tuningPath != "" {
		t, err := tuning.Load(*tuningPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		base = t
	}

	files := []string{*file}
	if *file == "" {
		var err error
		files, err = persistlog.ListTickFiles(*dataDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list tick logs:", err)
			os.Exit(1)
		}
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick logs found in", *dataDir)
		os.Exit(1)
	}

	r := &replayer{base: base, checkRewards: *checkRewards, episode: *episode}
	for _, path := range files {
		if err := persistlog.ReadTickFile(path, r.apply); err != nil {
			var d *Divergence
			if errors.As(err, &d) {
				fmt.Printf("DIVERGED episode=%s tick=%d field=%s\n  got:  %s\n  want: %s\n", d.Episode, d.Tick, d.Field, d.Got, d.Want)
				os.Exit(3)
			}
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: episodes=%d checked=%d skipped=%d files=%d\n", r.episodes, r.checked, r.skipped, len(files))
}
