package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"multigrid.ai/internal/persistence/archive"
	"multigrid.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "archives":
			archivesCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "reset":
			postCmd("reset", os.Args[2:])
			return
		case "close":
			postCmd("close", os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints every episode with periodic snapshots and its newest tick.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "snapshots")
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files := snapshotFiles(filepath.Join(base, e.Name()))
		if len(files) == 0 {
			continue
		}
		h, err := snapshot.ReadHeader(files[len(files)-1])
		if err != nil {
			fmt.Printf("%s\tsnapshots=%d\terror=%v\n", e.Name(), len(files), err)
			continue
		}
		fmt.Printf("%s\tscenario=%s\tsnapshots=%d\tlatest_tick=%d\n", e.Name(), h.Scenario, len(files), h.Tick)
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	path := fs.String("snapshot", "", "path to .snap.zst")
	render := fs.Bool("render", true, "draw the grid")
	_ = fs.Parse(args)

	if strings.TrimSpace(*path) == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d episode=%s scenario=%s tick=%d/%d seed=%d size=%dx%d cells=%d agents=%d relays=%d\n",
		snap.Header.Version, snap.Header.Episode, snap.Header.Scenario, snap.StepCount, snap.MaxSteps, snap.Seed,
		snap.Width, snap.Height, len(snap.Cells), len(snap.Agents), len(snap.Relays))
	for _, a := range snap.Agents {
		carrying := "-"
		if a.Carrying != nil {
			carrying = strings.TrimSpace(a.Carrying.Color + " " + a.Carrying.Kind)
		}
		fmt.Printf("  %s pos=(%d,%d) dir=%d carrying=%s done=%v\n", a.ID, a.X, a.Y, a.Dir, carrying, a.Done)
	}
	for _, r := range snap.Relays {
		fmt.Printf("  relay %s %s %v->%v state=%d deliveries=%d\n", r.ID, r.Kind, r.Source, r.Dest, r.State, r.Deliveries)
	}
	if *render {
		fmt.Print(renderASCII(snap))
	}
}

func archivesCmd(args []string) {
	fs := flag.NewFlagSet("archives", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "archives"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := archive.ReadMeta(*dataDir, e.Name())
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", e.Name(), err)
			continue
		}
		printJSON(m)
	}
}

func snapshotFiles(dir string) []string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".snap.zst") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	// Zero-padded tick names sort numerically.
	sort.Strings(out)
	return out
}
