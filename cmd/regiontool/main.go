// Command regiontool inspects region container files produced by the
// storage engine.
//
//	regiontool dump <file>    print header and per-chunk block counts
//	regiontool verify <file>  decode fully, exit non-zero on corruption
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"worldvault.gg/internal/gen"
	"worldvault.gg/internal/region"
)

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "dump":
		if err := dump(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "regiontool: %v\n", err)
			os.Exit(1)
		}
	case "verify":
		if err := verify(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "regiontool: %s: %v\n", args[1], err)
			os.Exit(1)
		}
		fmt.Printf("%s: ok\n", args[1])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: regiontool {dump|verify} <file.region>\n")
}

func load(path string) (*region.Region, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return region.Decode(blob)
}

func dump(path string) error {
	reg, err := load(path)
	if err != nil {
		return err
	}
	fmt.Printf("region (%d,%d) height=%d chunks=%d approx_bytes=%d\n",
		reg.Coord.RX, reg.Coord.RZ, reg.Height, reg.ChunkCount(), reg.ApproxBytes())

	keys := make([]region.ChunkKey, 0, reg.ChunkCount())
	for k := range reg.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	for _, k := range keys {
		ch := reg.Chunks[k]
		nonAir := 0
		for _, b := range ch.Blocks {
			if b != gen.BlockAir {
				nonAir++
			}
		}
		fmt.Printf("  chunk (%d,%d) non_air=%d\n", k.CX, k.CZ, nonAir)
	}
	return nil
}

func verify(path string) error {
	_, err := load(path)
	return err
}
