// Package main provides a command-line utility that lists the object
// hierarchy of an HDF5 file, with optional per-dataset detail and a
// summary line.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	hdf5 "github.com/scigolib/h5core"
)

func main() {
	verbose := flag.Bool("v", false, "Show dataset shapes, types, layouts and filters")
	stats := flag.Bool("s", false, "Print a summary line after the listing")
	debug := flag.Bool("d", false, "Trace parsing to stderr")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Usage: h5ls [flags] <file.h5>")
		fmt.Println("Flags:")
		flag.PrintDefaults()
		return
	}

	var opts []hdf5.Option
	if *debug {
		opts = append(opts, hdf5.WithDebug(os.Stderr))
	}
	f, err := hdf5.Open(args[0], opts...)
	if err != nil {
		log.Fatalf("Failed to open file: %v", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close file: %v", err)
		}
	}()

	err = f.Walk(func(info hdf5.ObjectInfo) error {
		if info.Kind != hdf5.KindDataset {
			fmt.Printf("%-12s %s\n", info.Kind, info.Path)
			return nil
		}
		if !*verbose {
			fmt.Printf("%-12s %s\n", info.Kind, info.Path)
			return nil
		}
		d, err := f.Dataset(info.Path)
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %s %s\n", info.Kind, info.Path, describe(d))
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to list file: %v", err)
	}

	if *stats {
		st, err := f.SummaryStats()
		if err != nil {
			log.Fatalf("Failed to summarize file: %v", err)
		}
		fmt.Printf("%d groups, %d datasets, %d attributes, %d data bytes\n",
			st.Groups, st.Datasets, st.Attributes, st.DataBytes)
	}
}

func describe(d *hdf5.Dataset) string {
	dt := d.Datatype()
	parts := []string{
		fmt.Sprintf("shape=%v", d.Shape()),
		fmt.Sprintf("type=%s(%d)", dt.Class, dt.Size),
		fmt.Sprintf("layout=%s", layoutName(d.Layout())),
	}
	if chunks := d.ChunkShape(); len(chunks) > 0 {
		parts = append(parts, fmt.Sprintf("chunks=%v", chunks))
	}
	for _, fi := range d.Filters() {
		parts = append(parts, "filter="+fi.Name)
	}
	return strings.Join(parts, " ")
}

func layoutName(l hdf5.Layout) string {
	switch l {
	case hdf5.LayoutCompact:
		return "compact"
	case hdf5.LayoutChunked:
		return "chunked"
	default:
		return "contiguous"
	}
}
