// Command visualize renders a marker snapshot (optionally after running a
// merge pass) as a standalone SVG file: each live marker as a circle or
// square, each merge-tree edge as a line from a merged marker (surviving
// or later absorbed) back to the two markers it was formed from.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/azybler/markermerge/pkg/marker"
	"github.com/azybler/markermerge/pkg/markerlist"
)

func main() {
	in := flag.String("in", "markers.bin", "input marker snapshot path")
	out := flag.String("out", "markers.svg", "output SVG path")
	doMerge := flag.Bool("merge", false, "run a merge pass before rendering")
	flag.Parse()

	list, err := markerlist.ReadBinary(*in)
	if err != nil {
		log.Fatalf("visualize: read snapshot: %v", err)
	}
	if *doMerge {
		if err := list.Merge(); err != nil {
			log.Fatalf("visualize: merge: %v", err)
		}
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("visualize: create output: %v", err)
	}
	defer f.Close()

	if err := render(f, list); err != nil {
		log.Fatalf("visualize: render: %v", err)
	}
	log.Printf("visualize: wrote %s", *out)
}

func render(f *os.File, list *markerlist.List) error {
	minX, minY, maxX, maxY := extent(list)
	const pad = 10.0
	width := maxX - minX + 2*pad
	height := maxY - minY + 2*pad

	if _, err := fmt.Fprintf(f, "<svg xmlns=\"http://www.w3.org/2000/svg\" viewBox=\"%.2f %.2f %.2f %.2f\">\n",
		minX-pad, minY-pad, width, height); err != nil {
		return err
	}

	// Draw merge-tree edges first, underneath the marker shapes.
	for i := 0; i < list.Len(); i++ {
		p, err := list.Parts(i)
		if err != nil {
			return err
		}
		if p.Kind != markerlist.Root && p.Kind != markerlist.Merged {
			continue
		}
		m, _ := list.Marker(i)
		a, _ := list.Marker(p.A)
		b, _ := list.Marker(p.B)
		emitSegment(f, &m, &a)
		emitSegment(f, &m, &b)
	}

	for i := 0; i < list.Len(); i++ {
		deleted, _ := list.Deleted(i)
		if deleted {
			continue
		}
		m, _ := list.Marker(i)
		emitMarker(f, &m, list.Info().Kind, i)
	}

	_, err := fmt.Fprintln(f, "</svg>")
	return err
}

func extent(list *markerlist.List) (minX, minY, maxX, maxY float64) {
	first := true
	for i := 0; i < list.Len(); i++ {
		deleted, _ := list.Deleted(i)
		if deleted {
			continue
		}
		m, _ := list.Marker(i)
		if first {
			minX, maxX = m.West(), m.East()
			minY, maxY = m.South(), m.North()
			first = false
			continue
		}
		if v := m.West(); v < minX {
			minX = v
		}
		if v := m.East(); v > maxX {
			maxX = v
		}
		if v := m.South(); v < minY {
			minY = v
		}
		if v := m.North(); v > maxY {
			maxY = v
		}
	}
	return
}

func emitSegment(f *os.File, a, b *marker.Marker) {
	fmt.Fprintf(f, "  <line x1=\"%.2f\" y1=\"%.2f\" x2=\"%.2f\" y2=\"%.2f\" stroke=\"lightgray\" stroke-width=\"0.5\" />\n",
		a.X, a.Y, b.X, b.Y)
}

func emitMarker(f *os.File, m *marker.Marker, kind marker.Kind, index int) {
	if kind == marker.Square {
		fmt.Fprintf(f, "  <rect x=\"%.2f\" y=\"%.2f\" width=\"%.2f\" height=\"%.2f\" fill=\"none\" stroke=\"steelblue\"><title>%d</title></rect>\n",
			m.West(), m.South(), 2*m.R, 2*m.R, index)
		return
	}
	fmt.Fprintf(f, "  <circle cx=\"%.2f\" cy=\"%.2f\" r=\"%.2f\" fill=\"none\" stroke=\"steelblue\"><title>%d</title></circle>\n",
		m.X, m.Y, m.R, index)
}
