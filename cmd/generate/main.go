// Command generate produces a marker snapshot of randomly placed markers,
// for exercising the merge engine and HTTP API without a real data feed.
package main

import (
	"flag"
	"log"
	"math/rand"
	"time"

	"github.com/azybler/markermerge/pkg/marker"
	"github.com/azybler/markermerge/pkg/markerlist"
)

func main() {
	out := flag.String("out", "markers.bin", "output snapshot path")
	count := flag.Int("n", 1000, "number of markers to generate")
	width := flag.Float64("width", 1024, "x extent of the generated field")
	height := flag.Float64("height", 760, "y extent of the generated field")
	minSize := flag.Int("min-size", 1, "minimum marker population size")
	maxSize := flag.Int("max-size", 8, "exclusive upper bound on marker population size")
	kindFlag := flag.String("kind", "circle", "marker footprint kind: circle or square")
	scale := flag.Float64("scale", 1.0, "marker footprint scale")
	seed := flag.Int64("seed", 0, "random seed (0 = derive from current time)")
	flag.Parse()

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	log.Printf("generate: seed=%d", s)
	r := rand.New(rand.NewSource(s))

	kind := marker.Circle
	if *kindFlag == "square" {
		kind = marker.Square
	}
	info := marker.NewInfo(kind, *scale)
	list := markerlist.New(info)

	sizeRange := *maxSize - *minSize
	if sizeRange < 1 {
		sizeRange = 1
	}
	for i := 0; i < *count; i++ {
		x := *width * r.Float64()
		y := *height * r.Float64()
		size := float64(*minSize + r.Intn(sizeRange))
		list.Add(x, y, size)
	}

	if err := list.WriteBinary(*out); err != nil {
		log.Fatalf("generate: write snapshot: %v", err)
	}
	log.Printf("generate: wrote %d markers to %s", list.Len(), *out)
}
