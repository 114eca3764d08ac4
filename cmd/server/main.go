// Command server loads a marker-list snapshot and serves the merge
// engine's HTTP API over it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/azybler/markermerge/pkg/api"
	"github.com/azybler/markermerge/pkg/marker"
	"github.com/azybler/markermerge/pkg/markerlist"
)

func main() {
	dataPath := flag.String("data", "", "path to a marker snapshot file (empty = start with an empty list)")
	port := flag.Int("port", 8080, "HTTP port")
	apiKey := flag.String("api-key", "", "require this value in the X-Api-Key header (empty = no auth)")
	markerKind := flag.String("kind", "circle", "marker footprint kind for a fresh list: circle or square")
	scale := flag.Float64("scale", 1.0, "marker footprint scale for a fresh list")
	flag.Parse()

	start := time.Now()

	var list *markerlist.List
	if *dataPath != "" {
		log.Printf("server: loading snapshot from %s...", *dataPath)
		loaded, err := markerlist.ReadBinary(*dataPath)
		if err != nil {
			log.Fatalf("server: failed to load snapshot: %v", err)
		}
		list = loaded
		log.Printf("server: loaded %d markers", list.Len())
	} else {
		kind := marker.Circle
		if *markerKind == "square" {
			kind = marker.Square
		}
		list = markerlist.New(marker.NewInfo(kind, *scale))
		log.Printf("server: starting with an empty marker list")
	}

	// Reclaim memory from snapshot-loading temporaries before accepting
	// traffic, the same way preprocessing a large graph would.
	runtime.GC()
	debug.FreeOSMemory()

	log.Printf("server: ready in %s", time.Since(start).Round(time.Millisecond))

	addr := fmt.Sprintf(":%d", *port)
	cfg := api.DefaultConfig(addr)
	cfg.APIKey = *apiKey

	handlers := api.NewHandlers(list)
	srv := api.NewServer(cfg, handlers)

	if err := api.ListenAndServe(context.Background(), srv, cfg); err != nil {
		log.Printf("server: stopped: %v", err)
		os.Exit(1)
	}
}
