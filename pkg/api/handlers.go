package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/azybler/markermerge/pkg/cluster"
	"github.com/azybler/markermerge/pkg/marker"
	"github.com/azybler/markermerge/pkg/markerlist"
)

// Handlers binds a single marker list to a set of HTTP routes. All
// mutating operations take an exclusive lock: the merge engine itself is
// single-threaded and not meant to be invoked concurrently on the same
// list.
type Handlers struct {
	mu   sync.Mutex
	list *markerlist.List
}

// NewHandlers creates Handlers around an existing list.
func NewHandlers(list *markerlist.List) *Handlers {
	return &Handlers{list: list}
}

// Register wires every route onto mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /api/v1/stats", h.handleStats)
	mux.HandleFunc("POST /api/v1/markers", h.handleAddMarker)
	mux.HandleFunc("GET /api/v1/markers/{index}", h.handleGetMarker)
	mux.HandleFunc("GET /api/v1/markers/{index}/parts", h.handleGetParts)
	mux.HandleFunc("POST /api/v1/merge", h.handleMerge)
	mux.HandleFunc("POST /api/v1/compress", h.handleCompress)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var liveMarkers []marker.Marker
	for i := 0; i < h.list.Len(); i++ {
		if deleted, _ := h.list.Deleted(i); !deleted {
			m, _ := h.list.Marker(i)
			liveMarkers = append(liveMarkers, m)
		}
	}

	// Cross-check the merge engine's own bookkeeping against a brute-force
	// reference grouping: after a completed merge, no two live markers
	// should share an overlap-graph component (each would mean the engine
	// failed to fold them together).
	clusters := 0
	largest := 0
	if len(liveMarkers) > 0 {
		uf := cluster.Components(h.list.Info(), liveMarkers, len(liveMarkers))
		roots := make(map[int]bool, len(liveMarkers))
		for i := range liveMarkers {
			roots[uf.Find(i)] = true
		}
		clusters = len(roots)
		for root := range roots {
			if s := uf.Size(root); s > largest {
				largest = s
			}
		}
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		TotalMarkers:       h.list.Len(),
		LiveMarkers:        len(liveMarkers),
		MarkerKind:         kindString(h.list.Info().Kind),
		Scale:              h.list.Info().Scale,
		ClusterCount:       clusters,
		LargestClusterSize: largest,
	})
}

func (h *Handlers) handleAddMarker(w http.ResponseWriter, r *http.Request) {
	var req AddMarkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Size < 0 {
		writeError(w, http.StatusBadRequest, "size must be non-negative")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	idx := h.list.Add(req.X, req.Y, req.Size)
	writeJSON(w, http.StatusCreated, AddMarkerResponse{Index: idx})
}

func (h *Handlers) handleGetMarker(w http.ResponseWriter, r *http.Request) {
	idx, err := parseIndex(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	m, err := h.list.Marker(idx)
	if err != nil {
		writeMarkerListError(w, err)
		return
	}
	deleted, _ := h.list.Deleted(idx)
	writeJSON(w, http.StatusOK, MarkerJSON{
		Index: idx, X: m.X, Y: m.Y, Size: m.Size, Radius: m.R, Deleted: deleted,
	})
}

func (h *Handlers) handleGetParts(w http.ResponseWriter, r *http.Request) {
	idx, err := parseIndex(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	parts, err := h.list.Parts(idx)
	if err != nil {
		writeMarkerListError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, partsToJSON(parts))
}

func (h *Handlers) handleMerge(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.list.Merge(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	live := 0
	for i := 0; i < h.list.Len(); i++ {
		if deleted, _ := h.list.Deleted(i); !deleted {
			live++
		}
	}
	writeJSON(w, http.StatusOK, MergeResponse{TotalMarkers: h.list.Len(), LiveMarkers: live})
}

func (h *Handlers) handleCompress(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.list.Compress()
	writeJSON(w, http.StatusOK, CompressResponse{LiveMarkers: h.list.Len()})
}

func parseIndex(s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid marker index %q", s)
	}
	return idx, nil
}

func writeMarkerListError(w http.ResponseWriter, err error) {
	if errors.Is(err, markerlist.ErrIndexRange) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func partsToJSON(p markerlist.Parts) PartsResponse {
	switch p.Kind {
	case markerlist.Single:
		return PartsResponse{Kind: "single"}
	case markerlist.Leaf:
		return PartsResponse{Kind: "leaf"}
	case markerlist.Root:
		a, b := p.A, p.B
		return PartsResponse{Kind: "root", A: &a, B: &b}
	default:
		a, b := p.A, p.B
		return PartsResponse{Kind: "merge", A: &a, B: &b}
	}
}

func kindString(k marker.Kind) string {
	if k == marker.Square {
		return "square"
	}
	return "circle"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
