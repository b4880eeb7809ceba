package monitor

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Dashboard serves the observer's local HTTP surface: the current roster as
// JSON plus a liveness probe. Rendering is left to whatever front end the
// proctor points at it.
type Dashboard struct {
	roster *Roster
	logger *slog.Logger
}

func NewDashboard(roster *Roster, logger *slog.Logger) *Dashboard {
	return &Dashboard{roster: roster, logger: logger}
}

// Register mounts the dashboard routes on the given router.
func (d *Dashboard) Register(r chi.Router) {
	r.Get("/roster", d.handleRoster)
	r.Get("/healthz", d.handleHealthz)
}

func (d *Dashboard) handleRoster(w http.ResponseWriter, r *http.Request) {
	tiles := d.roster.Tiles()
	resp := struct {
		Active   int    `json:"active"`
		Students []Tile `json:"students"`
	}{Active: d.roster.ActiveCount(), Students: tiles}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		d.logger.Error("encode roster response", "error", err)
	}
}

func (d *Dashboard) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
