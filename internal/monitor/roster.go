package monitor

import (
	"sort"
	"sync"
	"time"

	"proctor/internal/exam"
)

// FrameEvent is one monitoring frame pushed by a student agent through the
// relay. Frames are base64-encoded JPEG; Timestamp is epoch milliseconds.
type FrameEvent struct {
	UserID      string `json:"userId"`
	OlympiadID  string `json:"olympiadId"`
	CameraFrame string `json:"cameraFrame"`
	ScreenFrame string `json:"screenFrame"`
	Timestamp   int64  `json:"timestamp"`
}

// Tile is the monitor's view of one student: identity from the roster poll,
// latest frames from the relay. Only the newest frame per student is kept.
type Tile struct {
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	SchoolName  string    `json:"schoolName"`
	CameraFrame string    `json:"cameraFrame,omitempty"`
	ScreenFrame string    `json:"screenFrame,omitempty"`
	LastFrameAt time.Time `json:"lastFrameAt"`
	Active      bool      `json:"active"`
}

// Roster folds relay frame events and periodic poll results into one view of
// the proctored cohort. Frame events are last-value-wins per student; the
// poll is authoritative for who is active but never discards frames.
type Roster struct {
	mu         sync.RWMutex
	olympiadID string
	tiles      map[string]*Tile
	now        func() time.Time
}

// NewRoster builds a roster scoped to one olympiad. now is injectable for
// tests; pass nil for time.Now.
func NewRoster(olympiadID string, now func() time.Time) *Roster {
	if now == nil {
		now = time.Now
	}
	return &Roster{olympiadID: olympiadID, tiles: make(map[string]*Tile), now: now}
}

// ApplyFrame folds one relay event into the roster. Events for other
// olympiads are dropped; a frame for an unknown student creates its tile so
// video shows up even before the next poll names the student.
func (r *Roster) ApplyFrame(ev FrameEvent) bool {
	if ev.OlympiadID != r.olympiadID || ev.UserID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tile, ok := r.tiles[ev.UserID]
	if !ok {
		tile = &Tile{UserID: ev.UserID}
		r.tiles[ev.UserID] = tile
	}
	if ev.CameraFrame != "" {
		tile.CameraFrame = ev.CameraFrame
	}
	if ev.ScreenFrame != "" {
		tile.ScreenFrame = ev.ScreenFrame
	}
	tile.Active = true
	tile.LastFrameAt = r.now()
	return true
}

// MergePoll reconciles against the authoritative active-student list.
// Students missing from the list go inactive but keep their last frames, so
// an observer can still see what a dropped student was doing.
func (r *Roster) MergePoll(students []exam.Student) {
	active := make(map[string]exam.Student, len(students))
	for _, s := range students {
		active[s.ID] = s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range active {
		tile, ok := r.tiles[id]
		if !ok {
			tile = &Tile{UserID: id}
			r.tiles[id] = tile
		}
		tile.Name = s.Name
		tile.SchoolName = s.SchoolName
		tile.Active = true
	}
	for id, tile := range r.tiles {
		if _, ok := active[id]; !ok {
			tile.Active = false
		}
	}
}

// Tiles returns a stable snapshot sorted by name then id.
func (r *Roster) Tiles() []Tile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tile, 0, len(r.tiles))
	for _, tile := range r.tiles {
		out = append(out, *tile)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// ActiveCount reports how many students are currently capturing.
func (r *Roster) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, tile := range r.tiles {
		if tile.Active {
			n++
		}
	}
	return n
}
