package exam

// Olympiad is the exam definition as served by the backend. Only the fields
// the proctoring core reads are modeled; the admin-side CRUD shape is owned by
// the backend.
type Olympiad struct {
	ID              string     `json:"_id"`
	Title           string     `json:"title"`
	DurationSeconds int        `json:"duration"`
	Status          string     `json:"status"`
	Questions       []Question `json:"questions"`
}

// Question is a single exam question. Value semantics of an answer depend on
// Kind: an option id for multiple choice, free text for essays.
type Question struct {
	ID      string   `json:"_id"`
	Text    string   `json:"text"`
	Kind    string   `json:"type"`
	Options []string `json:"options,omitempty"`
}

// Student is a roster entry returned by the monitoring endpoint.
type Student struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	SchoolName string `json:"schoolName,omitempty"`
	IsActive   bool   `json:"isActive"`
}
