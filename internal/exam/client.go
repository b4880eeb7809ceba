package exam

import (
	"context"
	"fmt"
	"net/url"

	"proctor/internal/platform/httpclient"
)

// Client fetches exam definitions and rosters from the backend REST API.
type Client struct {
	api *httpclient.Client
}

func NewClient(api *httpclient.Client) *Client {
	return &Client{api: api}
}

// Get fetches the olympiad definition by id.
func (c *Client) Get(ctx context.Context, olympiadID string) (*Olympiad, error) {
	var olympiad Olympiad
	if err := c.api.GetJSON(ctx, "/olympiads/"+url.PathEscape(olympiadID), &olympiad); err != nil {
		return nil, fmt.Errorf("fetch olympiad %s: %w", olympiadID, err)
	}
	if olympiad.ID == "" {
		olympiad.ID = olympiadID
	}
	return &olympiad, nil
}

// ActiveStudents fetches the authoritative roster of students currently
// capturing within an olympiad. Used by the monitor as a consistency backstop
// against missed relay events.
func (c *Client) ActiveStudents(ctx context.Context, olympiadID string) ([]Student, error) {
	var payload struct {
		Success  bool      `json:"success"`
		Message  string    `json:"message"`
		Students []Student `json:"students"`
	}
	path := "/monitoring/active-students?olympiadId=" + url.QueryEscape(olympiadID)
	if err := c.api.GetJSON(ctx, path, &payload); err != nil {
		return nil, fmt.Errorf("fetch active students: %w", err)
	}
	if !payload.Success {
		return nil, fmt.Errorf("fetch active students: %s", payload.Message)
	}
	return payload.Students, nil
}
