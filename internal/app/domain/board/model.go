package board

import "time"

// Board groups ordered lists inside a workspace. Workspace membership and
// invitations live outside this service; the owner id recorded here is what
// ownership checks consume.
type Board struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace"`
	OwnerID     string    `json:"owner"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
