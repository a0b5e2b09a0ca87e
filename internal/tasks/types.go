package tasks

const (
	TypeCleanup = "cleanup"
	TypeAvatar  = "avatar"
)

const (
	ScopeSessions = "sessions"
	ScopeCodes    = "codes"
)

// AvatarPayload asks the worker to copy a provider profile picture into
// object storage and point the user at the stored copy.
type AvatarPayload struct {
	UserID    string `json:"userId"`
	SourceURL string `json:"sourceUrl"`
}

// CleanupPayload limits a cleanup run to one scope. Empty means everything.
type CleanupPayload struct {
	Scope string `json:"scope,omitempty"`
}
