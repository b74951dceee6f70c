package models

// Notification targets one user with a message and a deep link.
type Notification struct {
	Meta
	UserID  string `json:"userId"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
	Read    bool   `json:"read"`
}
