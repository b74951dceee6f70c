package models

// DocumentRef points at a file held by object storage.
type DocumentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
}

// CompanyProfile is the sponsor side of the platform.
type CompanyProfile struct {
	Meta
	Name        string        `json:"name"`
	Tagline     string        `json:"tagline,omitempty"`
	Description string        `json:"description,omitempty"`
	Industry    string        `json:"industry,omitempty"`
	Location    string        `json:"location,omitempty"`
	Website     string        `json:"website,omitempty"`
	LogoURL     string        `json:"logoUrl,omitempty"`
	Seeking     []string      `json:"seeking,omitempty"`
	Upvotes     []string      `json:"upvotes,omitempty"`
	Documents   []DocumentRef `json:"documents,omitempty"`
}

// PartnerProfile is the collaborating side of the platform.
type PartnerProfile struct {
	Meta
	Name      string        `json:"name"`
	Headline  string        `json:"headline,omitempty"`
	Bio       string        `json:"bio,omitempty"`
	Location  string        `json:"location,omitempty"`
	Skills    []string      `json:"skills,omitempty"`
	Upvotes   []string      `json:"upvotes,omitempty"`
	ResumeURL string        `json:"resumeUrl,omitempty"`
	AvatarURL string        `json:"avatarUrl,omitempty"`
	Documents []DocumentRef `json:"documents,omitempty"`
}

// HasUpvote reports whether userID is in the upvote set.
func HasUpvote(upvotes []string, userID string) bool {
	for _, u := range upvotes {
		if u == userID {
			return true
		}
	}
	return false
}
