package backend

// UserSummary identifies the authenticated user.
type UserSummary struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Organization is a tenant that owns agents.
type Organization struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MemberCount int    `json:"member_count"`
}

// Agent is a configured conversational entity belonging to one organization.
type Agent struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Model          string `json:"model"`
	OrganizationID int64  `json:"organization_id"`
}
