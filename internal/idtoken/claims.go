package idtoken

// Claims is the identity payload issued by the chat platform
type Claims struct {
	Subject string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
	Nonce   string `json:"nonce,omitempty"`
	TeamID  string `json:"https://slack.com/team_id"`
	UserID  string `json:"https://slack.com/user_id"`
}

// Identity is what a session keeps about the user. It is the claim set
// without the nonce, which only matters during the callback.
type Identity struct {
	Subject string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
	TeamID  string `json:"https://slack.com/team_id"`
	UserID  string `json:"https://slack.com/user_id"`
}

func (c *Claims) Identity() Identity {
	return Identity{
		Subject: c.Subject,
		Name:    c.Name,
		Email:   c.Email,
		Picture: c.Picture,
		TeamID:  c.TeamID,
		UserID:  c.UserID,
	}
}
