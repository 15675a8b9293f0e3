package models

const (
	RoleUser   = "user"
	RoleSeller = "seller"
	RoleAdmin  = "admin"

	// ActorSystem is recorded on transitions driven by jobs and webhooks.
	ActorSystem = "system"
)

// Identity is the authenticated caller handed over by the identity provider.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
	TaxID  string `json:"taxId,omitempty"`
	Role   string `json:"role,omitempty"`
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }
