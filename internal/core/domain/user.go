package domain

type UserID string

// Identity is the verified owner of a connection or request, as supplied
// by the identity provider.
type Identity struct {
	UserID      UserID
	DisplayName string
}

// Anonymous reports whether the identity carries no verified user.
func (i Identity) Anonymous() bool {
	return i.UserID == ""
}
