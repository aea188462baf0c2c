package chat

import "github.com/avelar/chatd/internal/store"

// Access answers "may this user act on this chat". Direct: caller must be
// one of the two participants. Group: caller must be a current member.
// Membership is always read fresh from the collaborator.
type Access struct {
	db *store.DB
}

// NewAccess creates an access checker backed by the store.
func NewAccess(db *store.DB) *Access {
	return &Access{db: db}
}

// Check validates that userID participates in the referenced chat.
func (a *Access) Check(userID string, ref ChatRef) error {
	if !ref.Valid() {
		return Validationf("invalid chat reference %q/%q", ref.Kind, ref.ID)
	}
	switch ref.Kind {
	case store.KindDirect:
		c, err := a.db.GetDirectChat(ref.ID)
		if err != nil {
			return Internalf(err, "load direct chat")
		}
		if c == nil {
			return NotFoundf("chat %s not found", ref.ID)
		}
		if !c.Has(userID) {
			return Unauthorizedf("not a participant of chat %s", ref.ID)
		}
	case store.KindGroup:
		g, err := a.db.GetGroup(ref.ID)
		if err != nil {
			return Internalf(err, "load group")
		}
		if g == nil {
			return NotFoundf("group %s not found", ref.ID)
		}
		member, err := a.db.IsGroupMember(userID, ref.ID)
		if err != nil {
			return Internalf(err, "check membership")
		}
		if !member {
			return Unauthorizedf("not a member of group %s", ref.ID)
		}
	}
	return nil
}
