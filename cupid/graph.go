package cupid

// Graph is a snapshot of every user and every accepted relationship.
// Proposals are never part of a graph. Its relationships are read-only.
type Graph struct {
	Users         map[int64]User
	Relationships []*Relationship
}

// newGraph resolves every user in data and attaches them to the
// relationships. A relationship naming a user absent from data is an
// error: the snapshot is unusable.
func newGraph(data *GraphData, resolve resolveFunc) (*Graph, error) {
	g := &Graph{
		Users:         make(map[int64]User, len(data.Users)),
		Relationships: make([]*Relationship, 0, len(data.Relationships)),
	}
	for id, rec := range data.Users {
		g.Users[id] = resolve(rec)
	}

	for _, raw := range data.Relationships {
		initiator, ok := g.Users[raw.Initiator]
		if !ok {
			return nil, &GraphInconsistencyError{RelationshipID: raw.ID, UserID: raw.Initiator}
		}
		other, ok := g.Users[raw.Other]
		if !ok {
			return nil, &GraphInconsistencyError{RelationshipID: raw.ID, UserID: raw.Other}
		}
		acceptedAt := raw.AcceptedAt
		g.Relationships = append(g.Relationships, &Relationship{
			ID:         raw.ID,
			Initiator:  initiator,
			Other:      other,
			Kind:       raw.Kind,
			Accepted:   true,
			CreatedAt:  raw.CreatedAt,
			AcceptedAt: &acceptedAt,
			resolve:    resolve,
		})
	}
	return g, nil
}

// RelationshipsOf returns the relationships the given user is part of
func (g *Graph) RelationshipsOf(userID int64) []*Relationship {
	var out []*Relationship
	for _, r := range g.Relationships {
		if r.Initiator.ID() == userID || r.Other.ID() == userID {
			out = append(out, r)
		}
	}
	return out
}

// Partners returns the users related to userID, in relationship order
func (g *Graph) Partners(userID int64) []User {
	var out []User
	for _, r := range g.RelationshipsOf(userID) {
		if r.Initiator.ID() == userID {
			out = append(out, r.Other)
		} else {
			out = append(out, r.Initiator)
		}
	}
	return out
}
