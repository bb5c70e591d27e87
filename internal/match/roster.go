package match

// roster is the ordered participant registry. Participants are keyed twice:
// by transport session id (live connection) and by stable user id (logical
// seat holder). Replacement on reconnect preserves list order, so a
// participant's index is a stable seat index for the lifetime of the match.
type roster struct {
	participants []*Participant
}

// indexByUserID returns the seat index for a user id, or -1.
func (r *roster) indexByUserID(userID string) int {
	for i, p := range r.participants {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// findBySessionID resolves the participant holding the live session, or nil.
func (r *roster) findBySessionID(sessionID string) *Participant {
	for _, p := range r.participants {
		if p.SessionID == sessionID {
			return p
		}
	}
	return nil
}

// findByUserID resolves the participant for a stable user id, or nil.
func (r *roster) findByUserID(userID string) *Participant {
	if i := r.indexByUserID(userID); i != -1 {
		return r.participants[i]
	}
	return nil
}

func (r *roster) add(p *Participant) int {
	r.participants = append(r.participants, p)
	return len(r.participants) - 1
}

// replace swaps the participant at a seat index in place.
func (r *roster) replace(index int, p *Participant) {
	r.participants[index] = p
}

// remove drops a participant, compacting seat indexes above it.
func (r *roster) remove(p *Participant) int {
	for i, candidate := range r.participants {
		if candidate == p {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			return i
		}
	}
	return -1
}

func (r *roster) len() int {
	return len(r.participants)
}
