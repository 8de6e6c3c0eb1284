package engine

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// PlayerBySlot returns the player occupying the given slot, if any.
func PlayerBySlot(s State, slot Slot) (Player, bool) {
	for _, p := range s.Players {
		if p.Slot == slot {
			return p, true
		}
	}
	return Player{}, false
}

// ActivePlayers counts players that have not disconnected.
func ActivePlayers(s State) int {
	n := 0
	for _, p := range s.Players {
		if p.State != StateDisconnected {
			n++
		}
	}
	return n
}
