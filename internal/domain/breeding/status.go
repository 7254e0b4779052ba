package breeding

// The lifecycle is linear; the only side exit is cancellation.
var transitions = map[string][]string{
	StatusPlanning:  {StatusCommitted, StatusCancelled},
	StatusCommitted: {StatusBred, StatusCancelled},
	StatusBred:      {StatusPregnant, StatusCancelled},
	StatusPregnant:  {StatusBirthed, StatusCancelled},
	StatusBirthed:   {StatusWeaned, StatusCancelled},
	StatusWeaned:    {StatusPlacement, StatusCancelled},
	StatusPlacement: {StatusComplete, StatusCancelled},
}

// CanTransition reports whether a plan may move from -> to. Complete and
// cancelled plans are terminal.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(status string) bool {
	return status == StatusComplete || status == StatusCancelled
}
