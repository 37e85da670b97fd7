package registration

import "ms-registration/internal/models"

// allowed status moves; staying in the same status is handled by the caller.
var transitions = map[models.RegistrationStatus][]models.RegistrationStatus{
	models.StatusRegistered: {models.StatusAttended, models.StatusCancelled},
	models.StatusAttended:   {models.StatusCancelled},
}

// CanTransition reports whether a registration may move from one status to another.
func CanTransition(from, to models.RegistrationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
