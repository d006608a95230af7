package preorder

import "foodtruck-preorder/internal/models"

// happyPath is the forward lifecycle. Any forward move along it is legal, so a
// truck may go straight from pending to preparing without confirming first.
var happyPath = []models.OrderStatus{
	models.StatusPending,
	models.StatusConfirmed,
	models.StatusPreparing,
	models.StatusReady,
	models.StatusDelivered,
}

type transitionKey struct {
	from, to models.OrderStatus
}

var transitions = func() map[transitionKey]bool {
	m := make(map[transitionKey]bool)
	for i, from := range happyPath {
		if from.IsTerminal() {
			continue
		}
		for _, to := range happyPath[i+1:] {
			m[transitionKey{from, to}] = true
		}
		m[transitionKey{from, models.StatusCancelled}] = true
		m[transitionKey{from, models.StatusNoShow}] = true
	}
	return m
}()

// CanTransition returns *models.InvalidTransitionError when from -> to is not an edge.
func CanTransition(from, to models.OrderStatus) error {
	if transitions[transitionKey{from, to}] {
		return nil
	}
	return &models.InvalidTransitionError{From: from, To: to}
}

// ValidNextStatuses lists the statuses reachable from s in lifecycle order.
func ValidNextStatuses(s models.OrderStatus) []models.OrderStatus {
	var out []models.OrderStatus
	for _, to := range models.AllStatuses {
		if transitions[transitionKey{s, to}] {
			out = append(out, to)
		}
	}
	return out
}
