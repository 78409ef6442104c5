// README: Coordinator error taxonomy; transport layers map these to codes.
package delivery

import "errors"

var (
	// ErrDriverBusy: the driver already has a run with current_state other
	// than delivery_complete.
	ErrDriverBusy = errors.New("driver already has an active delivery")
	// ErrAlreadyProcessing: an acceptance for this driver is still in flight.
	ErrAlreadyProcessing = errors.New("acceptance already in progress for driver")
	ErrInvalidInput      = errors.New("invalid request")
	ErrNotAccepting      = errors.New("restaurant is not accepting orders")
	ErrCartExceeded      = errors.New("order quantity exceeds cart reservation")
	// ErrTxFailed wraps storage-layer faults; reported to the caller, never
	// retried automatically.
	ErrTxFailed = errors.New("transaction failed")
)
