package types

import "fmt"

// Sentinel errors for the error taxonomy. Checked with errors.Is.
var (
	// ErrInvalidRequest marks a transient upstream gap ("block not yet
	// available"); only the raw stream is allowed to retry on this.
	ErrInvalidRequest = fmt.Errorf("invalid request: block not yet available")

	// ErrInvalidOrderId marks a contract-delivered orderId == 0 where a
	// valid order was required.
	ErrInvalidOrderId = fmt.Errorf("invalid order id: zero is reserved")

	// ErrNonMonotonicBlock marks a block applied out of sequence.
	ErrNonMonotonicBlock = fmt.Errorf("non-monotonic block number")

	// ErrHalted marks an operation rejected because the exchange is halted.
	ErrHalted = fmt.Errorf("exchange is halted")
)

// OrderNotFoundError is returned when an update/remove targets an order id
// that the addressed perpetual's book does not hold.
type OrderNotFoundError struct {
	Perpetual PerpetualId
	OrderId   OrderId
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order not found: perpetual=%d order_id=%d", e.Perpetual, e.OrderId)
}

// DuplicateOrderIdError is returned when placing an order id that already
// exists in the addressed perpetual's book without having been removed first.
type DuplicateOrderIdError struct {
	Perpetual PerpetualId
	OrderId   OrderId
}

func (e *DuplicateOrderIdError) Error() string {
	return fmt.Sprintf("duplicate order id: perpetual=%d order_id=%d", e.Perpetual, e.OrderId)
}

// AccountNotFoundError is returned when an event references an account id
// the exchange has never seen created.
type AccountNotFoundError struct {
	Account AccountId
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account not found: %d", e.Account)
}

// PerpetualNotFoundError is returned when an event references a perpetual id
// the exchange is not tracking.
type PerpetualNotFoundError struct {
	Perpetual PerpetualId
}

func (e *PerpetualNotFoundError) Error() string {
	return fmt.Sprintf("perpetual not found: %d", e.Perpetual)
}

// TxHashMismatchError is returned when buffered maker fills do not all share
// the taker fill's transaction hash.
type TxHashMismatchError struct {
	Perpetual PerpetualId
}

func (e *TxHashMismatchError) Error() string {
	return fmt.Sprintf("maker fills span multiple transactions for perpetual=%d", e.Perpetual)
}
