package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/hyperlicked/pkg/money"
)

// WithdrawalStatus is a one-way state in the withdrawal lifecycle.
type WithdrawalStatus int8

const (
	WithdrawalPending WithdrawalStatus = iota
	WithdrawalProcessing
	WithdrawalAwaitingConfirmation
	WithdrawalCompleted
	WithdrawalFailed
	WithdrawalCancelled
)

func (s WithdrawalStatus) String() string {
	switch s {
	case WithdrawalPending:
		return "PENDING"
	case WithdrawalProcessing:
		return "PROCESSING"
	case WithdrawalAwaitingConfirmation:
		return "AWAITING_CONFIRMATION"
	case WithdrawalCompleted:
		return "COMPLETED"
	case WithdrawalFailed:
		return "FAILED"
	case WithdrawalCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the state has no further transitions.
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalFailed || s == WithdrawalCancelled
}

var (
	ErrWithdrawalTerminal    = errors.New("ledger: withdrawal already in a terminal state")
	ErrWithdrawalNotFound    = errors.New("ledger: withdrawal not found")
	ErrWithdrawalBadTransition = errors.New("ledger: invalid withdrawal state transition")
)

// WithdrawalRequest tracks one withdrawal through Pending -> Processing ->
// AwaitingConfirmation -> {Completed, Failed} (or Cancelled, from Pending
// only). Every forward transition method is idempotent:
// re-invoking one whose target has already been reached (or surpassed by a
// later call) returns nil and leaves the existing state untouched, rather
// than erroring, so a scheduler that re-delivers the same command after a
// crash never needs to distinguish "already applied" from "just applied".
// Only a transition that genuinely conflicts with the current state (e.g.
// submitting a transaction before processing has started) returns
// ErrWithdrawalBadTransition.
type WithdrawalRequest struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Asset       string
	Amount      money.Value
	Fee         money.Value
	Destination string

	Memo                  string
	Custodian             string
	ConfirmationsRequired int
	Confirmations         int

	Status         WithdrawalStatus
	TxReference    string
	FailureReason  string

	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// WithdrawalOption configures optional WithdrawalRequest fields at
// construction, mirroring the Rust original's builder (with_memo,
// with_custodian, with_confirmations_required).
type WithdrawalOption func(*WithdrawalRequest)

func WithMemo(memo string) WithdrawalOption {
	return func(w *WithdrawalRequest) { w.Memo = memo }
}

func WithCustodian(custodian string) WithdrawalOption {
	return func(w *WithdrawalRequest) { w.Custodian = custodian }
}

func WithConfirmationsRequired(n int) WithdrawalOption {
	return func(w *WithdrawalRequest) { w.ConfirmationsRequired = n }
}

// NewWithdrawalRequest constructs a Pending withdrawal.
func NewWithdrawalRequest(accountID uuid.UUID, asset string, amount, fee money.Value, destination string, now time.Time, opts ...WithdrawalOption) *WithdrawalRequest {
	w := &WithdrawalRequest{
		ID:                    uuid.New(),
		AccountID:             accountID,
		Asset:                 asset,
		Amount:                amount,
		Fee:                   fee,
		Destination:           destination,
		ConfirmationsRequired: 1,
		Status:                WithdrawalPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// TotalAmount returns the amount plus fee — the total hold the withdrawal
// places on the account's locked balance.
func (w *WithdrawalRequest) TotalAmount() money.Value {
	return w.Amount.Add(w.Fee)
}

// CanCancel reports whether the withdrawal can still be cancelled, i.e. it
// is still Pending and processing has not yet started.
func (w *WithdrawalRequest) CanCancel() bool {
	return w.Status == WithdrawalPending
}

func (w *WithdrawalRequest) transition(to WithdrawalStatus, now time.Time) error {
	if w.Status.IsTerminal() {
		return ErrWithdrawalTerminal
	}
	w.Status = to
	w.UpdatedAt = now
	return nil
}

// reachedOrPast reports whether the withdrawal has already moved to target
// or beyond it along the Pending -> Processing -> AwaitingConfirmation ->
// Completed happy path. Failed/Cancelled are excluded: they diverge from
// that path rather than extend it, so a retry landing on one of them is a
// genuine conflict, not a replay of an already-applied step.
func (w *WithdrawalRequest) reachedOrPast(target WithdrawalStatus) bool {
	if w.Status == WithdrawalFailed || w.Status == WithdrawalCancelled {
		return false
	}
	return w.Status >= target
}

// StartProcessing moves Pending -> Processing. Calling it again once
// Processing has already started (or the withdrawal has moved further
// along) is a no-op.
func (w *WithdrawalRequest) StartProcessing(now time.Time) error {
	if w.Status.IsTerminal() {
		return ErrWithdrawalTerminal
	}
	if w.reachedOrPast(WithdrawalProcessing) {
		return nil
	}
	return w.transition(WithdrawalProcessing, now)
}

// SubmitTransaction records a custodian transaction reference and moves
// Processing -> AwaitingConfirmation. Calling it again once
// AwaitingConfirmation has already been reached (or surpassed) is a no-op
// that leaves the recorded TxReference untouched.
func (w *WithdrawalRequest) SubmitTransaction(txRef string, now time.Time) error {
	if w.Status.IsTerminal() {
		return ErrWithdrawalTerminal
	}
	if w.reachedOrPast(WithdrawalAwaitingConfirmation) {
		return nil
	}
	if w.Status != WithdrawalProcessing {
		return ErrWithdrawalBadTransition
	}
	w.TxReference = txRef
	return w.transition(WithdrawalAwaitingConfirmation, now)
}

// AddConfirmation increments the confirmation count; once it reaches
// ConfirmationsRequired the withdrawal is finalized as Completed. Once
// Completed, a re-delivered confirmation is a no-op rather than an error or
// an extra increment.
func (w *WithdrawalRequest) AddConfirmation(now time.Time) error {
	if w.Status == WithdrawalCompleted {
		return nil
	}
	if w.Status.IsTerminal() {
		return ErrWithdrawalTerminal
	}
	if w.Status != WithdrawalAwaitingConfirmation {
		return ErrWithdrawalBadTransition
	}
	w.Confirmations++
	w.UpdatedAt = now
	if w.Confirmations >= w.ConfirmationsRequired {
		return w.transition(WithdrawalCompleted, now)
	}
	return nil
}

// Fail moves the withdrawal to Failed from any non-terminal state,
// recording reason.
func (w *WithdrawalRequest) Fail(reason string, now time.Time) error {
	if err := w.transition(WithdrawalFailed, now); err != nil {
		return err
	}
	w.FailureReason = reason
	return nil
}

// Cancel moves the withdrawal to Cancelled, only while CanCancel is true.
func (w *WithdrawalRequest) Cancel(now time.Time) error {
	if !w.CanCancel() {
		return ErrWithdrawalBadTransition
	}
	return w.transition(WithdrawalCancelled, now)
}

// WithdrawalStore tracks every withdrawal request and drives the ledger
// side-effects (reserve on creation, settle-or-refund on completion).
type WithdrawalStore struct {
	ledger *Manager

	mu          sync.Mutex
	withdrawals map[uuid.UUID]*WithdrawalRequest
}

func NewWithdrawalStore(ledger *Manager) *WithdrawalStore {
	return &WithdrawalStore{ledger: ledger, withdrawals: make(map[uuid.UUID]*WithdrawalRequest)}
}

// Create reserves the withdrawal total (amount+fee) out of the account's
// available balance and records a new Pending request.
func (s *WithdrawalStore) Create(accountID uuid.UUID, asset string, amount, fee money.Value, destination string, now time.Time, opts ...WithdrawalOption) (*WithdrawalRequest, error) {
	w := NewWithdrawalRequest(accountID, asset, amount, fee, destination, now, opts...)
	if err := s.ledger.Reserve(accountID, asset, w.TotalAmount()); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.withdrawals[w.ID] = w
	s.mu.Unlock()
	return w, nil
}

// Get returns a withdrawal by id.
func (s *WithdrawalStore) Get(id uuid.UUID) (*WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.withdrawals[id]
	if !ok {
		return nil, ErrWithdrawalNotFound
	}
	return w, nil
}

// Pending returns every withdrawal not yet in a terminal state, oldest
// first by creation time — used by a background worker to drive
// process_pending-style progression.
func (s *WithdrawalStore) Pending() []*WithdrawalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*WithdrawalRequest, 0)
	for _, w := range s.withdrawals {
		if !w.Status.IsTerminal() {
			out = append(out, w)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].CreatedAt.After(out[j].CreatedAt); j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Finalize settles a Completed withdrawal: the reserved hold is consumed
// from locked permanently (funds leave the simulated balance sheet).
func (s *WithdrawalStore) Finalize(id uuid.UUID, now time.Time) error {
	w, err := s.Get(id)
	if err != nil {
		return err
	}
	if w.Status != WithdrawalCompleted {
		return ErrWithdrawalBadTransition
	}
	a := s.ledger.GetOrCreate(w.AccountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.balance(w.Asset)
	total := w.TotalAmount()
	if b.Locked.Cmp(total) < 0 {
		return ErrInsufficientLocked
	}
	b.Locked = b.Locked.Sub(total)
	return nil
}

// Refund releases a Failed or Cancelled withdrawal's hold back to
// available balance.
func (s *WithdrawalStore) Refund(id uuid.UUID) error {
	w, err := s.Get(id)
	if err != nil {
		return err
	}
	if w.Status != WithdrawalFailed && w.Status != WithdrawalCancelled {
		return ErrWithdrawalBadTransition
	}
	_, _, err = s.ledger.Unlock(w.AccountID, w.Asset, w.TotalAmount())
	return err
}
