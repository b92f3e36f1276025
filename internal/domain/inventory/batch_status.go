package inventory

// BatchStatus represents the lifecycle state of a batch
type BatchStatus string

const (
	// BatchStatusActive is the initial state; the batch can be consumed
	BatchStatusActive BatchStatus = "ACTIVE"
	// BatchStatusDepleted is reached automatically when consumption drains the batch
	BatchStatusDepleted BatchStatus = "DEPLETED"
	// BatchStatusExpired is set manually when a batch passes its expiry date
	BatchStatusExpired BatchStatus = "EXPIRED"
	// BatchStatusDamaged is set manually when a batch is written off as damaged
	BatchStatusDamaged BatchStatus = "DAMAGED"
	// BatchStatusReturned is set manually when a batch is sent back to the supplier
	BatchStatusReturned BatchStatus = "RETURNED"
)

// String returns the string representation of BatchStatus
func (s BatchStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a known lifecycle state
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusActive,
		BatchStatusDepleted,
		BatchStatusExpired,
		BatchStatusDamaged,
		BatchStatusReturned:
		return true
	}
	return false
}

// IsTerminal returns true for states that permit no further transition.
// Every state except active is terminal; the state machine never returns a
// batch to active, though reversing a sale reopens a depleted one.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusDepleted,
		BatchStatusExpired,
		BatchStatusDamaged,
		BatchStatusReturned:
		return true
	case BatchStatusActive:
		return false
	}
	return false
}

// IsManualTarget returns true for states an operator may transition a batch
// into. Depleted is excluded: it is only ever reached automatically.
func (s BatchStatus) IsManualTarget() bool {
	switch s {
	case BatchStatusExpired,
		BatchStatusDamaged,
		BatchStatusReturned:
		return true
	case BatchStatusActive, BatchStatusDepleted:
		return false
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving from
// this status to target. Only active batches transition anywhere.
func (s BatchStatus) CanTransitionTo(target BatchStatus) bool {
	if s != BatchStatusActive {
		return false
	}
	switch target {
	case BatchStatusDepleted,
		BatchStatusExpired,
		BatchStatusDamaged,
		BatchStatusReturned:
		return true
	case BatchStatusActive:
		return false
	}
	return false
}

// TerminalMovementType returns the ledger movement type recorded when a
// batch enters this terminal state manually.
func (s BatchStatus) TerminalMovementType() (MovementType, bool) {
	switch s {
	case BatchStatusExpired:
		return MovementTypeExpired, true
	case BatchStatusDamaged:
		return MovementTypeDamage, true
	case BatchStatusReturned:
		return MovementTypeReturn, true
	case BatchStatusActive, BatchStatusDepleted:
		return "", false
	}
	return "", false
}
