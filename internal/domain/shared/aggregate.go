package shared

// AggregateRoot is the write-model contract: a versioned entity that records
// the domain events its mutations raise, for publication after commit.
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot carries the version column for optimistic locking and
// the pending event list. The event list never persists; it lives only for
// the span of one service call.
type BaseAggregateRoot struct {
	BaseEntity
	Version      int           `gorm:"not null;default:1"`
	domainEvents []DomainEvent `gorm:"-"`
}

func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
		Version:    1,
	}
}

// GetVersion returns the version the aggregate was loaded at. Guarded
// updates compare against it to reject writes over a concurrent change.
func (a *BaseAggregateRoot) GetVersion() int {
	return a.Version
}

// IncrementVersion bumps the version; every mutating domain method calls it.
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// AddDomainEvent queues an event raised by a mutation
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns the events queued since the last drain
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents empties the pending event list
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// DrainEvents returns an aggregate's pending events and clears them, so the
// caller hands each event to the bus exactly once.
func DrainEvents(root AggregateRoot) []DomainEvent {
	events := root.GetDomainEvents()
	root.ClearDomainEvents()
	return events
}
