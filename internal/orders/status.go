package orders

type Status string

const (
	StatusNew              Status = "NEW"
	StatusConfirmed        Status = "CONFIRMED"
	StatusOnTheWay         Status = "ON_THE_WAY"
	StatusDelivered        Status = "DELIVERED"
	StatusSessionActive    Status = "SESSION_ACTIVE"
	StatusSessionEnding    Status = "SESSION_ENDING"
	StatusWaitingForPickup Status = "WAITING_FOR_PICKUP"
	StatusCompleted        Status = "COMPLETED"
	StatusCanceled         Status = "CANCELED"
)

var AllStatuses = []Status{
	StatusNew, StatusConfirmed, StatusOnTheWay, StatusDelivered, StatusSessionActive,
	StatusSessionEnding, StatusWaitingForPickup, StatusCompleted, StatusCanceled,
}

var validNext = map[Status]map[Status]bool{
	StatusNew:              {StatusConfirmed: true, StatusCanceled: true},
	StatusConfirmed:        {StatusOnTheWay: true, StatusCanceled: true},
	StatusOnTheWay:         {StatusDelivered: true},
	StatusDelivered:        {StatusSessionActive: true},
	StatusSessionActive:    {StatusSessionEnding: true},
	StatusSessionEnding:    {StatusWaitingForPickup: true, StatusCompleted: true},
	StatusWaitingForPickup: {StatusCompleted: true},
	StatusCompleted:        {},
	StatusCanceled:         {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// In reports whether s is one of set.
func (s Status) In(set ...Status) bool {
	for _, c := range set {
		if s == c {
			return true
		}
	}
	return false
}

// Column is a nullable timestamp column on orders stamped by a transition.
type Column string

const (
	ColConfirmedAt       Column = "confirmed_at"
	ColDepartedAt        Column = "departed_at"
	ColDeliveredAt       Column = "delivered_at"
	ColSessionStartedAt  Column = "session_started_at"
	ColPickupRequestedAt Column = "pickup_requested_at"
	ColCompletedAt       Column = "completed_at"
	ColCanceledAt        Column = "canceled_at"
)

var stampColumn = map[Status]Column{
	StatusConfirmed:        ColConfirmedAt,
	StatusOnTheWay:         ColDepartedAt,
	StatusDelivered:        ColDeliveredAt,
	StatusSessionActive:    ColSessionStartedAt,
	StatusWaitingForPickup: ColPickupRequestedAt,
	StatusCompleted:        ColCompletedAt,
	StatusCanceled:         ColCanceledAt,
}

// StampFor returns the column stamped when an order enters s, or "".
func StampFor(s Status) Column { return stampColumn[s] }

func (c Column) valid() bool {
	for _, col := range stampColumn {
		if c == col {
			return true
		}
	}
	return false
}

type RebowlStatus string

const (
	RebowlRequested  RebowlStatus = "REQUESTED"
	RebowlInProgress RebowlStatus = "IN_PROGRESS"
	RebowlDone       RebowlStatus = "DONE"
	RebowlCanceled   RebowlStatus = "CANCELED"
)

var rebowlNext = map[RebowlStatus]map[RebowlStatus]bool{
	RebowlRequested:  {RebowlInProgress: true, RebowlCanceled: true},
	RebowlInProgress: {RebowlDone: true, RebowlCanceled: true},
	RebowlDone:       {},
	RebowlCanceled:   {},
}

func CanTransitionRebowl(from, to RebowlStatus) bool {
	return rebowlNext[from][to]
}

func (s RebowlStatus) Valid() bool {
	_, ok := rebowlNext[s]
	return ok
}

// Active reports whether the request still blocks a new one on its order.
func (s RebowlStatus) Active() bool {
	return s == RebowlRequested || s == RebowlInProgress
}
