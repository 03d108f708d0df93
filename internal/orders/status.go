package orders

// Status is the commerce-platform order status as reported by the store.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusOnHold     Status = "on-hold"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusFailed     Status = "failed"
)

// Some gateways jump straight from pending to completed, so both
// processing and completed trigger consumption. Dedup makes it once.
var consumable = map[Status]bool{
	StatusProcessing: true,
	StatusCompleted:  true,
}

var reversible = map[Status]bool{
	StatusCancelled: true,
	StatusRefunded:  true,
}

func (s Status) Consumable() bool { return consumable[s] }

func (s Status) Reversible() bool { return reversible[s] }
