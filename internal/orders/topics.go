package orders

const TopicNotifications = "hookah.notifications"

// PartitionKey keys every event of one order to the same partition so the
// dispatcher sees them in transition order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
