package shop

const (
	TopicOrderCreated = "shop.order.created"
	TopicOrderUpdated = "shop.order.updated"
	TopicOrderDeleted = "shop.order.deleted"
	TopicDayAdvanced  = "shop.day.advanced"
)

// Topics lists everything the audit tail subscribes to.
func Topics() []string {
	return []string{TopicOrderCreated, TopicOrderUpdated, TopicOrderDeleted, TopicDayAdvanced}
}

// Partition key = order id, so one order's events keep their relative order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
