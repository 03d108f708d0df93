package orders

import (
	"strconv"
)

const (
	TopicOrderStatusChanged = "order.status.changed"
	TopicStockConsumed      = "bom.stock.consumed"
	TopicStockReversed      = "bom.stock.reversed"
)

// Partition key = account:order, so every event of one order keeps its order.
func PartitionKey(accountID string, orderID int64) []byte {
	return []byte(accountID + ":" + strconv.FormatInt(orderID, 10))
}
