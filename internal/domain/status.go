package domain

// StatusKind 提示类型
type StatusKind string

const (
	StatusSuccess StatusKind = "success"
	StatusError   StatusKind = "error"
)

// StatusMessage 面向用户的最近一条提示
type StatusMessage struct {
	Kind StatusKind
	Text string
}

// SuccessMessage 成功提示
func SuccessMessage(text string) StatusMessage {
	return StatusMessage{Kind: StatusSuccess, Text: text}
}

// ErrorMessage 错误提示
func ErrorMessage(text string) StatusMessage {
	return StatusMessage{Kind: StatusError, Text: text}
}

// 固定提示文案
const (
	MsgFetchFailed    = "Failed to fetch trading data"
	MsgOrderPlaced    = "Order placed successfully!"
	MsgOrderFailed    = "Failed to place order"
	MsgOrderCancelled = "Order cancelled successfully!"
	MsgCancelFailed   = "Failed to cancel order"
	MsgRequiredFields = "Please fill in all required fields"
	MsgInvalidSize    = "Size must be a positive number"
	MsgInvalidPrice   = "Price must be a positive number"
)
