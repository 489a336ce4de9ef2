package mockapi

// apiResponse 与真实服务相同的响应包装
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type marketWire struct {
	Coin      string  `json:"coin"`
	Price     float64 `json:"price"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Change24h float64 `json:"change_24h"`
	Volume24h float64 `json:"volume_24h"`
	Timestamp string  `json:"timestamp"`
}

type orderWire struct {
	OID           any      `json:"oid"` // int64 或 uuid 字符串
	Coin          string   `json:"coin"`
	Side          string   `json:"side"`
	Size          float64  `json:"size"`
	Price         *float64 `json:"price"`
	OrderType     string   `json:"order_type"`
	Status        string   `json:"status"`
	RemainingSize float64  `json:"remaining_size"`
}

// wsMessage 推送通道消息（订阅请求与行情推送共用）
type wsMessage struct {
	Type string      `json:"type"`
	Coin string      `json:"coin,omitempty"`
	Data *marketWire `json:"data,omitempty"`
}
