package x402

// x402 wire 类型，字段名跟协议的 camelCase 保持一致

const (
	Version     = 1
	SchemeExact = "exact"
)

// PaymentRequirements 告诉付款方需要签什么
type PaymentRequirements struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"maxAmountRequired"` // 原子单位
	Asset             string         `json:"asset"`             // 代币合约地址
	PayTo             string         `json:"payTo"`
	Resource          string         `json:"resource"`
	Description       string         `json:"description"`
	MimeType          string         `json:"mimeType,omitempty"`
	MaxTimeoutSeconds int            `json:"maxTimeoutSeconds"`
	Extra             map[string]any `json:"extra,omitempty"` // EIP-712 域的 name/version + 建议的时间窗口和 nonce
}

// Authorization EIP-3009 授权参数，数值字段按协议都是十进制字符串
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"` // 32 字节 hex
}

// ExactEvmPayload 签名 + 授权
type ExactEvmPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// PaymentPayload 付款方提交的完整负载
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     ExactEvmPayload `json:"payload"`
}

// PaymentRequest POST /x402/payments 的请求体
type PaymentRequest struct {
	PaymentPayload      PaymentPayload      `json:"payment_payload"`
	PaymentRequirements PaymentRequirements `json:"payment_requirements"`
}

// RequirementsResponse POST /x402/requirements 的响应
type RequirementsResponse struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// SupportedKind 支持的 (scheme, network) 组合
type SupportedKind struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportResponse GET /x402/support 的响应
type SupportResponse struct {
	Schemes  []string `json:"schemes"`
	Networks []string `json:"networks"`
}

// DiscoveryItem 可发现资源
type DiscoveryItem struct {
	Resource    string                `json:"resource"`
	Type        string                `json:"type"`
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	LastUpdated int64                 `json:"lastUpdated"`
}

// Pagination 分页
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// DiscoveryResponse GET /x402/discovery 的响应
type DiscoveryResponse struct {
	X402Version int             `json:"x402Version"`
	Items       []DiscoveryItem `json:"items"`
	Pagination  Pagination      `json:"pagination"`
}
