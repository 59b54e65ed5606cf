package x402

// 校验 / 结算失败的结构化错误码，错误码本身是对外契约
const (
	KindInsufficientFunds  = "insufficient_funds"
	KindInvalidValidAfter  = "invalid_exact_evm_payload_authorization_valid_after"
	KindInvalidValidBefore = "invalid_exact_evm_payload_authorization_valid_before"
	KindInvalidValue       = "invalid_exact_evm_payload_authorization_value"
	KindInvalidSignature   = "invalid_exact_evm_payload_signature"
	KindRecipientMismatch  = "invalid_exact_evm_payload_recipient_mismatch"
	KindInvalidNetwork     = "invalid_network"
	KindInvalidPayload     = "invalid_payload"
	KindInvalidRequirements = "invalid_payment_requirements"
	KindInvalidScheme      = "invalid_scheme"
	KindUnsupportedScheme  = "unsupported_scheme"
	KindInvalidVersion     = "invalid_x402_version"
	KindNonceUsed          = "nonce_used"
	KindTransactionFailed  = "invalid_transaction_state"
	KindVerifyError        = "unexpected_verify_error"
	KindSettleError        = "unexpected_settle_error"
)

var kindMessages = map[string]string{
	KindInsufficientFunds:   "Client does not have enough tokens to complete the payment",
	KindInvalidValidAfter:   "Payment authorization is not yet valid (before validAfter timestamp)",
	KindInvalidValidBefore:  "Payment authorization has expired (after validBefore timestamp)",
	KindInvalidValue:        "Payment amount is insufficient for the required payment",
	KindInvalidSignature:    "Payment authorization signature is invalid or improperly signed",
	KindRecipientMismatch:   "Recipient address does not match payment requirements",
	KindInvalidNetwork:      "Specified blockchain network is not supported",
	KindInvalidPayload:      "Payment payload is malformed or contains invalid data",
	KindInvalidRequirements: "Payment requirements object is invalid or malformed",
	KindInvalidScheme:       "Specified payment scheme is not supported",
	KindUnsupportedScheme:   "Payment scheme is not supported by the facilitator",
	KindInvalidVersion:      "Protocol version is not supported",
	KindNonceUsed:           "nonce used",
	KindTransactionFailed:   "Blockchain transaction failed or was rejected",
	KindVerifyError:         "Unexpected error occurred during payment verification",
	KindSettleError:         "Unexpected error occurred during payment settlement",
}

// Error 带错误码的校验/结算失败
type Error struct {
	Kind string `json:"kind"`
	Msg  string `json:"message"`
}

func (e *Error) Error() string { return e.Kind + ": " + e.Msg }

func NewError(kind string) *Error {
	return &Error{Kind: kind, Msg: kindMessages[kind]}
}
