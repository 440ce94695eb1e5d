package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonAIDecide      ReasonCode = "ai_decide"
	ReasonAIReply       ReasonCode = "ai_reply"
	ReasonAIValidate    ReasonCode = "ai_validate"
	ReasonAIRateLimit   ReasonCode = "ai_rate_limit"
	ReasonAICircuitOpen ReasonCode = "ai_circuit_open"

	ReasonHistoryWrite ReasonCode = "history_write"
	ReasonHistoryRead  ReasonCode = "history_read"

	ReasonWebhookBadRequest ReasonCode = "webhook_bad_request"
	ReasonWebhookMissingID  ReasonCode = "webhook_missing_call_id"

	ReasonTransportInvalidSignature ReasonCode = "webhook_invalid_signature"
	ReasonTransportSend             ReasonCode = "transport_send"
	ReasonTransportDial             ReasonCode = "transport_dial"

	ReasonSessionExpired ReasonCode = "session_expired"
)
