package wire

// Event names delivered over the bridge websocket.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"

	// Message upsert: payload may be a single MessageEvent, an array of
	// them, or an Envelope wrapping either.
	EventMessageUpsert = "message.upsert"

	// Delivery/read receipt keyed by provider message id.
	EventMessageStatus = "message.status"
)

// Disconnect reasons reported by the bridge. Server-initiated reasons
// trigger an automatic reconnect; client-initiated ones do not.
const (
	DisconnectServer    = "io server disconnect"
	DisconnectTransport = "transport close"
	DisconnectClient    = "io client disconnect"
)

// Message delivery states carried by EventMessageStatus.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)
