package interfaces

import (
	"context"

	domaintypes "omemo/internal/domain/types"
)

// Transport issues protocol requests. Requests carrying a token complete
// asynchronously: the outcome arrives later as an Event tagged with the
// same token. A returned error means the request was never issued.
type Transport interface {
	FetchBundle(ctx context.Context, peer domaintypes.Address, token string) error
	FetchDeviceList(ctx context.Context, owner domaintypes.Username, token string) error
	PublishDeviceList(ctx context.Context, ids []domaintypes.DeviceID) error
	PublishBundle(ctx context.Context, bundle domaintypes.Bundle) error
	SendEnvelope(ctx context.Context, to domaintypes.Username, messageID string, envelope domaintypes.Envelope) error
	RemoveDevices(ctx context.Context, ids []domaintypes.DeviceID, token string) error
	SendReceipt(ctx context.Context, to domaintypes.Username, messageID string) error
}

// EventHandler consumes inbound protocol events.
type EventHandler interface {
	Handle(event domaintypes.Event)
}
