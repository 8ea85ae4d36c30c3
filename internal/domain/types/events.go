package types

// Event is an inbound protocol event. The set of variants is closed.
type Event interface {
	isEvent()
}

// DeviceListUpdated announces the current device ids of Owner. Token is set
// when the update answers a request of ours.
type DeviceListUpdated struct {
	Owner     Username
	DeviceIDs []DeviceID
	Token     string
}

// BundleFetched answers a bundle fetch.
type BundleFetched struct {
	Token  string
	From   Username
	Bundle Bundle
}

// BundleFetchFailed reports that the bundle fetch for Token failed.
type BundleFetchFailed struct {
	Token    string
	From     Username
	DeviceID DeviceID
	Err      error
}

// KeyDataReceived delivers an encrypted message.
type KeyDataReceived struct {
	From         Username
	To           Username
	SenderDevice DeviceID
	MessageID    string
	Envelope     Envelope
}

// DeviceRemovalFailed reports that removing DeviceIDs failed.
type DeviceRemovalFailed struct {
	Token     string
	DeviceIDs []DeviceID
	Err       error
}

// ReceiptReceived reports that From received MessageID.
type ReceiptReceived struct {
	From      Username
	MessageID string
}

func (DeviceListUpdated) isEvent()   {}
func (BundleFetched) isEvent()       {}
func (BundleFetchFailed) isEvent()   {}
func (KeyDataReceived) isEvent()     {}
func (DeviceRemovalFailed) isEvent() {}
func (ReceiptReceived) isEvent()     {}
