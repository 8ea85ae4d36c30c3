package domain

import (
	interfaces "omemo/internal/domain/interfaces"
	types "omemo/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Username            = types.Username
	Fingerprint         = types.Fingerprint
	DeviceID            = types.DeviceID
	SignedPreKeyID      = types.SignedPreKeyID
	PreKeyID            = types.PreKeyID
	Address             = types.Address
	Collection          = types.Collection
	Identity            = types.Identity
	SignedPreKeyPair    = types.SignedPreKeyPair
	OneTimePreKeyPair   = types.OneTimePreKeyPair
	SignedPreKey        = types.SignedPreKey
	PreKey              = types.PreKey
	Bundle              = types.Bundle
	IncomingBundle      = types.IncomingBundle
	PreKeyMessage       = types.PreKeyMessage
	KeyData             = types.KeyData
	Envelope            = types.Envelope
	StanzaKind          = types.StanzaKind
	Stanza              = types.Stanza
	Security            = types.Security
	Message             = types.Message
	TrustLevel          = types.TrustLevel
	Device              = types.Device
	Account             = types.Account
	Buddy               = types.Buddy
	RatchetHeader       = types.RatchetHeader
	RatchetState        = types.RatchetState
	Conversation        = types.Conversation
	X25519Public        = types.X25519Public
	X25519Private       = types.X25519Private
	Ed25519Public       = types.Ed25519Public
	Ed25519Private      = types.Ed25519Private
	Event               = types.Event
	DeviceListUpdated   = types.DeviceListUpdated
	BundleFetched       = types.BundleFetched
	BundleFetchFailed   = types.BundleFetchFailed
	KeyDataReceived     = types.KeyDataReceived
	DeviceRemovalFailed = types.DeviceRemovalFailed
	ReceiptReceived     = types.ReceiptReceived
)

// Re-exported constants.
const (
	CollectionAccount = types.CollectionAccount
	CollectionBuddy   = types.CollectionBuddy

	StanzaMessage = types.StanzaMessage
	StanzaReceipt = types.StanzaReceipt

	SecurityOMEMO = types.SecurityOMEMO

	TrustUntrusted    = types.TrustUntrusted
	TrustUntrustedNew = types.TrustUntrustedNew
	TrustTrustedTofu  = types.TrustTrustedTofu
	TrustTrustedUser  = types.TrustTrustedUser
	TrustRemoved      = types.TrustRemoved
)

// ParseDeviceID parses a decimal device id.
var ParseDeviceID = types.ParseDeviceID

// Wire key constructors.
var (
	X25519PublicFrom  = types.X25519PublicFrom
	Ed25519PublicFrom = types.Ed25519PublicFrom
	ErrKeyLength      = types.ErrKeyLength
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityService   = interfaces.IdentityService
	PreKeyService     = interfaces.PreKeyService
	SessionEngine     = interfaces.SessionEngine
	Notifier          = interfaces.Notifier
	Transport         = interfaces.Transport
	EventHandler      = interfaces.EventHandler
	IdentityStore     = interfaces.IdentityStore
	PreKeyStore       = interfaces.PreKeyStore
	ConversationStore = interfaces.ConversationStore
	Store             = interfaces.Store
	ReadTx            = interfaces.ReadTx
	WriteTx           = interfaces.WriteTx
)
