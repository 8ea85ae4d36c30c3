package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"omemo/internal/crypto"
	"omemo/internal/domain"
	"omemo/internal/protocol/ratchet"
	"omemo/internal/protocol/x3dh"
	"omemo/internal/services/prekey"
)

var (
	// ErrNoSession indicates there is no stored session with the peer device.
	ErrNoSession = errors.New("no session with peer device")
	// ErrUnknownSignedPreKey is returned when a pre-key message names a
	// signed pre-key this device never issued.
	ErrUnknownSignedPreKey = errors.New("unknown signed pre-key")
	// ErrUnknownPreKey is returned when a pre-key message names a one-time
	// pre-key that is missing or already consumed.
	ErrUnknownPreKey = errors.New("unknown or consumed one-time pre-key")
	// ErrIdentityMismatch is returned when a pre-key message comes from an
	// identity other than the one already bound to the peer device.
	ErrIdentityMismatch = errors.New("pre-key message from a different identity")
)

// wrappedKey is the per-device key blob carried in an envelope.
type wrappedKey struct {
	Header domain.RatchetHeader  `json:"header"`
	PreKey *domain.PreKeyMessage `json:"prekey,omitempty"`
	Cipher []byte                `json:"cipher"`
}

// Engine owns one Double Ratchet conversation per remote device and uses it
// to wrap and unwrap payload keys.
//
// High-level flow:
//   - ConsumeIncomingBundle runs X3DH as initiator and stores a ratchet plus
//     the pre-key header the peer needs to answer.
//   - WrapKey encrypts with the ratchet and attaches that header until the
//     peer has been heard from.
//   - UnwrapKey decrypts with the stored ratchet, or bootstraps a responder
//     ratchet from an attached pre-key header.
type Engine struct {
	*prekey.Service

	id      domain.Identity
	prekeys domain.PreKeyStore
	convs   domain.ConversationStore
	now     func() time.Time

	mu sync.Mutex
}

// New constructs an Engine for the unlocked identity id.
func New(id domain.Identity, prekeys domain.PreKeyStore, convs domain.ConversationStore) *Engine {
	return &Engine{
		Service: prekey.New(id, prekeys),
		id:      id,
		prekeys: prekeys,
		convs:   convs,
		now:     time.Now,
	}
}

// RegistrationID returns the local device id.
func (e *Engine) RegistrationID() domain.DeviceID { return e.id.RegistrationID }

// SessionExists reports whether a conversation with peer is stored.
func (e *Engine) SessionExists(peer domain.Address) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok, err := e.convs.LoadConversation(peer)
	return ok, err
}

// ConsumeIncomingBundle verifies b and starts an initiator session with the
// device that published it, replacing any existing one.
func (e *Engine) ConsumeIncomingBundle(peer domain.Username, b domain.IncomingBundle) error {
	rootKey, peerIdentity, ephemeral, err := x3dh.InitiatorRoot(e.id, b)
	if err != nil {
		return fmt.Errorf("x3dh initiator root: %w", err)
	}
	st, err := ratchet.InitAsInitiator(rootKey, peerIdentity)
	if err != nil {
		return err
	}

	conv := domain.Conversation{
		Peer:            domain.Address{Name: peer, Device: b.DeviceID},
		State:           st,
		PeerIdentity:    peerIdentity,
		PeerIdentityKey: append([]byte(nil), b.IdentityKey...),
		PreKey: &domain.PreKeyMessage{
			InitiatorIdentityKey: e.id.XPub,
			InitiatorSigningKey:  e.id.EdPub,
			EphemeralKey:         ephemeral,
			SignedPreKeyID:       b.SignedPreKeyID,
			PreKeyID:             b.PreKeyID,
		},
		CreatedUnixSec: e.now().Unix(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.convs.SaveConversation(conv)
}

// WrapKey encrypts key for peer with the stored ratchet.
func (e *Engine) WrapKey(peer domain.Address, key []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	conv, ok, err := e.convs.LoadConversation(peer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSession
	}

	header, ct, err := ratchet.Encrypt(&conv.State, associatedData(e.id.XPub, conv.PeerIdentity), key)
	if err != nil {
		return nil, err
	}
	// Persist updated ratchet state before the key leaves the device.
	if err := e.convs.SaveConversation(conv); err != nil {
		return nil, err
	}
	return json.Marshal(wrappedKey{Header: header, PreKey: conv.PreKey, Cipher: ct})
}

// UnwrapKey decrypts a key wrapped for this device by peer and returns it
// with the peer's wire identity key.
//
// The stored ratchet is tried first. When it is missing or fails and the
// blob carries a pre-key header, a responder ratchet is bootstrapped from
// it, consuming the named one-time pre-key. The header is refused when its
// identity differs from pinned (if set) or from the stored session. Stored
// state is only replaced after a successful decrypt.
func (e *Engine) UnwrapKey(peer domain.Address, pinned, wrapped []byte) (key, identityKey []byte, err error) {
	var w wrappedKey
	if err := json.Unmarshal(wrapped, &w); err != nil {
		return nil, nil, fmt.Errorf("decode wrapped key: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	conv, ok, err := e.convs.LoadConversation(peer)
	if err != nil {
		return nil, nil, err
	}

	var lastErr error = ErrNoSession
	if ok {
		st := cloneState(conv.State)
		key, err := ratchet.Decrypt(&st, associatedData(conv.PeerIdentity, e.id.XPub), w.Header, w.Cipher)
		if err == nil {
			conv.State = st
			// The peer has answered, so it holds the session.
			conv.PreKey = nil
			if err := e.convs.SaveConversation(conv); err != nil {
				return nil, nil, err
			}
			return key, conv.PeerIdentityKey, nil
		}
		lastErr = err
	}
	if w.PreKey == nil {
		return nil, nil, lastErr
	}

	ik := crypto.IdentityKey(domain.Identity{XPub: w.PreKey.InitiatorIdentityKey, EdPub: w.PreKey.InitiatorSigningKey})
	if ok && conv.PeerIdentity != w.PreKey.InitiatorIdentityKey {
		return nil, nil, ErrIdentityMismatch
	}
	if len(pinned) > 0 && !bytes.Equal(pinned, ik) {
		return nil, nil, ErrIdentityMismatch
	}
	key, err = e.respond(peer, ik, w)
	if err != nil {
		return nil, nil, err
	}
	return key, ik, nil
}

// respond bootstraps a responder ratchet from w.PreKey and decrypts w.
func (e *Engine) respond(peer domain.Address, identityKey []byte, w wrappedKey) ([]byte, error) {
	pm := *w.PreKey
	if len(w.Header.DiffieHellmanPublicKey) != len(domain.X25519Public{}) {
		return nil, fmt.Errorf("pre-key message: bad ratchet header")
	}

	spk, ok, err := e.prekeys.LoadSignedPreKey(pm.SignedPreKeyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownSignedPreKey
	}

	var opk *domain.OneTimePreKeyPair
	if pm.PreKeyID != 0 {
		p, ok, err := e.prekeys.ConsumeOneTimePreKey(pm.PreKeyID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrUnknownPreKey
		}
		opk = &p
	}
	// Put the one-time pre-key back if the message turns out to be bogus.
	fail := func(err error) error {
		if opk == nil {
			return err
		}
		if rerr := e.prekeys.SaveOneTimePreKeys([]domain.OneTimePreKeyPair{*opk}); rerr != nil {
			return errors.Join(err, fmt.Errorf("restore one-time pre-key %d: %w", opk.ID, rerr))
		}
		return err
	}

	var opkPriv *domain.X25519Private
	if opk != nil {
		opkPriv = &opk.Priv
	}
	rootKey, err := x3dh.ResponderRoot(e.id, spk.Priv, opkPriv, pm)
	if err != nil {
		return nil, fail(fmt.Errorf("x3dh responder root: %w", err))
	}

	var senderRatchet domain.X25519Public
	copy(senderRatchet[:], w.Header.DiffieHellmanPublicKey)
	st, err := ratchet.InitAsResponder(rootKey, e.id.XPriv, senderRatchet)
	if err != nil {
		return nil, fail(err)
	}
	key, err := ratchet.Decrypt(&st, associatedData(pm.InitiatorIdentityKey, e.id.XPub), w.Header, w.Cipher)
	if err != nil {
		return nil, fail(fmt.Errorf("decrypt pre-key message: %w", err))
	}

	conv := domain.Conversation{
		Peer:            peer,
		State:           st,
		PeerIdentity:    pm.InitiatorIdentityKey,
		PeerIdentityKey: identityKey,
		CreatedUnixSec:  e.now().Unix(),
	}
	if err := e.convs.SaveConversation(conv); err != nil {
		return nil, err
	}
	return key, nil
}

// associatedData binds both identity keys, sender first, into every ratchet message.
func associatedData(sender, receiver domain.X25519Public) []byte {
	out := make([]byte, 0, 64)
	out = append(out, sender[:]...)
	return append(out, receiver[:]...)
}

func cloneState(st domain.RatchetState) domain.RatchetState {
	out := st
	out.RootKey = append([]byte(nil), st.RootKey...)
	out.SendChainKey = append([]byte(nil), st.SendChainKey...)
	out.ReceiveChainKey = append([]byte(nil), st.ReceiveChainKey...)
	out.SkippedKeys = make(map[string][]byte, len(st.SkippedKeys))
	for k, v := range st.SkippedKeys {
		out.SkippedKeys[k] = append([]byte(nil), v...)
	}
	return out
}

// Compile-time assertion that Engine implements domain.SessionEngine.
var _ domain.SessionEngine = (*Engine)(nil)
