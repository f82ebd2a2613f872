package identity

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
	"github.com/l1ndleq/creamshop-backend/internal/kv"
)

// Key prefixes. Bindings are stored per digit-variant so storefront-entered
// and bot-entered formats converge on the same chat.
const (
	phoneKeyPrefix = "tg:phone:"
	chatKeyPrefix  = "tg:chat:"
	authKeyPrefix  = "tg:auth:"
	profilePrefix  = "customer:"
)

// AuthStateTTL bounds the browser-login handshake window.
const AuthStateTTL = 10 * time.Minute

// Registry maps phone numbers to Telegram chats and back, and manages the
// ephemeral auth-state records of the deep-link login flow.
type Registry struct {
	store kv.Store
}

// NewRegistry constructs a Registry over the given store.
func NewRegistry(store kv.Store) *Registry {
	return &Registry{store: store}
}

// Bind links chatID with rawPhone. Both directions are written: every digit
// variant of the phone points at the chat, and the chat points at the
// canonical phone. Re-binding an already-linked phone overwrites.
func (r *Registry) Bind(ctx context.Context, chatID int64, rawPhone string) (phone, digits string, err error) {
	phone, digits, err = NormalizePhone(rawPhone)
	if err != nil {
		return "", "", err
	}
	chat := strconv.FormatInt(chatID, 10)
	for _, variant := range resolveVariants(phone) {
		if err := r.store.Set(ctx, phoneKeyPrefix+variant, chat, kv.NoTTL); err != nil {
			return "", "", err
		}
	}
	if err := r.store.Set(ctx, chatKeyPrefix+chat, phone, kv.NoTTL); err != nil {
		return "", "", err
	}
	return phone, digits, nil
}

// ResolveChat returns the chat bound to phone, trying every known digit
// variant of the number. The boolean reports whether a binding exists.
func (r *Registry) ResolveChat(ctx context.Context, phone string) (int64, bool, error) {
	for _, variant := range resolveVariants(phone) {
		v, ok, err := r.store.Get(ctx, phoneKeyPrefix+variant)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		return id, true, nil
	}
	return 0, false, nil
}

// PhoneForChat returns the canonical phone bound to a chat, if any.
func (r *Registry) PhoneForChat(ctx context.Context, chatID int64) (string, bool, error) {
	return r.store.Get(ctx, chatKeyPrefix+strconv.FormatInt(chatID, 10))
}

// Unbind removes every variant key of phone and the reverse chat key.
func (r *Registry) Unbind(ctx context.Context, phone string) error {
	chatID, ok, err := r.ResolveChat(ctx, phone)
	if err != nil {
		return err
	}
	keys := make([]string, 0, 8)
	for _, variant := range resolveVariants(phone) {
		keys = append(keys, phoneKeyPrefix+variant)
	}
	if ok {
		keys = append(keys, chatKeyPrefix+strconv.FormatInt(chatID, 10))
	}
	return r.store.Del(ctx, keys...)
}

// CreateAuthState allocates a pending login handshake and returns its handle,
// which the storefront embeds into a bot deep link (/start auth_<handle>).
func (r *Registry) CreateAuthState(ctx context.Context, next string) (string, error) {
	state := uuid.NewString()
	raw, err := json.Marshal(domain.AuthState{Status: domain.AuthPending, Next: next})
	if err != nil {
		return "", err
	}
	if err := r.store.Set(ctx, authKeyPrefix+state, string(raw), AuthStateTTL); err != nil {
		return "", err
	}
	return state, nil
}

// GetAuthState loads a handshake record. Missing or expired records return
// ok=false, which callers treat as "link expired, start over".
func (r *Registry) GetAuthState(ctx context.Context, state string) (domain.AuthState, bool, error) {
	raw, ok, err := r.store.Get(ctx, authKeyPrefix+state)
	if err != nil || !ok {
		return domain.AuthState{}, false, err
	}
	var st domain.AuthState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return domain.AuthState{}, false, nil
	}
	return st, true, nil
}

// CompleteAuthState flips a pending handshake to ready with the bound phone.
// The TTL restarts so the browser poller has the full window to pick it up.
func (r *Registry) CompleteAuthState(ctx context.Context, state, phone string) error {
	st, ok, err := r.GetAuthState(ctx, state)
	if err != nil {
		return err
	}
	if !ok {
		return nil // expired while the user was in the chat; poller starts over
	}
	st.Status = domain.AuthReady
	st.Phone = phone
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, authKeyPrefix+state, string(raw), AuthStateTTL)
}

// DeleteAuthState removes a consumed or abandoned handshake.
func (r *Registry) DeleteAuthState(ctx context.Context, state string) error {
	return r.store.Del(ctx, authKeyPrefix+state)
}

// SaveProfile upserts the reusable customer profile keyed by phone digits.
// Empty fields in the update keep their previous values so a checkout (name
// only) and a bot contact share (telegram only) enrich the same record.
func (r *Registry) SaveProfile(ctx context.Context, p domain.CustomerProfile) error {
	phone, digits, err := NormalizePhone(p.Phone)
	if err != nil {
		return err
	}
	p.Phone = phone
	if prev, ok, _ := r.GetProfile(ctx, digits); ok {
		if p.Name == "" {
			p.Name = prev.Name
		}
		if p.Telegram == "" {
			p.Telegram = prev.Telegram
		}
		if p.ChatID == 0 {
			p.ChatID = prev.ChatID
		}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, profilePrefix+digits, string(raw), kv.NoTTL)
}

// GetProfile loads the profile for a phone-digits key.
func (r *Registry) GetProfile(ctx context.Context, digits string) (domain.CustomerProfile, bool, error) {
	raw, ok, err := r.store.Get(ctx, profilePrefix+digits)
	if err != nil || !ok {
		return domain.CustomerProfile{}, false, err
	}
	var p domain.CustomerProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.CustomerProfile{}, false, nil
	}
	return p, true, nil
}
