package auth

import (
	"context"
	"fmt"
	"sync"
)

// UserData is the finalized output of a completed sign-in. It is produced by
// value by the response processor and owned by the session after commit.
type UserData struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`

	// DecentralizedID is the issuer DID of the auth response.
	DecentralizedID string `json:"decentralizedID"`

	// IdentityAddress is the chain address derived from the issuer DID.
	IdentityAddress string `json:"identityAddress"`

	// AppPrivateKey is the app private key, decrypted when the protocol
	// version required it, raw otherwise.
	AppPrivateKey string `json:"appPrivateKey"`

	HubURL          string `json:"hubUrl"`
	CoreAPIEndpoint string `json:"coreAPIEndpoint"`

	// AuthResponseToken is the raw response token the session was
	// materialized from.
	AuthResponseToken ResponseToken `json:"authResponseToken"`

	CoreSessionToken     string `json:"coreSessionToken,omitempty"`
	GaiaAssociationToken string `json:"gaiaAssociationToken,omitempty"`

	// Profile is the resolved JSON-LD profile object. It is nil when the
	// response carried neither an inline profile nor a profile URL.
	Profile map[string]interface{} `json:"profile,omitempty"`
}

// SessionRecord is the persisted state of one logical sign-in session: the
// transit key generated at request time, and the user data committed at
// response time. UserData is set at most once per session lifetime; a
// record that already holds UserData means sign-in completed and a second
// completion attempt must be rejected.
type SessionRecord struct {
	// TransitKey is the ephemeral key pair generated before redirecting,
	// consumed when the response arrives. Absent for flows that never
	// dispatched a request (or pre-decryption protocol versions).
	TransitKey *TransitKeyPair `json:"transitKey,omitempty"`

	// EchoReplyIDs records protocol echo replies already seen, so a
	// replayed echo navigation is not mistaken for a fresh one.
	EchoReplyIDs []string `json:"echoReplyIDs,omitempty"`

	// UserData is set exactly once, by a successful response resolution.
	UserData *UserData `json:"userData,omitempty"`
}

// clone returns a deep enough copy that mutating the result never changes
// the stored record.
func (s *SessionRecord) clone() *SessionRecord {
	if s == nil {
		return nil
	}
	cp := SessionRecord{
		EchoReplyIDs: append([]string(nil), s.EchoReplyIDs...),
	}
	if s.TransitKey != nil {
		tk := *s.TransitKey
		tk.Private = append([]byte(nil), s.TransitKey.Private...)
		tk.Public = append([]byte(nil), s.TransitKey.Public...)
		cp.TransitKey = &tk
	}
	if s.UserData != nil {
		ud := *s.UserData
		if s.UserData.Profile != nil {
			p := make(map[string]interface{}, len(s.UserData.Profile))
			for k, v := range s.UserData.Profile {
				p[k] = v
			}
			ud.Profile = p
		}
		cp.UserData = &ud
	}
	return &cp
}

// SessionStore defines the persistence boundary for a session record.
// Implementations must treat the record as a single-writer resource: the
// processor's already-signed-in guard assumes at most one resolution runs
// per navigation.
type SessionStore interface {
	// Get returns the current session record, or nil when none exists.
	// The returned record must be safe for the caller to mutate.
	Get(ctx context.Context) (*SessionRecord, error)

	// Set replaces the current session record.
	Set(ctx context.Context, record *SessionRecord) error

	// Delete clears the session record entirely. Deleting an absent
	// record is a no-op success.
	Delete(ctx context.Context) error
}

// MemoryStore is an in-memory SessionStore. It is concurrently safe.
type MemoryStore struct {
	mu     sync.Mutex
	record *SessionRecord
}

var _ SessionStore = (*MemoryStore)(nil)

// Get returns a copy of the stored record, or nil when none exists. It
// satisfies the SessionStore interface and is concurrently safe.
func (s *MemoryStore) Get(ctx context.Context) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.clone(), nil
}

// Set stores a copy of the record. It satisfies the SessionStore interface
// and is concurrently safe.
func (s *MemoryStore) Set(ctx context.Context, record *SessionRecord) error {
	const op = "auth.MemoryStore.Set"
	if record == nil {
		return fmt.Errorf("%s: session record is nil: %w", op, ErrNilParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = record.clone()
	return nil
}

// Delete clears the stored record. It satisfies the SessionStore interface
// and is concurrently safe.
func (s *MemoryStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	return nil
}

// LoadUserData returns the committed user data of the current session, or
// nil when no sign-in has completed.
func (c *Client) LoadUserData(ctx context.Context) (*UserData, error) {
	const op = "auth.Client.LoadUserData"
	record, err := c.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read session record: %w", op, err)
	}
	if record == nil {
		return nil, nil
	}
	return record.UserData, nil
}

// IsUserSignedIn reports whether the current session holds committed user
// data.
func (c *Client) IsUserSignedIn(ctx context.Context) (bool, error) {
	const op = "auth.Client.IsUserSignedIn"
	ud, err := c.LoadUserData(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ud != nil, nil
}

// SignUserOut clears the stored session record entirely, then optionally
// navigates to the URL provided via WithRedirectTo. Clearing an absent
// session is a no-op success.
// Supported options: WithRedirectTo.
func (c *Client) SignUserOut(ctx context.Context, opt ...Option) error {
	const op = "auth.Client.SignUserOut"
	opts := getSignOutOpts(opt...)
	if err := c.store.Delete(ctx); err != nil {
		return fmt.Errorf("%s: unable to clear session record: %w", op, err)
	}
	if opts.withRedirectTo != "" {
		if err := c.navigate(opts.withRedirectTo); err != nil {
			return fmt.Errorf("%s: unable to redirect after sign-out: %w", op, err)
		}
	}
	return nil
}

// signOutOptions is the set of available options for Client.SignUserOut
type signOutOptions struct {
	withRedirectTo string
}

func signOutDefaults() signOutOptions {
	return signOutOptions{}
}

func getSignOutOpts(opt ...Option) signOutOptions {
	opts := signOutDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithRedirectTo provides an optional URL to navigate to after sign-out.
func WithRedirectTo(url string) Option {
	return func(o interface{}) {
		if o, ok := o.(*signOutOptions); ok {
			o.withRedirectTo = url
		}
	}
}
