package ethauth

import (
	"context"
	"sync"
)

// ProviderEmail is the grant section that gates the local (signature) login.
const ProviderEmail = "email"

// Policy is a read-only snapshot of the auth settings. Handlers fetch one
// per request and pass it to the components.
type Policy struct {
	Advanced AdvancedSettings            `koanf:"advanced" json:"advanced"`
	Email    EmailSettings               `koanf:"email" json:"email"`
	Grant    map[string]ProviderSettings `koanf:"grant" json:"grant"`
}

// AdvancedSettings holds registration and confirmation switches
type AdvancedSettings struct {
	UniqueEmail                  bool   `koanf:"unique_email" json:"unique_email"`
	AllowRegister                bool   `koanf:"allow_register" json:"allow_register"`
	EmailConfirmation            bool   `koanf:"email_confirmation" json:"email_confirmation"`
	EmailResetPassword           string `koanf:"email_reset_password" json:"email_reset_password"`
	EmailConfirmationRedirection string `koanf:"email_confirmation_redirection" json:"email_confirmation_redirection"`
	DefaultRole                  string `koanf:"default_role" json:"default_role"`
}

// EmailSettings holds the templates of the outbound emails
type EmailSettings struct {
	ResetPassword     EmailTemplate `koanf:"reset_password" json:"reset_password"`
	EmailConfirmation EmailTemplate `koanf:"email_confirmation" json:"email_confirmation"`
}

// EmailTemplate is rendered with pongo2. Object is the subject line.
type EmailTemplate struct {
	FromName      string `koanf:"from_name" json:"from_name"`
	FromEmail     string `koanf:"from_email" json:"from_email"`
	ResponseEmail string `koanf:"response_email" json:"response_email"`
	Object        string `koanf:"object" json:"object"`
	Message       string `koanf:"message" json:"message"`
}

// ProviderSettings configures one grant provider
type ProviderSettings struct {
	Enabled     bool     `koanf:"enabled" json:"enabled"`
	Key         string   `koanf:"key" json:"key,omitempty"`
	Secret      string   `koanf:"secret" json:"-"`
	Callback    string   `koanf:"callback" json:"callback,omitempty"`
	RedirectURI string   `koanf:"redirect_uri" json:"redirect_uri,omitempty"`
	Scope       []string `koanf:"scope" json:"scope,omitempty"`
}

// ProviderEnabled reports whether logins through provider are allowed.
// The local provider is governed by the "email" grant section.
func (p *Policy) ProviderEnabled(provider string) bool {
	if p == nil {
		return false
	}
	if provider == "" || provider == ProviderLocal {
		provider = ProviderEmail
	}
	settings, ok := p.Grant[provider]
	return ok && settings.Enabled
}

// Provider returns the settings for provider
func (p *Policy) Provider(provider string) (ProviderSettings, bool) {
	if p == nil {
		return ProviderSettings{}, false
	}
	settings, ok := p.Grant[provider]
	return settings, ok
}

// Clone returns a deep copy so a snapshot cannot change mid-request
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}

	out := &Policy{
		Advanced: p.Advanced,
		Email:    p.Email,
		Grant:    make(map[string]ProviderSettings, len(p.Grant)),
	}

	for name, settings := range p.Grant {
		if len(settings.Scope) > 0 {
			settings.Scope = append([]string(nil), settings.Scope...)
		}
		out.Grant[name] = settings
	}

	return out
}

// DefaultPolicy returns the settings a fresh install starts with
func DefaultPolicy() *Policy {
	return &Policy{
		Advanced: AdvancedSettings{
			UniqueEmail:       true,
			AllowRegister:     true,
			EmailConfirmation: false,
			DefaultRole:       RoleTypeAuthenticated,
		},
		Email: EmailSettings{
			ResetPassword: EmailTemplate{
				FromName:  "Administration Panel",
				FromEmail: "no-reply@example.com",
				Object:    "Reset password",
				Message: `<p>We heard that you lost your password. Sorry about that!</p>
<p>But don't worry! You can use the following link to reset your password:</p>
<p>{{ URL }}?code={{ TOKEN }}</p>
<p>Thanks.</p>`,
			},
			EmailConfirmation: EmailTemplate{
				FromName:  "Administration Panel",
				FromEmail: "no-reply@example.com",
				Object:    "Account confirmation",
				Message: `<p>Thank you for registering!</p>
<p>You have to confirm your email address. Please click on the link below.</p>
<p>{{ URL }}?confirmation={{ CODE }}</p>
<p>Thanks.</p>`,
			},
		},
		Grant: map[string]ProviderSettings{
			ProviderEmail: {Enabled: true},
		},
	}
}

// StaticPolicyStore keeps the policy in memory
type StaticPolicyStore struct {
	mu     sync.RWMutex
	policy *Policy
}

var _ PolicyStore = (*StaticPolicyStore)(nil)

// NewStaticPolicyStore returns a store seeded with policy, or the default
// policy when nil.
func NewStaticPolicyStore(policy *Policy) *StaticPolicyStore {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &StaticPolicyStore{policy: policy.Clone()}
}

// Snapshot returns a copy of the current policy
func (s *StaticPolicyStore) Snapshot(ctx context.Context) (*Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy.Clone(), nil
}

// Update replaces the stored policy. Snapshots already handed out are
// not affected.
func (s *StaticPolicyStore) Update(policy *Policy) {
	if policy == nil {
		return
	}
	s.mu.Lock()
	s.policy = policy.Clone()
	s.mu.Unlock()
}
