package secrets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// InjectLocation identifies where a decrypted credential is attached to an
// outbound HTTP request.
type InjectLocation string

const (
	InjectBearer InjectLocation = "bearer"
	InjectBasic  InjectLocation = "basic"
	InjectHeader InjectLocation = "header"
	InjectQuery  InjectLocation = "query"
)

// CredentialMapping links a secret name to the hosts it may be attached to
// and where in the request it is injected.
type CredentialMapping struct {
	SecretName  string
	HostGlobs   []string // e.g. "api.github.com", "*.internal.example.com"
	Location    InjectLocation
	HeaderName  string // used when Location == InjectHeader
	QueryParam  string // used when Location == InjectQuery
	BasicUser   string // used when Location == InjectBasic; password comes from the secret
}

// Matches reports whether host satisfies one of the mapping's host globs.
// A glob of "*.example.com" matches any subdomain but not example.com
// itself; an exact glob matches only that host.
func (m CredentialMapping) Matches(host string) bool {
	host = strings.ToLower(host)
	for _, g := range m.HostGlobs {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" {
			continue
		}
		if strings.HasPrefix(g, "*.") {
			suffix := g[1:] // ".example.com"
			if strings.HasSuffix(host, suffix) && host != suffix[1:] {
				return true
			}
			continue
		}
		if ok, _ := path.Match(g, host); ok {
			return true
		}
	}
	return false
}

// CapabilityAllowlist gates which secret names a caller (a WASM module or
// a container job) may resolve via credential injection. This is checked
// independently of the host-pattern match in CredentialMapping: both must
// pass before a secret is ever decrypted.
type CapabilityAllowlist interface {
	AllowsSecret(name string) bool
}

// Injector attaches decrypted credentials to outbound HTTP requests at the
// host boundary. Sandboxed code never observes the plaintext value: it
// only ever sees whether a secret of a given name exists (via
// Vault.Exists), never its contents.
type Injector struct {
	vault    *Vault
	mappings []CredentialMapping
}

// NewInjector builds an Injector bound to a vault and a set of credential
// mappings (typically the union configured for a tool or a container job).
func NewInjector(vault *Vault, mappings []CredentialMapping) *Injector {
	return &Injector{vault: vault, mappings: mappings}
}

// Inject finds every mapping whose host pattern matches req's target host
// and whose secret name passes allow, decrypts each matched secret, and
// attaches it to req at its declared location. All decrypted plaintexts
// are zeroed before Inject returns, whether or not injection succeeded.
func (inj *Injector) Inject(ctx context.Context, userID string, req *http.Request, allow CapabilityAllowlist) error {
	host := req.URL.Hostname()
	if u, err := url.Parse(req.URL.String()); err == nil && u.User != nil {
		// Reject requests that already carry userinfo: this is a known
		// allowlist-bypass vector and credential injection must never
		// layer on top of attacker-supplied auth.
		return fmt.Errorf("secrets: refusing to inject into a request with userinfo in the URL")
	}

	for _, m := range inj.mappings {
		if !m.Matches(host) {
			continue
		}
		if allow != nil && !allow.AllowsSecret(m.SecretName) {
			continue
		}
		if err := inj.applyOne(ctx, userID, m, req); err != nil {
			return err
		}
	}
	return nil
}

func (inj *Injector) applyOne(ctx context.Context, userID string, m CredentialMapping, req *http.Request) error {
	pt, err := inj.vault.Get(ctx, userID, m.SecretName)
	if err != nil {
		return fmt.Errorf("secrets: resolving credential %q: %w", m.SecretName, err)
	}
	defer pt.Zero()

	switch m.Location {
	case InjectBearer:
		req.Header.Set("Authorization", "Bearer "+pt.String())
	case InjectBasic:
		req.SetBasicAuth(m.BasicUser, pt.String())
	case InjectHeader:
		name := m.HeaderName
		if name == "" {
			name = "Authorization"
		}
		req.Header.Set(name, pt.String())
	case InjectQuery:
		q := req.URL.Query()
		q.Set(m.QueryParam, pt.String())
		req.URL.RawQuery = q.Encode()
	default:
		return fmt.Errorf("secrets: unknown injection location %q", m.Location)
	}
	return nil
}
