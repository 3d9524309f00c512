package access

import "crypto/subtle"

// Capability is the authorization tier of a caller against one listing.
type Capability int

const (
	Visitor Capability = iota
	Owner
	Admin
)

func (c Capability) String() string {
	switch c {
	case Admin:
		return "admin"
	case Owner:
		return "owner"
	default:
		return "visitor"
	}
}

// Privileged reports whether the caller may see the authenticated view.
func (c Capability) Privileged() bool {
	return c == Admin || c == Owner
}

// OwnerRef is what the resolver needs to know about a listing.
type OwnerRef struct {
	ListingID uint
	Digest    string
}

// Resolver classifies a presented credential. It holds no mutable state.
type Resolver struct {
	adminSecret []byte
	hasher      Hasher
	tokens      *TokenIssuer
}

// NewResolver builds a resolver. tokens may be nil.
func NewResolver(adminSecret string, hasher Hasher, tokens *TokenIssuer) *Resolver {
	return &Resolver{
		adminSecret: []byte(adminSecret),
		hasher:      hasher,
		tokens:      tokens,
	}
}

// IsAdmin reports whether credential is the admin secret.
func (r *Resolver) IsAdmin(credential string) bool {
	if len(r.adminSecret) == 0 || credential == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), r.adminSecret) == 1
}

// Resolve returns the capability of credential for the listing.
func (r *Resolver) Resolve(credential string, ref OwnerRef) Capability {
	return r.Prepare(credential).For(ref)
}

// Prepare does the listing-independent part of resolution once, so a
// request touching many listings does not repeat it per row.
func (r *Resolver) Prepare(credential string) Credential {
	c := Credential{raw: credential, resolver: r}
	if r.IsAdmin(credential) {
		c.admin = true
		return c
	}
	if claims, ok := r.tokens.parse(credential); ok {
		c.claims = claims
	}
	return c
}

// Tokens exposes the token issuer used for owner logins.
func (r *Resolver) Tokens() *TokenIssuer {
	return r.tokens
}

// Credential is a prepared caller credential.
type Credential struct {
	raw      string
	admin    bool
	claims   *OwnerClaims
	resolver *Resolver
	// signedOnly skips the owner secret check.
	signedOnly bool
}

// Admin reports whether the credential is the admin secret.
func (c Credential) Admin() bool {
	return c.admin
}

// Present reports whether any credential was supplied.
func (c Credential) Present() bool {
	return c.raw != ""
}

// SignedOnly returns a copy that recognizes the admin secret and owner
// tokens but never checks a raw owner secret. Requests that classify many
// listings use it so a credential costs no hash verification per row.
func (c Credential) SignedOnly() Credential {
	c.signedOnly = true
	return c
}

// For classifies the credential against one listing. The admin check always
// wins; a listing without a digest can never be owned. A signed owner token
// is judged only by its claims and never falls through to secret checks.
func (c Credential) For(ref OwnerRef) Capability {
	if c.admin {
		return Admin
	}
	if c.raw == "" || ref.Digest == "" || c.resolver == nil {
		return Visitor
	}
	if c.claims != nil {
		if c.claims.matches(ref.ListingID, ref.Digest) {
			return Owner
		}
		return Visitor
	}
	if c.signedOnly {
		return Visitor
	}
	if c.resolver.hasher != nil && c.resolver.hasher.Verify(c.raw, ref.Digest) {
		return Owner
	}
	return Visitor
}
