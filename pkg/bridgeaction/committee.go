package bridgeaction

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// AuthorityMember is one signer in a bridge committee.
type AuthorityMember struct {
	PublicKey   []byte // compressed secp256k1, 33 bytes
	StakeUnits  uint64 // basis points of TotalStakeBps
	BaseURL     string
	Blocklisted bool
}

// Committee is the fixed set of authorities a Certificate's signatures
// are checked against. A Committee is immutable after construction.
type Committee struct {
	members []AuthorityMember
}

// NewCommittee builds a Committee from its members. It does not validate
// that stake sums to TotalStakeBps, and neither does pkg/config when it
// builds a Committee from the roster.
func NewCommittee(members []AuthorityMember) *Committee {
	cp := make([]AuthorityMember, len(members))
	copy(cp, members)
	return &Committee{members: cp}
}

// Members returns every committee member, including blocklisted ones.
func (c *Committee) Members() []AuthorityMember {
	out := make([]AuthorityMember, len(c.members))
	copy(out, c.members)
	return out
}

// ActiveMembers returns every non-blocklisted committee member.
func (c *Committee) ActiveMembers() []AuthorityMember {
	var out []AuthorityMember
	for _, m := range c.members {
		if !m.Blocklisted {
			out = append(out, m)
		}
	}
	return out
}

// StakeOf returns the stake units of the member whose public key matches,
// and whether that member was found.
func (c *Committee) StakeOf(pubKey []byte) (uint64, bool) {
	for _, m := range c.members {
		if bytes.Equal(m.PublicKey, pubKey) {
			return m.StakeUnits, true
		}
	}
	return 0, false
}

// Certificate is an action plus the signatures collected for it, keyed
// by authority public key. A Certificate by itself carries no guarantee
// that the signatures are valid or that their stake clears a threshold;
// only a VerifiedCertificate does.
type Certificate struct {
	Action     *Action
	Signatures map[string][]byte // hex(public key) -> signature bytes
}

// VerifiedCertificate wraps a Certificate that has already passed
// signature verification and stake-threshold checks. The zero value is
// not usable: the only way to obtain one is NewVerifiedCertificate,
// which is expected to be called only from the aggregator or from a
// deserialization boundary that already trusts its input.
type VerifiedCertificate struct {
	cert *Certificate
}

// NewVerifiedCertificate marks cert as verified. Callers outside
// pkg/aggregator must be certain cert's signatures were independently
// checked against committee and threshold before calling this — it
// performs no checks of its own. This is the "trust me" boundary noted
// in the package design: a deserialization helper reconstructing a
// certificate already persisted as verified is the other legitimate
// caller.
func NewVerifiedCertificate(cert *Certificate) *VerifiedCertificate {
	return &VerifiedCertificate{cert: cert}
}

// Certificate returns the underlying certificate.
func (v *VerifiedCertificate) Certificate() *Certificate {
	return v.cert
}

// Action returns the certified action.
func (v *VerifiedCertificate) Action() *Action {
	return v.cert.Action
}

// StakeSum returns the aggregate stake of the certificate's signers
// against committee, and an error if a signer is not a committee member.
func StakeSum(committee *Committee, cert *Certificate) (uint64, error) {
	var total uint64
	for pkHex := range cert.Signatures {
		pk, err := hex.DecodeString(pkHex)
		if err != nil {
			return 0, fmt.Errorf("bridgeaction: malformed signer key %q: %w", pkHex, err)
		}
		stake, ok := committee.StakeOf(pk)
		if !ok {
			return 0, fmt.Errorf("bridgeaction: signer %q is not a committee member", pkHex)
		}
		total += stake
	}
	return total, nil
}

// PubKeyHex is the canonical map key used in Certificate.Signatures.
func PubKeyHex(pubKey []byte) string {
	return hex.EncodeToString(pubKey)
}
