package wallet

import (
	"time"

	"github.com/cuemby/hyperfold/pkg/types"
)

// macaroonAttr returns the schema position of its macaroon-secret
// attribute, or false if the schema has none.
func macaroonAttr(schema types.Schema) (int, bool) {
	for i, a := range schema.Attributes {
		if a.Type == "macaroon_secret" {
			return i, true
		}
	}
	return -1, false
}

// VerifyRead reports whether wallet authorizes a read against secret, the
// stored attribute bytes of the item's macaroon-secret attribute (nil if
// the item has none). Per spec §4.5: the secret must be present and every
// token in the wallet must verify under op=read.
func VerifyRead(schema types.Schema, secret []byte, wallet types.AuthWallet, now time.Time) bool {
	if !schema.Authorization {
		return true
	}
	if _, ok := macaroonAttr(schema); !ok {
		return true // no macaroon-secret attribute: authorization isn't wired for this space
	}
	if len(secret) == 0 {
		return false
	}
	return allTokensVerify(wallet, secret, "read", now)
}

// VerifyWrite reports whether wallet authorizes a write against the
// item's current secret (nil if the item doesn't exist yet or has none).
// Per spec §4.5: if there is no current secret, the write is allowed only
// if funcalls includes a SET on the macaroon-secret attribute (the write
// creates the secret); otherwise every token must verify under op=write.
func VerifyWrite(schema types.Schema, secret []byte, wallet types.AuthWallet, funcalls []types.Funcall, now time.Time) bool {
	if !schema.Authorization {
		return true
	}
	attr, ok := macaroonAttr(schema)
	if !ok {
		return true
	}
	if len(secret) == 0 {
		return createsSecret(funcalls, attr)
	}
	return allTokensVerify(wallet, secret, "write", now)
}

func createsSecret(funcalls []types.Funcall, macaroonAttr int) bool {
	for _, f := range funcalls {
		if f.Attr == macaroonAttr && f.Name == types.FuncSet {
			return true
		}
	}
	return false
}

func allTokensVerify(wallet types.AuthWallet, secret []byte, op string, now time.Time) bool {
	if len(wallet.Tokens) == 0 {
		return false
	}
	for _, raw := range wallet.Tokens {
		tok, err := UnmarshalToken(raw)
		if err != nil {
			return false
		}
		if !Verify(tok, secret, op, now) {
			return false
		}
	}
	return true
}

// StripSensitive returns a copy of values with every macaroon_secret
// attribute's entry set to nil. No reply path in this repository calls it.
// values holds one entry per non-key attribute, in schema order (schema
// position 0, the key, is carried separately and is never sensitive).
func StripSensitive(schema types.Schema, values [][]byte) [][]byte {
	out := make([][]byte, len(values))
	copy(out, values)
	for i, a := range schema.Attributes[1:] {
		if i >= len(out) {
			break
		}
		if a.Type == "macaroon_secret" {
			out[i] = nil
		}
	}
	return out
}
