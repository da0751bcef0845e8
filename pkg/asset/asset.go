// Package asset models ledger assets as a tagged variant: the native asset or a credit
// asset identified by (code, issuer). Values are comparable with ==.
package asset

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates the variant.
type Kind uint8

const (
	KindNative Kind = iota
	KindCredit
)

// Wire names used by the ledger's JSON API.
const (
	TypeNative           = "native"
	TypeCreditAlphanum4  = "credit_alphanum4"
	TypeCreditAlphanum12 = "credit_alphanum12"
	NativeCode           = "XLM"
	maxCodeLength        = 12
	shortCodeLength      = 4
)

// Asset is either Native or Credit(code, issuer). The zero value is Native.
type Asset struct {
	kind   Kind
	code   string
	issuer string
}

// Native returns the ledger's native asset.
func Native() Asset { return Asset{kind: KindNative} }

// Credit returns an issued asset. Use NewCredit when the inputs are untrusted.
func Credit(code, issuer string) Asset {
	return Asset{kind: KindCredit, code: code, issuer: issuer}
}

// NewCredit validates code and issuer before building a credit asset.
func NewCredit(code, issuer string) (Asset, error) {
	if code == "" || len(code) > maxCodeLength {
		return Asset{}, fmt.Errorf("invalid asset code %q", code)
	}
	for _, r := range code {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return Asset{}, fmt.Errorf("invalid asset code %q", code)
		}
	}
	if issuer == "" {
		return Asset{}, fmt.Errorf("asset %s: missing issuer", code)
	}
	return Credit(code, issuer), nil
}

func (a Asset) Kind() Kind     { return a.kind }
func (a Asset) IsNative() bool { return a.kind == KindNative }
func (a Asset) Issuer() string { return a.issuer }

// Code returns the asset code, XLM for the native asset.
func (a Asset) Code() string {
	if a.IsNative() {
		return NativeCode
	}
	return a.code
}

// Type returns the ledger wire type.
func (a Asset) Type() string {
	switch {
	case a.IsNative():
		return TypeNative
	case len(a.code) <= shortCodeLength:
		return TypeCreditAlphanum4
	default:
		return TypeCreditAlphanum12
	}
}

// String is the canonical form: "native" or "CODE:ISSUER".
func (a Asset) String() string {
	if a.IsNative() {
		return TypeNative
	}
	return a.code + ":" + a.issuer
}

// Parse reads the canonical String form.
func Parse(s string) (Asset, error) {
	if s == TypeNative {
		return Native(), nil
	}
	code, issuer, ok := strings.Cut(s, ":")
	if !ok {
		return Asset{}, fmt.Errorf("invalid asset %q", s)
	}
	return NewCredit(code, issuer)
}

type wireAsset struct {
	Type   string `json:"asset_type"`
	Code   string `json:"asset_code,omitempty"`
	Issuer string `json:"asset_issuer,omitempty"`
}

// FromWire builds an asset from the ledger's (asset_type, asset_code, asset_issuer) triplet.
func FromWire(assetType, code, issuer string) (Asset, error) {
	switch assetType {
	case TypeNative:
		return Native(), nil
	case TypeCreditAlphanum4, TypeCreditAlphanum12:
		return NewCredit(code, issuer)
	default:
		return Asset{}, fmt.Errorf("unknown asset type %q", assetType)
	}
}

func (a Asset) MarshalJSON() ([]byte, error) {
	w := wireAsset{Type: a.Type()}
	if !a.IsNative() {
		w.Code = a.code
		w.Issuer = a.issuer
	}
	return json.Marshal(w)
}

func (a *Asset) UnmarshalJSON(b []byte) error {
	var w wireAsset
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	parsed, err := FromWire(w.Type, w.Code, w.Issuer)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
