// Package auth handles inbound credential decoding and the client-credentials
// token exchange against the identity server.
package auth

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/veridion/orgagent/types"
)

// DecodeAPIKey decodes a base64 "clientId:clientSecret" credential header.
// An optional case-insensitive "Basic " prefix is stripped first. The decoded
// bytes must be valid UTF-8 text with exactly one separating colon and
// non-empty halves.
func DecodeAPIKey(header string) (clientID, clientSecret string, err error) {
	if strings.TrimSpace(header) == "" {
		return "", "", types.NewError(types.ErrBadFormat, "api key header is empty")
	}

	blob := header
	if len(blob) >= 6 && strings.EqualFold(blob[:6], "basic ") {
		blob = blob[6:]
	}

	decoded, decErr := base64.StdEncoding.DecodeString(blob)
	if decErr != nil {
		return "", "", types.NewError(types.ErrBadEncoding, "api key is not valid base64").WithCause(decErr)
	}
	if !utf8.Valid(decoded) {
		return "", "", types.NewError(types.ErrBadEncoding, "decoded api key is not valid UTF-8 text")
	}

	id, secret, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", "", types.NewError(types.ErrBadFormat, "api key must decode to 'clientId:clientSecret'")
	}
	if id == "" || secret == "" {
		return "", "", types.NewError(types.ErrBadFormat, "client id and secret must both be non-empty")
	}
	return id, secret, nil
}

// NormalizeAPIKey strips the optional "Basic " prefix, returning the bare
// base64 blob that the token exchange passes through verbatim.
func NormalizeAPIKey(header string) string {
	if len(header) >= 6 && strings.EqualFold(header[:6], "basic ") {
		return header[6:]
	}
	return header
}
