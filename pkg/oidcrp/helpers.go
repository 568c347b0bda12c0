package oidcrp

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

type param struct {
	key   string
	value string
}

// params is an insertion-ordered query/form parameter list. url.Values sorts
// its keys on Encode, and providers we talk to care about ordering.
type params struct {
	list []param
}

// set replaces the value of an existing key in place or appends a new one.
func (p *params) set(key, value string) {
	for i := range p.list {
		if p.list[i].key == key {
			p.list[i].value = value
			return
		}
	}
	p.list = append(p.list, param{key, value})
}

// setIfPresent skips empty values; unset options never show up as "k=".
func (p *params) setIfPresent(key, value string) {
	if value == "" {
		return
	}
	p.set(key, value)
}

func (p *params) get(key string) string {
	for _, kv := range p.list {
		if kv.key == key {
			return kv.value
		}
	}
	return ""
}

func (p *params) keys() []string {
	keys := make([]string, 0, len(p.list))
	for _, kv := range p.list {
		keys = append(keys, kv.key)
	}
	return keys
}

func (p *params) Encode() string {
	var sb strings.Builder
	for i, kv := range p.list {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(kv.key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(kv.value))
	}
	return sb.String()
}

var uriComponentUnescapes = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeURIComponent matches the ECMAScript function of the same name, which
// is what providers expect inside the Basic credentials of client_secret_basic.
func encodeURIComponent(s string) string {
	return uriComponentUnescapes.Replace(url.QueryEscape(s))
}

func basicAuth(clientID, secret string) string {
	creds := fmt.Sprintf("%s:%s", encodeURIComponent(clientID), secret)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

func codeUUID(prefix string) string {
	uu, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	if prefix == "" {
		return uu.String()
	}
	return fmt.Sprintf("%s-%s", prefix, uu.String())
}

// NewState returns an opaque value for the state authorize option.
func NewState() string {
	return codeUUID("state")
}

// NewNonce returns an opaque value for the nonce authorize option.
func NewNonce() string {
	return codeUUID("nonce")
}

func (p *params) has(key string) bool {
	for _, kv := range p.list {
		if kv.key == key {
			return true
		}
	}
	return false
}

// mergeQuery lays generated over an endpoint's existing query. A generated
// key takes the place of the first existing pair with that key and drops the
// rest; other existing pairs keep their order ahead of the new keys.
func mergeQuery(rawQuery string, generated *params) (string, error) {
	merged := &params{}
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return "", fmt.Errorf("invalid query key %q: %w", k, err)
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return "", fmt.Errorf("invalid query value %q: %w", v, err)
		}
		if generated.has(key) {
			if merged.has(key) {
				continue
			}
			value = generated.get(key)
		}
		merged.list = append(merged.list, param{key, value})
	}
	for _, kv := range generated.list {
		if !merged.has(kv.key) {
			merged.list = append(merged.list, kv)
		}
	}
	return merged.Encode(), nil
}
