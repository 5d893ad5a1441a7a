package netsuite

import (
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/dghubble/oauth1"
	"github.com/google/uuid"
)

const signatureMethod = "HMAC-SHA256"

// Credentials is the token-based-authentication keypair for one NetSuite account.
type Credentials struct {
	AccountID      string `json:"account_id"`
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
	TokenKey       string `json:"token_key"`
	TokenSecret    string `json:"token_secret"`
}

// LogValue keeps secrets out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("account_id", c.AccountID))
}

// Validate reports the first missing field.
func (c Credentials) Validate() error {
	switch {
	case c.AccountID == "":
		return errors.New("netsuite account id required")
	case c.ConsumerKey == "" || c.ConsumerSecret == "":
		return errors.New("netsuite consumer key and secret required")
	case c.TokenKey == "" || c.TokenSecret == "":
		return errors.New("netsuite token key and secret required")
	}
	return nil
}

// NonceFunc adapts a function to oauth1.Noncer.
type NonceFunc func() string

func (f NonceFunc) Nonce() string { return f() }

func uuidNonce() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }

// Signer holds the one-legged OAuth 1.0a configuration for an account. The
// account id travels as the realm, which is added after signing and never
// enters the base string.
type Signer struct {
	config *oauth1.Config
	token  *oauth1.Token
}

// NewSigner returns an HMAC-SHA256 signer. A nil noncer uses random nonces.
func NewSigner(creds Credentials, noncer oauth1.Noncer) *Signer {
	if noncer == nil {
		noncer = NonceFunc(uuidNonce)
	}
	return &Signer{
		config: &oauth1.Config{
			ConsumerKey:    creds.ConsumerKey,
			ConsumerSecret: creds.ConsumerSecret,
			Realm:          creds.AccountID,
			Signer:         &oauth1.HMAC256Signer{ConsumerSecret: creds.ConsumerSecret},
			Noncer:         noncer,
		},
		token: oauth1.NewToken(creds.TokenKey, creds.TokenSecret),
	}
}

// Wrap returns a client that signs every request and then sends it through
// base's transport, keeping base's timeout.
func (s *Signer) Wrap(base *http.Client) *http.Client {
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, base)
	signed := s.config.Client(ctx, s.token)
	signed.Timeout = base.Timeout
	signed.CheckRedirect = base.CheckRedirect
	signed.Jar = base.Jar
	return signed
}

// BaseString builds METHOD&url&params where params merges the oauth
// parameters with the URL query string.
func BaseString(method, rawURL string, oauthParams map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse url: %q is not absolute", rawURL)
	}

	type pair struct{ k, v string }
	var pairs []pair
	for k, vs := range u.Query() {
		for _, v := range vs {
			pairs = append(pairs, pair{oauth1.PercentEncode(k), oauth1.PercentEncode(v)})
		}
	}
	for k, v := range oauthParams {
		pairs = append(pairs, pair{oauth1.PercentEncode(k), oauth1.PercentEncode(v)})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k == pairs[j].k {
			return pairs[i].v < pairs[j].v
		}
		return pairs[i].k < pairs[j].k
	})
	encoded := make([]string, 0, len(pairs))
	for _, p := range pairs {
		encoded = append(encoded, p.k+"="+p.v)
	}

	return strings.Join([]string{
		strings.ToUpper(method),
		oauth1.PercentEncode(normalizeURL(u)),
		oauth1.PercentEncode(strings.Join(encoded, "&")),
	}, "&"), nil
}

// Verify recomputes the signature carried by r against creds. The realm
// must name the account but is left out of the base string.
func Verify(r *http.Request, creds Credentials) error {
	params, err := ParseAuthorization(r.Header.Get("Authorization"))
	if err != nil {
		return err
	}
	got := params["oauth_signature"]
	if got == "" {
		return errors.New("oauth_signature missing")
	}
	if params["oauth_signature_method"] != signatureMethod {
		return fmt.Errorf("unsupported signature method %q", params["oauth_signature_method"])
	}
	if params["oauth_consumer_key"] != creds.ConsumerKey || params["oauth_token"] != creds.TokenKey {
		return errors.New("unknown consumer or token")
	}
	if params["realm"] != creds.AccountID {
		return fmt.Errorf("realm %q does not match account", params["realm"])
	}
	delete(params, "oauth_signature")
	delete(params, "realm")

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	full := scheme + "://" + r.Host + r.URL.RequestURI()
	base, err := BaseString(r.Method, full, params)
	if err != nil {
		return err
	}
	want, err := (&oauth1.HMAC256Signer{ConsumerSecret: creds.ConsumerSecret}).Sign(creds.TokenSecret, base)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(got), []byte(want)) {
		return errors.New("signature mismatch")
	}
	return nil
}

// ParseAuthorization splits an `OAuth k="v", ...` header into decoded pairs.
func ParseAuthorization(header string) (map[string]string, error) {
	rest, ok := strings.CutPrefix(header, "OAuth ")
	if !ok {
		return nil, errors.New("authorization is not an OAuth header")
	}
	params := make(map[string]string)
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("malformed oauth parameter %q", part)
		}
		v = strings.Trim(v, `"`)
		dk, err := url.PathUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", k, err)
		}
		dv, err := url.PathUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", k, err)
		}
		params[dk] = dv
	}
	return params, nil
}

func normalizeURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}
