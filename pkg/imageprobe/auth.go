package imageprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Credentials is a registry username/password pair.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Secret is a registry credential scoped to a specific registry host, as
// stored against a user account (e.g. a private registry login).
type Secret struct {
	Username string
	Password string
	Registry string
}

// challenge is the parsed Www-Authenticate header of a 401 response.
type challenge struct {
	scheme string
	params map[string]string
}

func parseChallenge(header string) (challenge, bool) {
	if header == "" {
		return challenge{}, false
	}
	fields := strings.SplitN(header, " ", 2)
	scheme := strings.ToLower(fields[0])
	ch := challenge{scheme: scheme, params: map[string]string{}}
	if len(fields) < 2 {
		return ch, true
	}
	for _, part := range strings.Split(fields[1], ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		ch.params[kv[0]] = strings.Trim(kv[1], `"`)
	}
	return ch, true
}

// bearerToken completes a Docker Registry v2 bearer-token challenge: a
// plain GET to the advertised realm with the challenge's service/scope
// query parameters and, if creds are given, HTTP Basic auth. This is a
// bespoke per-registry token exchange, not an OAuth2 grant — there is no
// client registration, no authorization code, and the response is a bare
// {"token": "..."} object rather than a standard token response.
func bearerToken(ctx context.Context, client *http.Client, ch challenge, creds *Credentials) (string, error) {
	realm := ch.params["realm"]
	if realm == "" {
		return "", fmt.Errorf("bearer challenge missing realm")
	}
	u, err := url.Parse(realm)
	if err != nil {
		return "", fmt.Errorf("parsing token realm: %w", err)
	}
	q := u.Query()
	for k, v := range ch.params {
		if k == "realm" {
			continue
		}
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	if creds != nil && creds.Username != "" {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting registry token: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	return out.Token, nil
}

// secretsFor filters secrets down to the ones scoped to registry.
func secretsFor(secrets []Secret, fullRegistry string) []Credentials {
	var out []Credentials
	for _, s := range secrets {
		if complementRegistry(s.Registry, s.Registry) == fullRegistry {
			out = append(out, Credentials{Username: s.Username, Password: s.Password})
		}
	}
	return out
}
