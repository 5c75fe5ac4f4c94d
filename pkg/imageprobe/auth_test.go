package imageprobe

import "testing"

func TestParseChallengeBearer(t *testing.T) {
	ch, ok := parseChallenge(`Bearer realm="https://auth.example.com/token",service="registry.example.com",scope="repository:library/nginx:pull"`)
	if !ok {
		t.Fatal("expected a parsed challenge")
	}
	if ch.scheme != "bearer" {
		t.Errorf("scheme = %s, want bearer", ch.scheme)
	}
	if ch.params["realm"] != "https://auth.example.com/token" {
		t.Errorf("realm = %s", ch.params["realm"])
	}
	if ch.params["service"] != "registry.example.com" {
		t.Errorf("service = %s", ch.params["service"])
	}
	if ch.params["scope"] != "repository:library/nginx:pull" {
		t.Errorf("scope = %s", ch.params["scope"])
	}
}

func TestParseChallengeBasic(t *testing.T) {
	ch, ok := parseChallenge(`Basic realm="registry"`)
	if !ok {
		t.Fatal("expected a parsed challenge")
	}
	if ch.scheme != "basic" {
		t.Errorf("scheme = %s, want basic", ch.scheme)
	}
}

func TestParseChallengeEmpty(t *testing.T) {
	if _, ok := parseChallenge(""); ok {
		t.Error("expected no challenge for empty header")
	}
}

func TestSecretsForFiltersByRegistry(t *testing.T) {
	secrets := []Secret{
		{Username: "u1", Password: "p1", Registry: "registry.example.com"},
		{Username: "u2", Password: "p2", Registry: "other.example.com"},
	}
	found := secretsFor(secrets, "https://registry.example.com")
	if len(found) != 1 {
		t.Fatalf("expected 1 match, got %d", len(found))
	}
	if found[0].Username != "u1" {
		t.Errorf("username = %s, want u1", found[0].Username)
	}
}
