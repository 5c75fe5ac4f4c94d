package imageprobe

import "testing"

func TestParseImageOfficial(t *testing.T) {
	img, err := ParseImage("nginx", "")
	if err != nil {
		t.Fatal(err)
	}
	if img.Repo != "library/nginx" {
		t.Errorf("repo = %s, want library/nginx", img.Repo)
	}
	if img.Tag != "latest" {
		t.Errorf("tag = %s, want latest", img.Tag)
	}
	if !img.IsDockerHub() || !img.IsOfficial() {
		t.Error("expected official docker hub image")
	}
	if img.String() != "nginx" {
		t.Errorf("String() = %s, want nginx", img.String())
	}
}

func TestParseImageUserRepoWithTag(t *testing.T) {
	img, err := ParseImage("someuser/app:v2", "")
	if err != nil {
		t.Fatal(err)
	}
	if img.Repo != "someuser/app" {
		t.Errorf("repo = %s, want someuser/app", img.Repo)
	}
	if img.Tag != "v2" {
		t.Errorf("tag = %s, want v2", img.Tag)
	}
	if img.IsOfficial() {
		t.Error("should not be official")
	}
	if img.String() != "someuser/app:v2" {
		t.Errorf("String() = %s, want someuser/app:v2", img.String())
	}
}

func TestParseImageThirdPartyRegistry(t *testing.T) {
	img, err := ParseImage("registry.example.com/ns/img:v1", "")
	if err != nil {
		t.Fatal(err)
	}
	if img.Registry != "registry.example.com" {
		t.Errorf("registry = %s, want registry.example.com", img.Registry)
	}
	if img.IsDockerHub() {
		t.Error("should not be docker hub")
	}
	if img.FullRegistry != "https://registry.example.com" {
		t.Errorf("FullRegistry = %s, want https://registry.example.com", img.FullRegistry)
	}
	if img.String() != "registry.example.com/ns/img:v1" {
		t.Errorf("String() = %s, want registry.example.com/ns/img:v1", img.String())
	}
}

func TestParseImageDefaultRegistry(t *testing.T) {
	img, err := ParseImage("myapp", "registry.internal:5000")
	if err != nil {
		t.Fatal(err)
	}
	if img.Registry != "registry.internal:5000" {
		t.Errorf("registry = %s, want registry.internal:5000", img.Registry)
	}
	if img.IsDockerHub() {
		t.Error("should not be treated as docker hub")
	}
}

func TestSourceURLOfficialVsUser(t *testing.T) {
	official, _ := ParseImage("redis", "")
	if official.SourceURL() != "hub.docker.com/_/redis" {
		t.Errorf("SourceURL() = %s, want hub.docker.com/_/redis", official.SourceURL())
	}
	user, _ := ParseImage("someuser/app", "")
	if user.SourceURL() != "hub.docker.com/r/someuser/app" {
		t.Errorf("SourceURL() = %s, want hub.docker.com/r/someuser/app", user.SourceURL())
	}
}
