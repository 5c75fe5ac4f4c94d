// Package imageprobe resolves a container image reference against its
// registry to learn the image's default CMD/ENTRYPOINT, exposed ports,
// and environment — the data the pod controller needs to synthesize a
// container spec and to reject one that specifies no command where the
// image provides none either.
package imageprobe

import (
	"fmt"
	"regexp"
	"strings"
)

// fallbackRegistryHost is used when ParseImage is given no defaultRegistry;
// Service passes the configured default registry instead, so the fallback
// applies only to callers outside a Service (e.g. in tests).
const fallbackRegistryHost = "registry.hub.docker.com"

var imagePattern = regexp.MustCompile(`^(?:(.+(?:\..+?)+)/)?(.+?)(?::(.+))?$`)

// Image is a parsed image reference, split the way the Docker Registry
// API needs it: a reference without a registry host resolves to the
// default registry (Docker Hub unless configured otherwise), and an
// unqualified repo there gets the implicit "library/" namespace.
type Image struct {
	FullRegistry string // e.g. "https://registry.hub.docker.com"
	Registry     string // e.g. "registry.hub.docker.com"
	Repo         string // e.g. "library/nginx"
	Tag          string // e.g. "latest"
}

// ParseImage parses a reference in one of the forms:
//
//	nginx[:tag]                      (official Docker Hub image)
//	someuser/nginx[:tag]              (Docker Hub user image)
//	registry.example.com/ns/img[:tag] (third-party registry)
func ParseImage(ref, defaultRegistry string) (Image, error) {
	m := imagePattern.FindStringSubmatch(ref)
	if m == nil {
		return Image{}, fmt.Errorf("invalid image reference %q", ref)
	}
	registry, repo, tag := m[1], m[2], m[3]
	if tag == "" {
		tag = "latest"
	}

	defaultHost := fallbackRegistryHost
	if defaultRegistry != "" {
		defaultHost = hostOf(defaultRegistry)
	}

	if registry == "" || strings.HasSuffix(registry, "docker.io") {
		img := Image{
			FullRegistry: complementRegistry(defaultRegistry, defaultHost),
			Registry:     defaultHost,
			Repo:         repo,
			Tag:          tag,
		}
		if !strings.Contains(repo, "/") {
			img.Repo = "library/" + repo
		}
		return img, nil
	}

	return Image{
		FullRegistry: complementRegistry(registry, registry),
		Registry:     registry,
		Repo:         repo,
		Tag:          tag,
	}, nil
}

func hostOf(registry string) string {
	registry = strings.TrimPrefix(registry, "https://")
	registry = strings.TrimPrefix(registry, "http://")
	return strings.TrimSuffix(registry, "/")
}

func complementRegistry(registry, fallbackHost string) string {
	if registry == "" {
		registry = fallbackHost
	}
	if !strings.Contains(registry, "://") {
		registry = "https://" + registry
	}
	return strings.TrimSuffix(registry, "/")
}

// IsDockerHub reports whether the image resolves to Docker Hub.
func (img Image) IsDockerHub() bool {
	return strings.HasSuffix(img.Registry, "docker.io") || strings.HasSuffix(img.Registry, "hub.docker.com")
}

// IsOfficial reports whether the image is an official (unnamespaced)
// Docker Hub image.
func (img Image) IsOfficial() bool {
	return img.IsDockerHub() && strings.HasPrefix(img.Repo, "library/")
}

// String renders the shortest form a user would type for this image.
func (img Image) String() string {
	repo := img.Repo
	if img.IsDockerHub() && strings.HasPrefix(repo, "library/") {
		repo = strings.TrimPrefix(repo, "library/")
	}
	out := repo
	if img.Tag != "latest" {
		out += ":" + img.Tag
	}
	if !img.IsDockerHub() {
		out = img.Registry + "/" + out
	}
	return out
}

// SourceURL returns a human-facing link to the image's registry listing.
func (img Image) SourceURL() string {
	if !img.IsDockerHub() {
		return img.String()
	}
	if img.IsOfficial() {
		return "hub.docker.com/_/" + strings.TrimPrefix(img.Repo, "library/")
	}
	return "hub.docker.com/r/" + img.Repo
}
