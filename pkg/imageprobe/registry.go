package imageprobe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	requestTimeout     = 15 * time.Second
	pingRequestTimeout = 5 * time.Second
	apiVersionHeader   = "docker-distribution-api-version"
)

func newInsecureClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		// Registries using self-signed certificates (common for private,
		// on-cluster registries) are still probed; callers who need
		// verification configure their own transport.
		Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
	}
}

// v2Manifest fetches the image manifest via the Registry v2 API and
// decodes the embedded v1Compatibility config blob, completing a bearer
// challenge if the registry demands one. justCheck skips the body decode
// once a 200 has been observed.
func v2Manifest(ctx context.Context, client *http.Client, img Image, auth *Credentials, justCheck bool) (*rawImageConfig, bool, error) {
	url := fmt.Sprintf("%s/v2/%s/manifests/%s", img.FullRegistry, img.Repo, img.Tag)

	resp, err := doWithBearerRetry(ctx, client, url, auth)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		supportsV2 := resp.Header.Get(apiVersionHeader) == "registry/2.0"
		return nil, supportsV2, nil
	}
	if justCheck {
		return nil, true, nil
	}

	var manifest struct {
		History []struct {
			V1Compatibility string `json:"v1Compatibility"`
		} `json:"history"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, true, nil
	}
	if len(manifest.History) == 0 {
		return nil, true, nil
	}

	var cfg rawImageConfig
	if err := json.Unmarshal([]byte(manifest.History[0].V1Compatibility), &cfg); err != nil {
		return nil, true, nil
	}
	return &cfg, true, nil
}

func doWithBearerRetry(ctx context.Context, client *http.Client, url string, auth *Credentials) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building manifest request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	ch, ok := parseChallenge(resp.Header.Get("Www-Authenticate"))
	resp.Body.Close()
	if !ok {
		return client.Do(req.Clone(ctx))
	}

	switch ch.scheme {
	case "basic":
		req2, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if auth != nil {
			req2.SetBasicAuth(auth.Username, auth.Password)
		}
		return client.Do(req2)
	case "bearer":
		token, err := bearerToken(ctx, client, ch, auth)
		if err != nil || token == "" {
			req2, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			return client.Do(req2)
		}
		req2, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		req2.Header.Set("Authorization", "Bearer "+token)
		return client.Do(req2)
	default:
		req2, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		return client.Do(req2)
	}
}

// v1ImageInfo fetches image config via the legacy Registry v1 API:
// resolve the tag to an image id, then GET that image's /json document.
func v1ImageInfo(ctx context.Context, client *http.Client, img Image, auth *Credentials, justCheck bool) (*rawImageConfig, error) {
	registry := img.FullRegistry
	if img.IsDockerHub() {
		registry = "https://index.docker.io"
	}

	tagsURL := fmt.Sprintf("%s/v1/repositories/%s/tags/%s", registry, img.Repo, img.Tag)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tagsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building v1 tags request: %w", err)
	}
	req.Header.Set("x-docker-token", "true")
	if auth != nil && auth.Username != "" {
		req.SetBasicAuth(auth.Username, auth.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching v1 tag: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var imageID string
	if err := json.NewDecoder(resp.Body).Decode(&imageID); err != nil || imageID == "" {
		return nil, nil
	}
	if justCheck {
		return &rawImageConfig{}, nil
	}

	jsonURL := fmt.Sprintf("%s/v1/images/%s/json", registry, imageID)
	req2, err := http.NewRequestWithContext(ctx, http.MethodGet, jsonURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building v1 image json request: %w", err)
	}
	resp2, err := client.Do(req2)
	if err != nil {
		return nil, fmt.Errorf("fetching v1 image json: %w", err)
	}
	defer resp2.Body.Close()

	var cfg rawImageConfig
	if err := json.NewDecoder(resp2.Body).Decode(&cfg); err != nil {
		return nil, nil
	}
	return &cfg, nil
}

// pingRegistry checks the registry's /v2/ endpoint, used only to produce a
// meaningful RegistryError when every auth attempt failed. The v1 /_ping
// endpoint is not tried.
func pingRegistry(ctx context.Context, client *http.Client, fullRegistry string) error {
	url := fullRegistry + "/v2/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("registry unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil // registry is up, just not authorized
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("registry returned status %d", resp.StatusCode)
	}
	return nil
}

func toContainerConfig(img Image, raw *rawImageConfig, auth *Credentials) ContainerConfig {
	cfg := ContainerConfig{
		Image:      img.String(),
		SourceURL:  img.SourceURL(),
		Command:    raw.Config.Entrypoint,
		Args:       raw.Config.Cmd,
		WorkingDir: raw.Config.WorkingDir,
	}
	for _, line := range raw.Config.Env {
		name, value := splitEnv(line)
		cfg.Env = append(cfg.Env, EnvVar{Name: name, Value: value})
	}
	for portProto := range raw.Config.ExposedPorts {
		number, proto := splitPort(portProto)
		if number > 0 {
			cfg.Ports = append(cfg.Ports, ExposedPort{Number: number, Protocol: proto})
		}
	}
	for vol := range raw.Config.Volumes {
		cfg.VolumeMounts = append(cfg.VolumeMounts, vol)
	}
	if auth != nil {
		cfg.Secret = auth
	}
	return cfg
}

func splitEnv(line string) (string, string) {
	for i := 0; i < len(line); i++ {
		if line[i] == '=' {
			return line[:i], line[i+1:]
		}
	}
	return line, ""
}

func splitPort(portProto string) (int, string) {
	for i := 0; i < len(portProto); i++ {
		if portProto[i] == '/' {
			var n int
			fmt.Sscanf(portProto[:i], "%d", &n)
			return n, portProto[i+1:]
		}
	}
	var n int
	fmt.Sscanf(portProto, "%d", &n)
	return n, "tcp"
}
