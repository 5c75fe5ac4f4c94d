package imageprobe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kuberdock/kuberdock/internal/apierr"
)

// ContainerSpec is the minimal shape of a user-supplied container, as far
// as image probing is concerned.
type ContainerSpec struct {
	Image   string
	Command []string
	Args    []string
}

// HasCommand reports whether the container spec itself supplies a
// runnable command, without consulting the image.
func (c ContainerSpec) HasCommand() bool {
	return len(c.Command) > 0 || len(c.Args) > 0
}

// Service resolves image references against their registries, caching
// decoded configs and rate-limiting repeated login failures.
type Service struct {
	store           *Store
	client          *http.Client
	defaultRegistry string
	logger          *slog.Logger
}

// NewService builds a Service backed by db, defaulting unqualified image
// references to defaultRegistry.
func NewService(db *pgxpool.Pool, defaultRegistry string, logger *slog.Logger) *Service {
	return &Service{
		store:           NewStore(db),
		client:          newInsecureClient(requestTimeout),
		defaultRegistry: defaultRegistry,
		logger:          logger,
	}
}

// GetContainerConfig resolves imageRef against its registry and returns its
// decoded default command, environment, and exposed ports. A cached config
// is returned unless refreshCache is set. userID and secrets scope private
// registry credentials and the per-user login rate limit.
func (s *Service) GetContainerConfig(ctx context.Context, userID, imageRef string, auth *Credentials, secrets []Secret, refreshCache bool) (ContainerConfig, error) {
	img, err := ParseImage(imageRef, s.defaultRegistry)
	if err != nil {
		return ContainerConfig{}, apierr.Wrap(apierr.KindValidationError, "invalid image reference", err)
	}

	if !refreshCache {
		if cfg, ok, err := s.store.cachedConfig(ctx, img.String()); err == nil && ok {
			return *cfg, nil
		}
	}

	if wait, err := s.store.secondsUntilAllowed(ctx, userID, img.Registry); err == nil && wait > 0 {
		return ContainerConfig{}, apierr.New(apierr.KindTooManyRequests,
			fmt.Sprintf("too many failed login attempts for %s, retry in %s", img.Registry, wait))
	}

	creds := auth
	if creds == nil {
		if found := secretsFor(secrets, img.FullRegistry); len(found) > 0 {
			creds = &found[0]
		}
	}

	raw, err := s.requestImageInfo(ctx, img, creds)
	if err != nil {
		if creds != nil {
			_ = s.store.recordFailedLogin(ctx, userID, img.Registry)
		}
		if pingErr := pingRegistry(ctx, s.client, img.FullRegistry); pingErr != nil {
			return ContainerConfig{}, apierr.Wrap(apierr.KindRegistryError, "registry unreachable", pingErr)
		}
		return ContainerConfig{}, apierr.Wrap(apierr.KindImageNotAvailable,
			fmt.Sprintf("image %s not found or access denied", img.String()), err)
	}
	if creds != nil {
		_ = s.store.clearFailedLogin(ctx, userID, img.Registry)
	}

	cfg := toContainerConfig(img, raw, creds)
	if err := s.store.saveConfig(ctx, img.String(), cfg); err != nil {
		s.logger.WarnContext(ctx, "caching image config failed", "image", img.String(), "error", err)
	}
	return cfg, nil
}

// requestImageInfo tries the Registry v2 manifest endpoint first, falling
// back to the legacy v1 image/json endpoint, mirroring Image.source_url's
// own v2-then-v1 fallback in the original prober.
func (s *Service) requestImageInfo(ctx context.Context, img Image, creds *Credentials) (*rawImageConfig, error) {
	if cfg, supportsV2, err := v2Manifest(ctx, s.client, img, creds, false); err != nil {
		return nil, err
	} else if cfg != nil {
		return cfg, nil
	} else if supportsV2 {
		return nil, fmt.Errorf("registry %s rejected manifest request for %s", img.Registry, img.String())
	}

	cfg, err := v1ImageInfo(ctx, s.client, img, creds, false)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("image %s not found via v1 or v2 API", img.String())
	}
	return cfg, nil
}

// CheckContainers validates that every container either supplies its own
// command or resolves to an image that provides one, porting
// Image.check_containers' CommandIsMissing guard.
func (s *Service) CheckContainers(ctx context.Context, userID string, containers []ContainerSpec, secrets []Secret) error {
	for _, c := range containers {
		if c.HasCommand() {
			continue
		}
		cfg, err := s.GetContainerConfig(ctx, userID, c.Image, nil, secrets, false)
		if err != nil {
			return err
		}
		if !cfg.HasCommand() {
			return apierr.New(apierr.KindCommandIsMissing,
				fmt.Sprintf("no command specified and image %s provides none", c.Image))
		}
	}
	return nil
}
