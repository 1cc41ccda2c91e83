package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/tensorzero/gateway/types"
)

// CredentialLocationKind is the tag of the CredentialLocation sum type
// (spec §4.A).
type CredentialLocationKind string

const (
	CredentialLocationEnv          CredentialLocationKind = "env"
	CredentialLocationPathFromEnv  CredentialLocationKind = "path_from_env"
	CredentialLocationPath         CredentialLocationKind = "path"
	CredentialLocationDynamic      CredentialLocationKind = "dynamic"
	CredentialLocationNone         CredentialLocationKind = "none"
	CredentialLocationWithFallback CredentialLocationKind = "with_fallback"
)

// CredentialLocation is the declarative description of where a provider's
// secret lives, as written in config. Resolve turns it into a Credential;
// the model router calls ResolveAtRequest on every provider attempt, so
// env and file locations are read again on each call, and WithFallback
// tries its default and then its fallback arm at request time (spec §4.A).
type CredentialLocation struct {
	Kind CredentialLocationKind

	Name string // env var name (Env, PathFromEnv) or dynamic key name (Dynamic)
	Path string // literal path (Path)

	Default  *CredentialLocation // WithFallback
	Fallback *CredentialLocation // WithFallback
}

// CredentialKind is the tag of the resolved Credential sum type.
type CredentialKind string

const (
	CredentialStatic       CredentialKind = "static"
	CredentialFileContents CredentialKind = "file_contents"
	CredentialDynamic      CredentialKind = "dynamic"
	CredentialNone         CredentialKind = "none"
)

// Credential is a resolved secret: a captured value, a dynamic lookup key
// to be resolved per request, or an explicit absence.
type Credential struct {
	Kind   CredentialKind
	Secret string // Static, FileContents
	Key    string // Dynamic
}

// String never exposes the secret value.
func (c Credential) String() string {
	switch c.Kind {
	case CredentialStatic, CredentialFileContents:
		return fmt.Sprintf("Credential{%s: ***}", c.Kind)
	case CredentialDynamic:
		return fmt.Sprintf("Credential{dynamic: %s}", c.Key)
	default:
		return "Credential{none}"
	}
}

// InferenceCredentials is the per-request map of dynamic credential keys
// to secret values, supplied by the caller (spec §3 "dynamic credentials
// are read from a per-request map").
type InferenceCredentials map[string]string

// Resolve turns a CredentialLocation into a Credential. It never panics
// and never logs a secret value (spec §4.A).
func Resolve(loc CredentialLocation, logger *zap.Logger) (Credential, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch loc.Kind {
	case CredentialLocationNone:
		return Credential{Kind: CredentialNone}, nil

	case CredentialLocationDynamic:
		return Credential{Kind: CredentialDynamic, Key: loc.Name}, nil

	case CredentialLocationEnv:
		v, ok := os.LookupEnv(loc.Name)
		if !ok || v == "" {
			return Credential{}, apiKeyMissing(loc.Name)
		}
		return Credential{Kind: CredentialStatic, Secret: v}, nil

	case CredentialLocationPathFromEnv:
		p, ok := os.LookupEnv(loc.Name)
		if !ok || p == "" {
			return Credential{}, apiKeyMissing(loc.Name)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return Credential{}, apiKeyMissing(loc.Name)
		}
		return Credential{Kind: CredentialFileContents, Secret: strings.TrimSpace(string(data))}, nil

	case CredentialLocationPath:
		data, err := os.ReadFile(loc.Path)
		if err != nil {
			return Credential{}, apiKeyMissing(loc.Path)
		}
		return Credential{Kind: CredentialFileContents, Secret: strings.TrimSpace(string(data))}, nil

	case CredentialLocationWithFallback:
		// The fallback arm is re-evaluated lazily at request time by
		// ResolveAtRequest; Resolve only validates shape.
		if loc.Default == nil || loc.Fallback == nil {
			return Credential{}, fmt.Errorf("with_fallback credential location missing default/fallback")
		}
		return Credential{Kind: CredentialNone}, nil

	default:
		return Credential{}, fmt.Errorf("unknown credential location kind %q", loc.Kind)
	}
}

// ResolveAtRequest resolves a credential at request time, honoring
// WithFallback's lazy default-then-fallback semantics: the default is
// tried first, a failure is logged at WARN and the fallback is tried
// (spec §4.A).
func ResolveAtRequest(ctx context.Context, loc CredentialLocation, creds InferenceCredentials, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch loc.Kind {
	case CredentialLocationWithFallback:
		secret, err := ResolveAtRequest(ctx, *loc.Default, creds, logger)
		if err == nil {
			return secret, nil
		}
		logger.Warn("credential default resolution failed, trying fallback", zap.Error(err))
		return ResolveAtRequest(ctx, *loc.Fallback, creds, logger)

	case CredentialLocationDynamic:
		v, ok := creds[loc.Name]
		if !ok || v == "" {
			return "", apiKeyMissing(loc.Name)
		}
		return v, nil

	case CredentialLocationNone:
		return "", nil

	default:
		cred, err := Resolve(loc, logger)
		if err != nil {
			return "", err
		}
		if cred.Kind == CredentialDynamic {
			v, ok := creds[cred.Key]
			if !ok || v == "" {
				return "", apiKeyMissing(cred.Key)
			}
			return v, nil
		}
		return cred.Secret, nil
	}
}

func apiKeyMissing(name string) error {
	return &types.Error{
		Code:    types.ErrApiKeyMissing,
		Message: fmt.Sprintf("credential %q could not be resolved", name),
	}
}
