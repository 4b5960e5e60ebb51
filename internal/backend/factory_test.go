package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tani/internal/config"
	"tani/internal/ports"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{DataBackend: "memory", SeedEmail: "a@b.id", SeedPassword: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, MemoryBackend, cfg.Type)
	assert.Equal(t, "a@b.id", cfg.SeedEmail)

	_, err = FromAppConfig(&config.Config{DataBackend: "sqlite"})
	assert.Error(t, err)
	_, err = FromAppConfig(nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"memory half seed", Config{Type: MemoryBackend, SeedEmail: "a@b.id"}, true},
		{"remote", Config{Type: RemoteBackend, BaaSURL: "https://x.example", AnonKey: "k"}, false},
		{"remote without key", Config{Type: RemoteBackend, BaaSURL: "https://x.example"}, true},
		{"unknown", Config{Type: "sheets"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.Equal(t, []string{"remote", "memory"}, GetBackendTypeStrings())
}

func TestNewMemorySeedsSuperadmin(t *testing.T) {
	res, err := New(Config{Type: MemoryBackend, SeedEmail: "root@tani.id", SeedPassword: "secret1"}, nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Memory)

	sess, err := res.Ports.Auth.SignIn(context.Background(), "root@tani.id", "secret1")
	require.NoError(t, err)
	p, err := res.Ports.Profiles.GetProfile(context.Background(), sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, "superadmin", string(p.Role))
}

func TestNewRemote(t *testing.T) {
	res, err := New(Config{Type: RemoteBackend, BaaSURL: "https://x.example", AnonKey: "k"}, staticToken("t"), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Memory)
	assert.NotNil(t, res.Ports.Seasons)
}

func TestTokenRelay(t *testing.T) {
	var r TokenRelay
	_, err := r.AccessToken(context.Background())
	assert.ErrorIs(t, err, ports.ErrUnauthorized)

	r.Attach(staticToken("abc"))
	tok, err := r.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}
