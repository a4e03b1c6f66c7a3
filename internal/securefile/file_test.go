package securefile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastKDF = KDFParams{Time: 1, MemoryKiB: 1024, Threads: 1, KeyLen: 32}

type payload struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func TestSealOpenRoundTrip(t *testing.T) {
	opt := Options{KDF: fastKDF, AAD: []byte("test:aad")}
	in := payload{Name: "vault", Items: []string{"a", "b"}}

	sealed, err := SealJSON(in, []byte("correct horse"), opt)
	require.NoError(t, err)

	out, err := OpenJSON[payload](sealed, []byte("correct horse"), opt)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestOpenFailuresAreGeneric(t *testing.T) {
	opt := Options{KDF: fastKDF, AAD: []byte("test:aad")}
	sealed, err := SealJSON(payload{Name: "x"}, []byte("pw-one"), opt)
	require.NoError(t, err)

	tampered := func() []byte {
		var env Envelope
		require.NoError(t, json.Unmarshal(sealed, &env))
		env.Ciphertext = "AAAA" + env.Ciphertext[4:]
		b, err := json.Marshal(env)
		require.NoError(t, err)
		return b
	}()

	tests := []struct {
		name     string
		envelope []byte
		password string
		aad      []byte
	}{
		{name: "wrong password", envelope: sealed, password: "pw-two", aad: opt.AAD},
		{name: "wrong aad", envelope: sealed, password: "pw-one", aad: []byte("other")},
		{name: "tampered ciphertext", envelope: tampered, password: "pw-one", aad: opt.AAD},
		{name: "garbage", envelope: []byte("not json"), password: "pw-one", aad: opt.AAD},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := OpenJSON[payload](tc.envelope, []byte(tc.password), Options{KDF: fastKDF, AAD: tc.aad})
			require.ErrorIs(t, err, ErrInvalidPasswordOrCorrupt)
		})
	}
}

func TestSealRejectsEmptyPassword(t *testing.T) {
	_, err := SealJSON(payload{}, nil)
	require.ErrorIs(t, err, ErrEmptyPassword)

	_, err = SealJSON(payload{}, []byte{0, 0, 0})
	require.Error(t, err)
}

func TestWriteReadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	require.NoError(t, WriteJSON(path, payload{Name: "chains"}, 0o600, 0o700))

	out, err := ReadJSON[payload](path)
	require.NoError(t, err)
	assert.Equal(t, "chains", out.Name)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestEnvFolder(t *testing.T) {
	tests := []struct {
		env     string
		want    string
		wantErr bool
	}{
		{env: "", want: ""},
		{env: "local", want: "local"},
		{env: "DEV", want: "develop"},
		{env: "production", want: ""},
		{env: "staging", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.env, func(t *testing.T) {
			t.Setenv("QA_ENV", tc.env)
			got, err := EnvFolder()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConfigPathCandidatesPrefersHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("SNAP_REAL_HOME", "")
	t.Setenv("HOME", home)
	t.Setenv("QA_ENV", "local")

	paths, err := ConfigPathCandidates("wallet-bridge", "x.json")
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	assert.Equal(t, filepath.Join(home, ".config", "wallet-bridge", "local", "x.json"), paths[0])
}
