package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretsEncryptDecryptRoundTrip(t *testing.T) {
	dir := t.TempDir()
	secrets := map[string]string{
		SecretAnthropicAPIKey: "sk-ant-test-123",
		SecretOpenAIAPIKey:    "sk-test-456",
	}

	require.NoError(t, EncryptSecretsFile(dir, "hunter2", secrets))
	assert.True(t, SecretsFileExists(dir))

	got, err := DecryptSecretsFile(dir, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, secrets, got)
}

func TestSecretsWrongPassword(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "correct", map[string]string{"K": "v"}))

	_, err := DecryptSecretsFile(dir, "incorrect")
	assert.Error(t, err)
}

func TestSecretsFilePermissions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "pw", map[string]string{"K": "v"}))

	info, err := os.Stat(filepath.Join(dir, ".inquest", secretsFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestGetSecretPrecedence(t *testing.T) {
	SetDecryptedSecrets(map[string]string{"INQUEST_TEST_SECRET": "from-file"})
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	t.Setenv("INQUEST_TEST_SECRET", "from-env")

	v, err := GetSecret("INQUEST_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-file", v)

	DeleteSecret("INQUEST_TEST_SECRET")
	v, err = GetSecret("INQUEST_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)
}

func TestGetSecretMissing(t *testing.T) {
	SetDecryptedSecrets(nil)
	_, err := GetSecret("INQUEST_NO_SUCH_SECRET")
	assert.Error(t, err)
}

func TestSetSecretAndNames(t *testing.T) {
	SetDecryptedSecrets(nil)
	t.Cleanup(func() { SetDecryptedSecrets(nil) })

	SetSecret(SecretGeminiAPIKey, "g-key")
	names := GetDecryptedSecretNames()
	assert.Contains(t, names, SecretGeminiAPIKey)
}
