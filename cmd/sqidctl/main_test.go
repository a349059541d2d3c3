package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"sqidctl"}, args...))
	return strings.TrimSpace(out.String()), err
}

func TestEncodeDecode(t *testing.T) {
	out, err := run(t, "encode", "1", "2", "3")
	require.NoError(t, err)
	assert.Equal(t, "86Rf07", out)

	out, err = run(t, "decode", "86Rf07")
	require.NoError(t, err)
	assert.Equal(t, "1 2 3", out)

	out, err = run(t, "--min-length", "10", "encode", "1", "2", "3")
	require.NoError(t, err)
	assert.Equal(t, "86Rf07xd4z", out)
}

func TestEncode_Errors(t *testing.T) {
	_, err := run(t, "encode", "-1")
	assert.Error(t, err)
	_, err = run(t, "--min-length", "256", "encode", "1")
	assert.Error(t, err)
	_, err = run(t, "--alphabet", "aa", "encode", "1")
	assert.Error(t, err)
	_, err = run(t, "--alphabet", "abc", "--min-length", "3",
		"--blocklist", "cab", "--blocklist", "abc", "--blocklist", "bca", "encode", "0")
	assert.Error(t, err)
}

func TestDecode_JunkPrintsNothing(t *testing.T) {
	out, err := run(t, "decode", "a*b")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = run(t, "decode")
	assert.Error(t, err)
}

func TestBlocklistFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.txt")
	require.NoError(t, os.WriteFile(path, []byte("# words\n\ncab\nabc\n"), 0o644))

	out, err := run(t, "--alphabet", "abc", "--min-length", "3", "--blocklist-file", path, "encode", "0")
	require.NoError(t, err)
	assert.Equal(t, "bca", out)

	_, err = run(t, "--blocklist-file", filepath.Join(t.TempDir(), "missing"), "encode", "1")
	assert.Error(t, err)
}

func TestShuffle(t *testing.T) {
	out, err := run(t, "shuffle", "abc")
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.ElementsMatch(t, []byte("abc"), []byte(out))

	again, err := run(t, "shuffle", "abc")
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestHashpass(t *testing.T) {
	out, err := run(t, "hashpass", "--cost", "4", "password1")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(out), []byte("password1")))

	_, err = run(t, "hashpass", "short")
	assert.Error(t, err)
}
