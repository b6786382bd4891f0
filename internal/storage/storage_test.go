package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "abc/cleaned.csv", CleanedKey("abc"))
	assert.Equal(t, "abc/report.json", ReportKey("abc"))
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{key: "job/cleaned.csv", valid: true},
		{key: "report.json", valid: true},
		{key: "", valid: false},
		{key: "/etc/passwd", valid: false},
		{key: "../escape", valid: false},
		{key: "job/../../escape", valid: false},
		{key: "job//x", valid: false},
		{key: `job\x`, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := validateKey(tt.key)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidKey)
			}
		})
	}
}

func TestLocalFileStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalFileStorage(filepath.Join(dir, "out"))
	require.NoError(t, err)
	defer s.Close()

	location, err := s.Save(ctx, CleanedKey("job1"), "text/csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "job1", "cleaned.csv"), location)

	_, err = s.Save(ctx, ReportKey("job1"), "application/json", []byte("{}"))
	require.NoError(t, err)
	_, err = s.Save(ctx, ReportKey("job2"), "application/json", []byte("{}"))
	require.NoError(t, err)

	assert.True(t, s.Exists(ctx, CleanedKey("job1")))
	assert.False(t, s.Exists(ctx, CleanedKey("job2")))
	assert.False(t, s.Exists(ctx, "job1"), "directories are not artifacts")

	r, err := s.Open(ctx, CleanedKey("job1"))
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "a,b\n1,2\n", string(data))

	_, err = s.Open(ctx, CleanedKey("job2"))
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err := s.List(ctx, "job1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"job1/cleaned.csv", "job1/report.json"}, keys)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	entries, err := os.ReadDir(filepath.Join(dir, "out", "job1"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestLocalFileStorageRejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalFileStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Save(context.Background(), "../outside.csv", "text/csv", nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = s.Open(context.Background(), "../outside.csv")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLocalFileStorageOverwrite(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalFileStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Save(ctx, "j/report.json", "application/json", []byte("old"))
	require.NoError(t, err)
	_, err = s.Save(ctx, "j/report.json", "application/json", []byte("new"))
	require.NoError(t, err)

	r, err := s.Open(ctx, "j/report.json")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestGCSObjectName(t *testing.T) {
	s := &GCSStorage{bucket: "b", objectPrefix: "cleaned"}
	assert.Equal(t, "cleaned/job/report.json", s.objectName("job/report.json"))

	bare := &GCSStorage{bucket: "b"}
	assert.Equal(t, "job/report.json", bare.objectName("job/report.json"))
}

func TestNewGCSStorageRequiresBucket(t *testing.T) {
	_, err := NewGCSStorage(context.Background(), "", "", "")
	assert.Error(t, err)
}
