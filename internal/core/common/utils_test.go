package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose", `Sure! {"a":{"b":2}} hope that helps`, `{"a":{"b":2}}`, false},
		{"array", `[1,2]`, "", true},
		{"unterminated", `{"a":1`, "", true},
		{"empty", ``, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSON(t *testing.T) {
	type reply struct {
		Decision string `json:"decision"`
	}
	r, err := ParseJSON[reply]("Here you go: {\"decision\": \"keep_separate\"}")
	require.NoError(t, err)
	assert.Equal(t, "keep_separate", r.Decision)

	_, err = ParseJSON[reply]("{not json}")
	assert.Error(t, err)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileChecksum(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(a, []byte(`{"x":1}`), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(`{"x":2}`), 0o644))

	sumA, err := FileChecksum(a)
	require.NoError(t, err)
	sumA2, err := FileChecksum(a)
	require.NoError(t, err)
	sumB, err := FileChecksum(b)
	require.NoError(t, err)

	assert.Equal(t, sumA, sumA2)
	assert.NotEqual(t, sumA, sumB)
	assert.Len(t, sumA, 64)

	_, err = FileChecksum(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
