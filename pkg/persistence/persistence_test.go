package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type part struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type bundle struct {
	A     part   `persistence:"a"`
	B     *part  `persistence:"b"`
	Other string // 无 tag，不保存
}

func TestSaveLoadFields_RoundTrip(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())

	in := bundle{A: part{"x", 1}, B: &part{"y", 2}, Other: "skip"}
	seq, err := SaveFields(&in, "engine", svc)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	var out bundle
	got, err := LoadFields(&out, "engine", svc)
	require.NoError(t, err)
	assert.Equal(t, seq, got)
	assert.Equal(t, in.A, out.A)
	require.NotNil(t, out.B)
	assert.Equal(t, *in.B, *out.B)
	assert.Empty(t, out.Other)
}

func TestSaveFields_RemovesPreviousGeneration(t *testing.T) {
	dir := t.TempDir()
	svc := NewJSONFileService(dir)

	_, err := SaveFields(&bundle{A: part{"v1", 1}, B: &part{}}, "engine", svc)
	require.NoError(t, err)
	seq, err := SaveFields(&bundle{A: part{"v2", 2}, B: &part{}}, "engine", svc)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	_, err = os.Stat(filepath.Join(dir, "state_engine_a.g000001.json"))
	assert.True(t, os.IsNotExist(err))

	var out bundle
	_, err = LoadFields(&out, "engine", svc)
	require.NoError(t, err)
	assert.Equal(t, "v2", out.A.Name)
}

func TestLoadFields_IgnoresUncommittedGeneration(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	_, err := SaveFields(&bundle{A: part{"committed", 1}, B: &part{}}, "engine", svc)
	require.NoError(t, err)

	// 模拟写到一半崩溃：新代号文件已写，manifest 未更新
	require.NoError(t, svc.NewStore("state", "engine", generationTag("a", 2)).Save(part{"partial", 9}))

	var out bundle
	seq, err := LoadFields(&out, "engine", svc)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, "committed", out.A.Name)
}

func TestLoadFields_NotExists(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	var out bundle
	_, err := LoadFields(&out, "engine", svc)
	assert.Equal(t, ErrNotExists, err)
}
