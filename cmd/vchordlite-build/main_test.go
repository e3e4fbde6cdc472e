package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadVectorCSVParsesRows(t *testing.T) {
	path := writeTempCSV(t, "# comment\n1,1.0,2.0,3.0\n2,4,5,6\n\n")
	tids, vecs, err := readVectorCSV(path, 3)
	require.NoError(t, err)
	require.Len(t, tids, 2)
	assert.Equal(t, uint64(1), tids[0])
	assert.Equal(t, []float32{1, 2, 3}, vecs[0])
	assert.Equal(t, uint64(2), tids[1])
	assert.Equal(t, []float32{4, 5, 6}, vecs[1])
}

func TestReadVectorCSVRejectsWrongFieldCount(t *testing.T) {
	path := writeTempCSV(t, "1,1.0,2.0\n")
	_, _, err := readVectorCSV(path, 3)
	assert.Error(t, err)
}

func TestReadVectorCSVRejectsBadTID(t *testing.T) {
	path := writeTempCSV(t, "notanumber,1.0,2.0\n")
	_, _, err := readVectorCSV(path, 2)
	assert.Error(t, err)
}

func TestReadVectorCSVRejectsBadComponent(t *testing.T) {
	path := writeTempCSV(t, "1,oops,2.0\n")
	_, _, err := readVectorCSV(path, 2)
	assert.Error(t, err)
}

func TestReadVectorCSVMissingFile(t *testing.T) {
	_, _, err := readVectorCSV(filepath.Join(t.TempDir(), "missing.csv"), 2)
	assert.Error(t, err)
}

func TestBuildInstallScriptMentionsArtifactAndStorage(t *testing.T) {
	a := Artifact{Dims: 4, Distance: "l2", Kind: "ivf", StorageFile: "rel.db"}
	script := buildInstallScript(a, "out.json")
	assert.Contains(t, script, "out.json")
	assert.Contains(t, script, "rel.db")
	assert.Contains(t, script, "dims=4 distance=l2 kind=ivf")
}

func TestBuildInstallScriptOmitsStorageLineWhenAbsent(t *testing.T) {
	a := Artifact{Dims: 2, Distance: "dot", Kind: "graph"}
	script := buildInstallScript(a, "out.json")
	assert.NotContains(t, script, "copy ")
}

func TestSliceScannerExhausts(t *testing.T) {
	s := &sliceScanner{rows: []uint64{1, 2}, vecs: [][]float32{{1}, {2}}}
	_, ok := s.Next()
	assert.True(t, ok)
	_, ok = s.Next()
	assert.True(t, ok)
	_, ok = s.Next()
	assert.False(t, ok)
}
