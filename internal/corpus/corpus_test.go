package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	content := "问题：什么东西越洗越脏？\n答案:水\n---\n问题：有头没有颈\n答案:鱼\n---\n\n---\n不是问题\n答案:x\n---\n问题：只有问题\n"
	pairs := Parse(content)
	assert.Equal(t, []Pair{
		{Question: "什么东西越洗越脏？", Answer: "水"},
		{Question: "有头没有颈", Answer: "鱼"},
	}, pairs)
}

func TestAppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "origin_data", "riddle.txt")

	pairs, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	require.NoError(t, Append(path, []Pair{{"q1", "a1"}, {"q2", "a2"}}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "问题：q1\n答案:a1\n---\n问题：q2\n答案:a2\n", string(data))

	require.NoError(t, Append(path, []Pair{{"q3", "a3"}}))
	pairs, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{"q1", "a1"}, {"q2", "a2"}, {"q3", "a3"}}, pairs)

	require.NoError(t, Append(path, nil))
}

func TestAppend_KeepsSeparatorAfterBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riddle.txt")
	require.NoError(t, os.WriteFile(path, []byte("问题：q1\n答案:a1\n\n"), 0o644))

	require.NoError(t, Append(path, []Pair{{"q2", "a2"}}))
	pairs, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, pairs, 2)
}

func TestAppend_NoTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riddle.txt")
	require.NoError(t, os.WriteFile(path, []byte("问题：q1\n答案:a1"), 0o644))

	require.NoError(t, Append(path, []Pair{{"q2", "a2"}}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "问题：q1\n答案:a1\n---\n问题：q2\n答案:a2\n", string(data))
}

func TestDedupe(t *testing.T) {
	existing := []Pair{{"q1", "a1"}}
	got := Dedupe(existing, []Pair{{"q1", "a1"}, {"q2", "a2"}, {"q2", "a2"}, {"q1", "other"}})
	assert.Equal(t, []Pair{{"q2", "a2"}, {"q1", "other"}}, got)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "问题：q\n答案:a", Pair{Question: "q", Answer: "a"}.Format())
}
