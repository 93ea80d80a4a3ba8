package autofilter

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBotSetExpireDropsPastRecords(t *testing.T) {
	now := time.Unix(1000, 0)
	set := BotSet{
		"1.1.1.1": {Address: "1.1.1.1", BlockUntil: 999},
		"2.2.2.2": {Address: "2.2.2.2", BlockUntil: 1001},
	}
	live := set.Expire(now)
	require.Len(t, live, 1)
	_, ok := live["2.2.2.2"]
	require.True(t, ok)
}

func TestBotSetRenderAndParseRoundTrip(t *testing.T) {
	set := BotSet{
		"1.1.1.1": {Address: "1.1.1.1", Country: "US", Load: 500, BlockUntil: 1700000000, Reason: "REQUEST_COUNT from example.com."},
		"2.2.2.2": {Address: "2.2.2.2", Country: "RU", Load: 900, BlockUntil: 1700000100, Reason: "ONE_URI_COUNT from UNKNOWN REVERSE DOMAIN NAME"},
	}
	rendered := set.Render()

	lines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "2.2.2.2", "higher load sorts first")

	parsed, err := ParseBotArtifact(strings.NewReader(rendered))
	require.NoError(t, err)
	require.Equal(t, set, parsed)
}

func TestParseBotArtifactSkipsUnparseableLines(t *testing.T) {
	src := "garbage line\n" +
		"                                       1.1.1.1 1; #    US    500    2023-11-14T22:13:20Z    REQUEST_COUNT from example.com.\n"
	set, err := ParseBotArtifact(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, set, 1)
	require.Contains(t, set, "1.1.1.1")
}

func TestLoadBotArtifactMissingFileIsEmptySet(t *testing.T) {
	set, err := LoadBotArtifact(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	require.NoError(t, err)
	require.Empty(t, set)
}

func TestWriteBotArtifactIsAtomicAndReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.conf")
	set := BotSet{
		"1.1.1.1": {Address: "1.1.1.1", Country: "US", Load: 200, BlockUntil: time.Now().Add(time.Hour).Unix(), Reason: "REQUEST_COUNT from example.com."},
	}
	require.NoError(t, WriteBotArtifact(path, set))

	entries, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp.*"))
	require.NoError(t, err)
	require.Empty(t, entries, "no leftover temp file after a successful write")

	loaded, err := LoadBotArtifact(path)
	require.NoError(t, err)
	require.Equal(t, set, loaded)
}

func TestBotStoreWriteThenLoadLiveExpiresPastRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.conf")
	store := NewBotStore(path)

	initial := BotSet{
		"1.1.1.1": {Address: "1.1.1.1", BlockUntil: time.Now().Add(-time.Hour).Unix()},
		"2.2.2.2": {Address: "2.2.2.2", BlockUntil: time.Now().Add(time.Hour).Unix()},
	}
	require.NoError(t, store.Write(initial))

	live, err := store.LoadLive(time.Now())
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Contains(t, live, "2.2.2.2")
}
