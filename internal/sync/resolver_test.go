package sync

import (
	"encoding/json"
	"testing"

	"github.com/joeyliu6/weibodr-sync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id string, ts int64, extra map[string]string) domain.HistoryRecord {
	rec := domain.HistoryRecord{ID: id, Timestamp: ts, Extra: map[string]json.RawMessage{}}
	for k, v := range extra {
		data, _ := json.Marshal(v)
		rec.Extra[k] = data
	}
	return rec
}

func ids(records []domain.HistoryRecord) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ID)
	}
	return out
}

func TestMergeHistory_NewerTimestampWins(t *testing.T) {
	t.Parallel()

	local := []domain.HistoryRecord{record("a", 10, map[string]string{"v": "local"})}
	remote := []domain.HistoryRecord{
		record("a", 5, map[string]string{"v": "remote"}),
		record("b", 7, map[string]string{"v": "remote"}),
	}

	merged := MergeHistory(local, remote)

	require.Len(t, merged, 2)
	assert.Equal(t, []string{"a", "b"}, ids(merged))
	assert.Equal(t, int64(10), merged[0].Timestamp)
	assert.JSONEq(t, `"local"`, string(merged[0].Extra["v"]))
}

func TestMergeHistory_EqualTimestampKeepsRemote(t *testing.T) {
	t.Parallel()

	local := []domain.HistoryRecord{record("a", 10, map[string]string{"v": "local"})}
	remote := []domain.HistoryRecord{record("a", 10, map[string]string{"v": "remote"})}

	merged := MergeHistory(local, remote)

	require.Len(t, merged, 1)
	assert.JSONEq(t, `"remote"`, string(merged[0].Extra["v"]))
}

func TestMergeHistory_Idempotent(t *testing.T) {
	t.Parallel()

	local := []domain.HistoryRecord{
		record("a", 10, nil),
		record("c", 3, nil),
	}
	remote := []domain.HistoryRecord{
		record("a", 5, nil),
		record("b", 7, nil),
	}

	once := MergeHistory(local, remote)
	twice := MergeHistory(once, remote)

	assert.Equal(t, once, twice)
}

func TestMergeHistory_DeterministicOrdering(t *testing.T) {
	t.Parallel()

	a := []domain.HistoryRecord{record("x", 1, nil), record("y", 9, nil)}
	b := []domain.HistoryRecord{record("z", 5, nil)}

	assert.Equal(t, ids(MergeHistory(a, b)), ids(MergeHistory(b, a)))
	assert.Equal(t, []string{"y", "z", "x"}, ids(MergeHistory(a, b)))
}

func TestMergeHistory_AssignsFreshIDs(t *testing.T) {
	t.Parallel()

	local := []domain.HistoryRecord{record("", 10, nil)}
	remote := []domain.HistoryRecord{record("", 7, nil), record("a", 5, nil)}

	merged := MergeHistory(local, remote)

	require.Len(t, merged, 3)
	seen := map[string]bool{}
	for _, rec := range merged {
		assert.NotEmpty(t, rec.ID)
		assert.False(t, seen[rec.ID], "duplicate id %s", rec.ID)
		seen[rec.ID] = true
	}
}

func TestAssignIDs(t *testing.T) {
	t.Parallel()

	records := []domain.HistoryRecord{
		record("", 10, nil),
		record("keep", 5, nil),
		record("", 1, nil),
	}

	out := AssignIDs(records)

	require.Len(t, out, 3)
	assert.Equal(t, "keep", out[1].ID)
	assert.NotEmpty(t, out[0].ID)
	assert.NotEmpty(t, out[2].ID)
	assert.NotEqual(t, out[0].ID, out[2].ID)
}

func TestIncrementalUpload_NeverAltersSharedIDs(t *testing.T) {
	t.Parallel()

	// local "a" is newer but the remote version must survive untouched
	local := []domain.HistoryRecord{
		record("a", 100, map[string]string{"v": "local"}),
		record("b", 2, nil),
	}
	remote := []domain.HistoryRecord{record("a", 5, map[string]string{"v": "remote"})}

	out := IncrementalUpload(local, remote)

	require.Len(t, out, 2)
	byID := map[string]domain.HistoryRecord{}
	for _, rec := range out {
		byID[rec.ID] = rec
	}
	assert.Equal(t, int64(5), byID["a"].Timestamp)
	assert.JSONEq(t, `"remote"`, string(byID["a"].Extra["v"]))
	assert.Contains(t, byID, "b")
}

func TestApplyConfigStrategy(t *testing.T) {
	t.Parallel()

	local := &domain.ConfigSnapshot{
		Profiles:        []domain.ConnectionProfile{{ID: "local-p"}},
		ActiveProfileID: "local-p",
		Extra:           map[string]json.RawMessage{"theme": json.RawMessage(`"dark"`)},
	}
	remote := &domain.ConfigSnapshot{
		Profiles:        []domain.ConnectionProfile{{ID: "remote-p"}},
		ActiveProfileID: "remote-p",
		AutoSync:        domain.AutoSyncSettings{Enabled: true, IntervalMinutes: 30},
		Extra:           map[string]json.RawMessage{"theme": json.RawMessage(`"light"`)},
	}

	overwritten, err := ApplyConfigStrategy(ConfigStrategyOverwrite, local, remote)
	require.NoError(t, err)
	assert.Equal(t, "remote-p", overwritten.ActiveProfileID)
	assert.Equal(t, "remote-p", overwritten.Profiles[0].ID)

	merged, err := ApplyConfigStrategy(ConfigStrategyMergeKeepConnection, local, remote)
	require.NoError(t, err)
	assert.Equal(t, "local-p", merged.ActiveProfileID)
	assert.Equal(t, "local-p", merged.Profiles[0].ID)
	assert.True(t, merged.AutoSync.Enabled)
	assert.JSONEq(t, `"light"`, string(merged.Extra["theme"]))

	_, err = ApplyConfigStrategy("sideways", local, remote)
	assert.Error(t, err)
}

func TestDecodeSnapshot_RejectsWrongShape(t *testing.T) {
	t.Parallel()

	for name, payload := range map[string]string{
		"history array": `[{"id":"a","timestamp":5}]`,
		"empty object":  `{}`,
		"not json":      `oops`,
		"scalar":        `42`,
	} {
		_, err := DecodeSnapshot([]byte(payload))
		require.Error(t, err, name)

		var syncErr *domain.SyncError
		require.ErrorAs(t, err, &syncErr, name)
		assert.Equal(t, domain.ErrorClassFormat, syncErr.Class, name)
		assert.Equal(t, "invalid-payload", syncErr.Code, name)
	}

	snap, err := DecodeSnapshot([]byte(`{"webdavProfiles":[],"activeWebdavProfileId":"","autoSync":{"enabled":false,"intervalMinutes":60},"theme":"dark"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `"dark"`, string(snap.Extra["theme"]))
}

func TestDecodeHistory_RejectsWrongShape(t *testing.T) {
	t.Parallel()

	_, err := DecodeHistory([]byte(`{"webdavProfiles":[]}`))
	require.Error(t, err)

	var syncErr *domain.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, domain.ErrorClassFormat, syncErr.Class)

	records, err := DecodeHistory([]byte(`[{"id":"a","timestamp":5,"fileName":"x.png"}]`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `"x.png"`, string(records[0].Extra["fileName"]))
}

func TestEncodeHistory_EmptyIsArray(t *testing.T) {
	t.Parallel()

	data, err := EncodeHistory(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestDestructiveStrategy(t *testing.T) {
	t.Parallel()

	assert.True(t, DestructiveStrategy("overwrite"))
	assert.True(t, DestructiveStrategy("force-push"))
	assert.True(t, DestructiveStrategy("overwrite-download"))
	assert.False(t, DestructiveStrategy("merge"))
	assert.False(t, DestructiveStrategy("incremental"))
}
