package sync

import (
	"encoding/json"
	"sort"

	"github.com/joeyliu6/weibodr-sync/internal/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ConfigStrategy selects how a downloaded config snapshot is applied. The
// strategy is always chosen by the caller, never inferred.
type ConfigStrategy string

const (
	// ConfigStrategyOverwrite replaces the whole local configuration,
	// connection profiles included. Destructive, requires confirmation.
	ConfigStrategyOverwrite ConfigStrategy = "overwrite"
	// ConfigStrategyMergeKeepConnection adopts the remote snapshot but keeps
	// the local profile set and active selection, so a download can never
	// sever the connection it just used.
	ConfigStrategyMergeKeepConnection ConfigStrategy = "merge-keep-local-connection"
)

// HistoryStrategy selects the history reconciliation algorithm.
type HistoryStrategy string

const (
	HistoryStrategyMerge             HistoryStrategy = "merge"
	HistoryStrategyIncremental       HistoryStrategy = "incremental"
	HistoryStrategyForcePush         HistoryStrategy = "force-push"
	HistoryStrategyMergeDownload     HistoryStrategy = "merge-download"
	HistoryStrategyOverwriteDownload HistoryStrategy = "overwrite-download"
)

// DestructiveStrategy reports whether a strategy can discard records on one
// side and therefore requires explicit confirmation from the caller.
func DestructiveStrategy(strategy string) bool {
	switch strategy {
	case string(ConfigStrategyOverwrite), string(HistoryStrategyForcePush), string(HistoryStrategyOverwriteDownload):
		return true
	}
	return false
}

// MergeHistory reconciles two history collections last-writer-wins by
// timestamp. The remote collection seeds the result; a local record replaces
// the entry for its id only when its timestamp is strictly greater. Records
// without an id get a fresh one. The output ordering is deterministic
// (timestamp descending, id as tie-break) regardless of input order, which
// makes the merge idempotent against its own output.
func MergeHistory(local, remote []domain.HistoryRecord) []domain.HistoryRecord {
	byID := make(map[string]domain.HistoryRecord, len(local)+len(remote))

	seen := func(id string) bool {
		_, ok := byID[id]
		return ok
	}

	for _, rec := range remote {
		if rec.ID == "" {
			rec.ID = freshID(seen)
		}
		byID[rec.ID] = rec
	}
	for _, rec := range local {
		if rec.ID == "" {
			rec.ID = freshID(seen)
		}
		existing, ok := byID[rec.ID]
		if !ok || rec.Timestamp > existing.Timestamp {
			byID[rec.ID] = rec
		}
	}

	merged := make([]domain.HistoryRecord, 0, len(byID))
	for _, rec := range byID {
		merged = append(merged, rec)
	}
	sortHistory(merged)
	return merged
}

// IncrementalUpload computes the strictly additive upload set: every remote
// record untouched, plus the local records whose id the remote does not have.
// A shared id keeps the remote version even when the local timestamp is newer.
func IncrementalUpload(local, remote []domain.HistoryRecord) []domain.HistoryRecord {
	remoteIDs := make(map[string]struct{}, len(remote))
	for _, rec := range remote {
		remoteIDs[rec.ID] = struct{}{}
	}

	out := make([]domain.HistoryRecord, 0, len(remote)+len(local))
	out = append(out, remote...)
	for _, rec := range local {
		if rec.ID == "" {
			rec.ID = freshID(func(id string) bool {
				_, ok := remoteIDs[id]
				return ok
			})
		}
		if _, ok := remoteIDs[rec.ID]; ok {
			continue
		}
		remoteIDs[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	sortHistory(out)
	return out
}

// AssignIDs gives every record lacking an id a fresh unique one, leaving
// records that already carry an id untouched. Applied before any bulk write
// so two id-less records can never collide on the same row.
func AssignIDs(records []domain.HistoryRecord) []domain.HistoryRecord {
	taken := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if rec.ID != "" {
			taken[rec.ID] = struct{}{}
		}
	}

	out := make([]domain.HistoryRecord, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = freshID(func(id string) bool {
				_, ok := taken[id]
				return ok
			})
			taken[rec.ID] = struct{}{}
		}
		out = append(out, rec)
	}
	return out
}

// ApplyConfigStrategy produces the snapshot to adopt locally from a remote
// download. Both strategies take the remote content; they differ only in
// whether the local connection profiles survive.
func ApplyConfigStrategy(strategy ConfigStrategy, local, remote *domain.ConfigSnapshot) (*domain.ConfigSnapshot, error) {
	switch strategy {
	case ConfigStrategyOverwrite:
		out := *remote
		return &out, nil
	case ConfigStrategyMergeKeepConnection:
		out := *remote
		if local != nil {
			out.Profiles = local.Profiles
			out.ActiveProfileID = local.ActiveProfileID
		}
		return &out, nil
	default:
		return nil, domain.NewSyncError(domain.ErrorClassFormat, "unknown-strategy",
			errors.Errorf("unknown config strategy %q", strategy))
	}
}

// DecodeSnapshot parses and shape-checks a config payload. Anything that is
// not a JSON object with at least one field — a history array in particular —
// is rejected before any state is touched.
func DecodeSnapshot(data []byte) (*domain.ConfigSnapshot, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, domain.NewSyncError(domain.ErrorClassFormat, "invalid-payload",
			errors.Wrap(err, "config payload is not a JSON object"))
	}
	if len(probe) == 0 {
		return nil, domain.NewSyncError(domain.ErrorClassFormat, "invalid-payload",
			errors.New("config payload is an empty object"))
	}

	var snap domain.ConfigSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, domain.NewSyncError(domain.ErrorClassFormat, "invalid-payload",
			errors.Wrap(err, "config payload failed the shape check"))
	}
	return &snap, nil
}

// DecodeHistory parses and shape-checks a history payload: a JSON array of
// objects.
func DecodeHistory(data []byte) ([]domain.HistoryRecord, error) {
	var records []domain.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, domain.NewSyncError(domain.ErrorClassFormat, "invalid-payload",
			errors.Wrap(err, "history payload is not a JSON array of records"))
	}
	return records, nil
}

// EncodeHistory marshals a collection for upload or export. An empty
// collection encodes as [] rather than null.
func EncodeHistory(records []domain.HistoryRecord) ([]byte, error) {
	if records == nil {
		records = []domain.HistoryRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, domain.NewSyncError(domain.ErrorClassLocalIO, "encode-failed", err)
	}
	return data, nil
}

func sortHistory(records []domain.HistoryRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp != records[j].Timestamp {
			return records[i].Timestamp > records[j].Timestamp
		}
		return records[i].ID < records[j].ID
	})
}

func freshID(taken func(string) bool) string {
	for {
		id := uuid.NewString()
		if !taken(id) {
			return id
		}
	}
}
