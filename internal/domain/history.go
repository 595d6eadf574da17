package domain

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// HistoryRecord is one completed upload. Only the id and timestamp take part
// in merge decisions; everything else in the record is opaque payload that is
// carried through a sync verbatim. Unknown fields survive a decode/encode
// round trip so the engine never strips data written by newer app versions.
type HistoryRecord struct {
	ID        string
	Timestamp int64 // milliseconds since epoch
	Extra     map[string]json.RawMessage
}

func (r *HistoryRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return errors.Wrap(err, "history record must be a JSON object")
	}

	rec := HistoryRecord{Extra: map[string]json.RawMessage{}}
	for k, v := range fields {
		switch k {
		case "id":
			if err := json.Unmarshal(v, &rec.ID); err != nil {
				return errors.Wrap(err, "history record id must be a string")
			}
		case "timestamp":
			if err := json.Unmarshal(v, &rec.Timestamp); err != nil {
				return errors.Wrap(err, "history record timestamp must be a number")
			}
		default:
			rec.Extra[k] = v
		}
	}

	*r = rec
	return nil
}

func (r HistoryRecord) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(r.Extra)+2)
	for k, v := range r.Extra {
		fields[k] = v
	}

	id, err := json.Marshal(r.ID)
	if err != nil {
		return nil, err
	}
	ts, err := json.Marshal(r.Timestamp)
	if err != nil {
		return nil, err
	}
	fields["id"] = id
	fields["timestamp"] = ts

	return json.Marshal(fields)
}

type HistoryRepo interface {
	Count(ctx context.Context) (int, error)
	All(ctx context.Context) ([]HistoryRecord, error)
	// ImportMerge inserts new records and updates existing ones by id,
	// returning the number of records that were newly inserted.
	ImportMerge(ctx context.Context, records []HistoryRecord) (int, error)
	// ImportReplace drops the local collection and replaces it wholesale.
	ImportReplace(ctx context.Context, records []HistoryRecord) error
}
