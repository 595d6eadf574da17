package domain

import (
	"context"
	"encoding/json"
)

// SettingsKeyApp is the key the full application snapshot is stored under in
// the local settings store.
const SettingsKeyApp = "app"

// AutoSyncSettings is the scheduler configuration carried inside the config
// snapshot, so it travels with a backup like every other preference.
type AutoSyncSettings struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"intervalMinutes"`
}

// ConfigSnapshot is the full application configuration object. The engine
// only understands the fields it needs for reconciliation — connection
// profiles, the active selection and the scheduler settings; every other
// section (service credentials, preferences) is preserved as raw JSON.
type ConfigSnapshot struct {
	Profiles        []ConnectionProfile
	ActiveProfileID string
	AutoSync        AutoSyncSettings
	Extra           map[string]json.RawMessage
}

func (s *ConfigSnapshot) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	snap := ConfigSnapshot{Extra: map[string]json.RawMessage{}}
	for k, v := range fields {
		switch k {
		case "webdavProfiles":
			if err := json.Unmarshal(v, &snap.Profiles); err != nil {
				return err
			}
		case "activeWebdavProfileId":
			if err := json.Unmarshal(v, &snap.ActiveProfileID); err != nil {
				return err
			}
		case "autoSync":
			if err := json.Unmarshal(v, &snap.AutoSync); err != nil {
				return err
			}
		default:
			snap.Extra[k] = v
		}
	}

	*s = snap
	return nil
}

func (s ConfigSnapshot) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(s.Extra)+3)
	for k, v := range s.Extra {
		fields[k] = v
	}

	profileList := s.Profiles
	if profileList == nil {
		profileList = []ConnectionProfile{}
	}
	profiles, err := json.Marshal(profileList)
	if err != nil {
		return nil, err
	}
	active, err := json.Marshal(s.ActiveProfileID)
	if err != nil {
		return nil, err
	}
	autoSync, err := json.Marshal(s.AutoSync)
	if err != nil {
		return nil, err
	}
	fields["webdavProfiles"] = profiles
	fields["activeWebdavProfileId"] = active
	fields["autoSync"] = autoSync

	return json.Marshal(fields)
}

type SettingsRepo interface {
	// Get returns the snapshot stored under key, or nil if absent.
	Get(ctx context.Context, key string) (*ConfigSnapshot, error)
	Set(ctx context.Context, key string, snapshot *ConfigSnapshot) error
}
