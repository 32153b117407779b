package runstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"imagine-pilot/internal/model"
)

const settingsFileName = "settings.json"

func (s Store) SettingsPath() string { return filepath.Join(s.dir, settingsFileName) }

// SaveSettings persists the defaults used when a run does not override
// them. Written atomically like every other blob in the state dir.
func (s Store) SaveSettings(settings model.Settings) error {
	if err := Mkdir(s.dir); err != nil {
		return err
	}
	if err := WriteJSON(s.SettingsPath(), settings.Normalized()); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// LoadSettings returns the persisted defaults, or normalized zero-value
// defaults when nothing was saved yet.
func (s Store) LoadSettings() (model.Settings, bool, error) {
	var settings model.Settings
	if err := ReadJSON(s.SettingsPath(), &settings); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.DefaultSettings().Normalized(), false, nil
		}
		return model.Settings{}, false, fmt.Errorf("load settings: %w", err)
	}
	return settings.Normalized(), true, nil
}
