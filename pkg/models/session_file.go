package models

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const sessionFileName = ".prismchat/sessions.json"

// Session storage file path under the user's home directory.
func getSessionFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return sessionFileName // fallback
	}
	return filepath.Join(home, sessionFileName)
}

// LoadSessions reads the persisted session list. A missing file yields an
// empty list; a corrupt file is an error the caller is expected to absorb.
func LoadSessions() ([]*ChatSession, error) {
	path := getSessionFilePath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []*ChatSession{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sessions []*ChatSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SaveSessions writes the full session list, replacing the previous blob.
func SaveSessions(sessions []*ChatSession) error {
	path := getSessionFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
