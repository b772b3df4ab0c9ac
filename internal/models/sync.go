package models

import "time"

// CollectionBlob is the remote envelope of one collection.
type CollectionBlob struct {
	Version      int64     `json:"version"`
	LastModified time.Time `json:"lastModified"`
	DeviceID     string    `json:"deviceId"`
	Data         []Record  `json:"data"`
}

// SyncMetadata is the single cross-collection blob describing the last
// completed full sync.
type SyncMetadata struct {
	LastSyncTime    *time.Time `json:"lastSyncTime"`
	ExerciseVersion int64      `json:"exerciseVersion"`
	DietVersion     int64      `json:"dietVersion"`
	DeviceID        string     `json:"deviceId"`
}

// Version returns the version recorded for c.
func (m SyncMetadata) Version(c Collection) int64 {
	switch c {
	case CollectionExercise:
		return m.ExerciseVersion
	case CollectionDiet:
		return m.DietVersion
	}
	return 0
}

// SetVersion records v for c.
func (m *SyncMetadata) SetVersion(c Collection, v int64) {
	switch c {
	case CollectionExercise:
		m.ExerciseVersion = v
	case CollectionDiet:
		m.DietVersion = v
	}
}

// CollectionResult reports the outcome of syncing one collection.
// Conflicts is informational: divergent versions were merged silently.
type CollectionResult struct {
	Collection     Collection `json:"collection" yaml:"collection"`
	Success        bool       `json:"success" yaml:"success"`
	Synced         bool       `json:"synced" yaml:"synced"`
	Conflicts      bool       `json:"conflicts" yaml:"conflicts"`
	Version        int64      `json:"version" yaml:"version"`
	Records        int        `json:"records" yaml:"records"`
	Error          string     `json:"error,omitempty" yaml:"error,omitempty"`
	ReauthRequired bool       `json:"reauthRequired,omitempty" yaml:"reauthRequired,omitempty"`
}

// SyncResult reports the outcome of a full sync pass. Results is empty when
// the pass failed before any collection was attempted.
type SyncResult struct {
	Success        bool                            `json:"success" yaml:"success"`
	Results        map[Collection]CollectionResult `json:"results,omitempty" yaml:"results,omitempty"`
	Timestamp      time.Time                       `json:"timestamp" yaml:"timestamp"`
	Error          string                          `json:"error,omitempty" yaml:"error,omitempty"`
	ReauthRequired bool                            `json:"reauthRequired,omitempty" yaml:"reauthRequired,omitempty"`
}

// SyncStatus combines the remote metadata with this device's view.
type SyncStatus struct {
	LastSyncTime    *time.Time           `json:"lastSyncTime" yaml:"lastSyncTime"`
	ExerciseVersion int64                `json:"exerciseVersion" yaml:"exerciseVersion"`
	DietVersion     int64                `json:"dietVersion" yaml:"dietVersion"`
	DeviceID        string               `json:"deviceId" yaml:"deviceId"`
	CurrentDevice   string               `json:"currentDevice" yaml:"currentDevice"`
	LocalVersions   map[Collection]int64 `json:"localVersions" yaml:"localVersions"`
}
