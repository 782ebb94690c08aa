package session

import (
	"encoding/json"
	"time"

	"github.com/shiftsuite/shiftboard/pkg/slotinfo"
)

// Manifest is the JSON-serializable record of a session. It carries enough
// to reopen the session after a restart, provided the extracted directory
// still exists on disk.
type Manifest struct {
	// ID is the unique session identifier.
	ID string `json:"id"`

	// IP is the client IP the session was created from.
	IP string `json:"ip"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// LastAccess is when the session was last touched.
	LastAccess time.Time `json:"last_access"`

	// SourceFile is the original upload file name.
	SourceFile string `json:"source_file,omitempty"`

	// Dir is the extracted archive directory.
	Dir string `json:"dir"`

	// Bytes is the extracted archive size on disk.
	Bytes int64 `json:"bytes,omitempty"`

	// Scenarios are the scenario names in display order.
	Scenarios []string `json:"scenarios"`

	// Slot is the detected slot granularity.
	Slot slotinfo.Info `json:"slot"`

	// Version is the manifest format version.
	Version int `json:"version"`
}

// CurrentManifestVersion is the current manifest format version.
// Increment when making breaking changes to the format.
const CurrentManifestVersion = 1

// EncodeManifest converts a Manifest to bytes.
func EncodeManifest(m *Manifest) ([]byte, error) {
	m.Version = CurrentManifestVersion
	return json.Marshal(m)
}

// DecodeManifest converts bytes back to a Manifest.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
