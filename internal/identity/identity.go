// Package identity generates replacement telemetry identifiers from a
// cryptographically secure random source.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MachineIDLength is the length in hex characters of a machine id.
const MachineIDLength = 64

// Set is one run's worth of fresh identifiers. Every file mutated in a run
// receives the same set, so a machine's rotated identity stays internally
// consistent; distinct runs get distinct sets.
type Set struct {
	MachineID      string
	DeviceID       string
	SqmID          string
	SessionID      string
	InstallationID string
	UserID         string

	// SessionDate replaces first/last session timestamps when rotating.
	SessionDate string
}

// NewSet generates a full identifier set.
func NewSet() (Set, error) {
	machineID, err := NewMachineID()
	if err != nil {
		return Set{}, err
	}

	ids := make([]string, 5)
	for i := range ids {
		id, err := NewUUID()
		if err != nil {
			return Set{}, err
		}
		ids[i] = id
	}

	return Set{
		MachineID:      machineID,
		DeviceID:       ids[0],
		SqmID:          ids[1],
		SessionID:      ids[2],
		InstallationID: ids[3],
		UserID:         ids[4],
		SessionDate:    time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// NewMachineID returns a fresh 64-character lowercase hex string.
func NewMachineID() (string, error) {
	buf := make([]byte, MachineIDLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("identity: reading random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewUUID returns a fresh version-4 UUID in canonical lowercase form.
func NewUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("identity: generating uuid: %w", err)
	}
	return id.String(), nil
}

// ForField maps a telemetry field or row key onto the replacement value of
// the same semantic type. The second return is false when the field is not a
// known identifier; callers then fall back to a generic UUID.
func (s Set) ForField(name string) (string, bool) {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "machineid"):
		return s.MachineID, true
	case strings.Contains(n, "devdeviceid"), strings.Contains(n, "deviceid"):
		return s.DeviceID, true
	case strings.Contains(n, "sqmid"):
		return s.SqmID, true
	case strings.Contains(n, "sessiondate"):
		return s.SessionDate, true
	case strings.Contains(n, "sessionid"):
		return s.SessionID, true
	case strings.Contains(n, "instanceid"), strings.Contains(n, "installationid"):
		return s.InstallationID, true
	case strings.Contains(n, "userid"):
		return s.UserID, true
	}
	return "", false
}
