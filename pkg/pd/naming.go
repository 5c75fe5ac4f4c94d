package pd

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsedName is the result of splitting a physical drive_name into its
// logical disk name and owner reference. Exactly one of OwnerID/OwnerName
// is set.
type ParsedName struct {
	Drive     string
	OwnerID   int
	OwnerName string
}

// ComposeName builds the current-scheme drive_name: <name><sep><ownerID>.
func ComposeName(sepUserID, name string, ownerID int) string {
	return fmt.Sprintf("%s%s%d", name, sepUserID, ownerID)
}

// ComposeNameLegacy builds the legacy username-keyed drive_name, kept only
// so old drives already on disk still parse.
func ComposeNameLegacy(sepUsername, name, ownerUsername string) string {
	return name + sepUsername + ownerUsername
}

// ParseName tries the id-keyed scheme first, then the username-keyed
// legacy scheme, and never guesses: an unparseable name returns ok=false.
func ParseName(sepUserID, sepUsername, driveName string) (ParsedName, bool) {
	if idx := strings.LastIndex(driveName, sepUserID); idx >= 0 {
		drive := driveName[:idx]
		rest := driveName[idx+len(sepUserID):]
		if id, err := strconv.Atoi(rest); err == nil {
			return ParsedName{Drive: drive, OwnerID: id}, true
		}
	}
	if idx := strings.LastIndex(driveName, sepUsername); idx >= 0 {
		drive := driveName[:idx]
		rest := driveName[idx+len(sepUsername):]
		if rest != "" {
			return ParsedName{Drive: drive, OwnerName: rest}, true
		}
	}
	return ParsedName{}, false
}
