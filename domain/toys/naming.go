package toys

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"biastest/domain/core"
)

// Artifact file suffixes.
const (
	PointsExt = ".npy"
	RecordExt = ".json"
)

var strippedSuffixes = []string{PointsExt + RecordExt, PointsExt + ".pkl", RecordExt, PointsExt, ".pkl"}

// ArtifactKey formats the legacy "<prefix>-x<xs>-m<mass>" stem.
func ArtifactKey(prefix string, xs float64, mass int) string {
	return fmt.Sprintf("%s-x%g-m%d", prefix, xs, mass)
}

// KeyInfo is the metadata recovered from an artifact file name.
type KeyInfo struct {
	Prefix string
	XSec   float64
	Mass   int
}

// ParseArtifactName extracts xs and mass from a "key-x<xs>-m<mass>.ext" path.
func ParseArtifactName(path string) (KeyInfo, error) {
	stem := filepath.Base(path)
	for _, suf := range strippedSuffixes {
		if strings.HasSuffix(stem, suf) {
			stem = strings.TrimSuffix(stem, suf)
			break
		}
	}

	items := strings.Split(stem, "-")
	info := KeyInfo{Prefix: items[0]}
	var haveXS, haveMass bool
	for _, itm := range items[1:] {
		switch {
		case strings.HasPrefix(itm, "x"):
			v, err := strconv.ParseFloat(itm[1:], 64)
			if err != nil {
				return KeyInfo{}, fmt.Errorf("%w: %s: bad cross section %q", core.ErrFilenameConvention, path, itm)
			}
			info.XSec, haveXS = v, true
		case strings.HasPrefix(itm, "m"):
			v, err := strconv.Atoi(itm[1:])
			if err != nil {
				return KeyInfo{}, fmt.Errorf("%w: %s: bad mass %q", core.ErrFilenameConvention, path, itm)
			}
			info.Mass, haveMass = v, true
		}
	}
	if !haveXS || !haveMass {
		return KeyInfo{}, fmt.Errorf("%w: %s", core.ErrFilenameConvention, path)
	}
	return info, nil
}

// PointsPath returns the path of the point-estimate array for an output
// name, appending .npy when missing.
func PointsPath(out string) string {
	if strings.HasSuffix(out, PointsExt) {
		return out
	}
	return out + PointsExt
}

// RecordPath returns the path of the structured record next to the points file.
func RecordPath(out string) string {
	return PointsPath(out) + RecordExt
}
