// Package scene normalizes satellite scene identifiers, matches product
// labels against per-family filename grammars and normalizes region codes.
package scene

import "fmt"

const (
	// SceneIDWidth is the fixed width of a Landsat scene identifier,
	// e.g. LE71800682013283ASA00.
	SceneIDWidth = 21
	// suffixWidth covers the ground-station code and the version digits.
	suffixWidth = 5
	// CaptureIdentityWidth is the width of a normalized identity.
	CaptureIdentityWidth = SceneIDWidth - suffixWidth
)

// CaptureIdentity identifies a physical acquisition independent of the
// ground station that received it and the version it was reprocessed under.
type CaptureIdentity string

func (c CaptureIdentity) String() string { return string(c) }

// MalformedIdentifierError reports a scene identifier of the wrong width.
type MalformedIdentifierError struct {
	Identifier string
	Width      int
}

func (e *MalformedIdentifierError) Error() string {
	return fmt.Sprintf("scene identifier %q has length %d, expected %d", e.Identifier, len(e.Identifier), e.Width)
}

// Normalize strips the ground-station and version suffix from a scene identifier.
func Normalize(sceneID string) (CaptureIdentity, error) {
	if len(sceneID) != SceneIDWidth {
		return "", &MalformedIdentifierError{Identifier: sceneID, Width: SceneIDWidth}
	}
	return CaptureIdentity(sceneID[:CaptureIdentityWidth]), nil
}
