package stage

import (
	"fmt"
)

// A named unit of build work with declared inputs and outputs.
//
// A stage owns a private working tree. Only the declared outputs are ever
// visible to later stages; everything else under the working tree is
// transient and discarded with the stage. Inputs name prior stages whose
// outputs this stage consumes; stages never reach into each other's
// working trees directly.
type Stage struct {
	Name    string            // Stage name, unique within a build.
	Workdir string            // The stage's private working tree.
	Inputs  []string          // Names of prior stages whose outputs are consumed.
	Outputs map[string]string // Declared outputs: artifact name -> path relative to Workdir.
}

// An immutable, addressable output of a completed stage.
type Artifact struct {
	Name  string // Artifact name as declared by the stage.
	Stage string // Name of the stage that produced it.
	Path  string // Location in the build context's artifact area.
	Dir   bool   // Whether the artifact is a directory tree.
}

// Declares an output on the stage.
func (s *Stage) Declare(name, relPath string) {
	if s.Outputs == nil {
		s.Outputs = make(map[string]string)
	}
	s.Outputs[name] = relPath
}

// Reported when a declared artifact path does not exist at stage
// completion. This is a build-logic defect, not a transient condition, and
// is never retried.
type ArtifactNotFoundError struct {
	Stage    string // The stage the artifact was requested from.
	Artifact string // The requested artifact name.
	Path     string // The resolved path that was missing, empty if undeclared.
}

func (e *ArtifactNotFoundError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("stage %q declares no artifact %q", e.Stage, e.Artifact)
	}
	return fmt.Sprintf("artifact %q of stage %q not found at %s", e.Artifact, e.Stage, e.Path)
}
