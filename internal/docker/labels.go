package docker

import (
	"fmt"
	"path/filepath"
)

// Label keys used for tsb delegate containers
const (
	LabelDelegate  = "tsb.delegate"
	LabelRequestID = "tsb.request.id"
	LabelWorkDir   = "tsb.workdir"
	LabelMode      = "tsb.mode"
)

// BuildLabels creates the label set for a delegate container.
// mode is optional.
func BuildLabels(requestID, workDir, mode string) map[string]string {
	labels := map[string]string{
		LabelDelegate:  "true",
		LabelRequestID: requestID,
		LabelWorkDir:   workDir,
	}

	if mode != "" {
		labels[LabelMode] = mode
	}

	return labels
}

// DelegateContainerName returns the container name for one request.
func DelegateContainerName(requestID string) string {
	if len(requestID) > 12 {
		requestID = requestID[:12]
	}
	return fmt.Sprintf("tsb-delegate-%s", requestID)
}

// WorkspaceBind mounts dir read-write at the same path inside the
// container, so absolute paths in a request resolve the same way on both
// sides.
func WorkspaceBind(dir string) string {
	dir = filepath.Clean(dir)
	return dir + ":" + dir
}
