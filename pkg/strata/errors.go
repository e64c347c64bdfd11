package strata

import (
	"fmt"
	"strings"
)

// DependencyCycleError is returned when the part "after" relations do not form a DAG.
// No partial order is ever produced alongside this error.
type DependencyCycleError struct{}

func (DependencyCycleError) Error() string {
	return "parts have a circular dependency chain"
}

// PartNotFoundErr is used when something references a part we don't know about
type PartNotFoundErr struct {
	Part string
}

func (n PartNotFoundErr) Error() string {
	return fmt.Sprintf("part \"%s\" is unknown", n.Part)
}

// PartSpecificationErr is returned when a part declaration is invalid
type PartSpecificationErr struct {
	Part    string
	Message string
}

func (e PartSpecificationErr) Error() string {
	return fmt.Sprintf("part \"%s\" has an invalid specification: %s", e.Part, e.Message)
}

// FilesConflictError reports files which two parts (or a part and the overlay)
// would stage at the same relative path with incompatible content or metadata.
type FilesConflictError struct {
	Part      string
	OtherPart string
	Paths     []string
	Partition string
}

func (e FilesConflictError) Error() string {
	msg := fmt.Sprintf("parts \"%s\" and \"%s\" have conflicting files: %s", e.Part, e.OtherPart, strings.Join(e.Paths, ", "))
	// keep the message grep'able when partitions are in play
	if e.Partition != "" {
		msg += fmt.Sprintf(" (partition \"%s\")", e.Partition)
	}
	return msg
}

// FilesetErr is returned when a file filter list cannot be applied
type FilesetErr struct {
	Fileset string
	Message string
}

func (e FilesetErr) Error() string {
	return fmt.Sprintf("fileset \"%s\": %s", e.Fileset, e.Message)
}

// ConfigurationErr is returned when the project configuration is inconsistent,
// e.g. a partition list without the partitions feature enabled.
type ConfigurationErr struct {
	Message string
}

func (e ConfigurationErr) Error() string {
	return fmt.Sprintf("invalid project configuration: %s", e.Message)
}
