// Package chroot executes registered work units in an isolated process
// rooted at a caller-supplied directory. The parent process prepares a
// minimal set of virtual filesystem mounts under the new root, re-executes
// itself as a child which changes its root and runs the work unit, and tears
// the mounts down again no matter how the work unit fared.
package chroot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// ExecutionError is returned when a work unit failed inside the isolated
// process. Only the error text survives the process boundary; the original
// error's structure is flattened by design.
type ExecutionError struct {
	Message string
}

func (e ExecutionError) Error() string {
	return fmt.Sprintf("isolated execution error: %s", e.Message)
}

// WorkFunc is a unit of work which can be executed inside the isolated
// process. Its payload and result must survive JSON encoding.
type WorkFunc func(payload json.RawMessage) (interface{}, error)

var registry = make(map[string]WorkFunc)

// Register makes a work unit available under the given name. Registration
// must happen in both the parent and the child process, i.e. before the
// command line is dispatched.
func Register(name string, fn WorkFunc) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("chroot work unit %s registered twice", name))
	}
	registry[name] = fn
}

// ChildArgs is the argument vector the parent passes to its re-executed self
// to reach ExecuteChild.
var ChildArgs = []string{"plumbing", "chroot"}

// request travels from the parent to the child over stdin
type request struct {
	ID      string          `json:"id"`
	Root    string          `json:"root"`
	Unit    string          `json:"unit"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// response travels back over stdout as a tagged union: either Result is
// valid, or Err carries the flattened error text.
type response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Err    string          `json:"error,omitempty"`
}

// Opts modifies the isolated execution environment
type Opts struct {
	// UseHostSources additionally re-homes the host's package manager trust
	// configuration into the new root. Requires host and target to be the
	// same OS distribution and release.
	UseHostSources bool
}

// Run executes a registered work unit in an isolated process rooted at root.
//
// The invocation moves through a fixed sequence: mounts prepared, child
// spawned, result received, mounts torn down. Teardown covers every mount
// that was prepared, in reverse order, and runs on all exit paths - also
// when the work unit or the child process itself failed.
func Run(root string, opts Opts, unit string, payload interface{}) (json.RawMessage, error) {
	if _, ok := registry[unit]; !ok {
		return nil, xerrors.Errorf("unknown work unit \"%s\"", unit)
	}

	id := uuid.New().String()
	clog := log.WithField("invocation", id).WithField("unit", unit)

	enc, err := json.Marshal(payload)
	if err != nil {
		return nil, xerrors.Errorf("cannot encode work unit payload: %w", err)
	}

	mounts, err := platformMounts(root, opts)
	if err != nil {
		return nil, err
	}

	clog.WithField("root", root).Debug("preparing isolated execution")
	prepared, err := setupMounts(root, mounts)
	defer teardownMounts(root, prepared, clog)
	if err != nil {
		return nil, err
	}

	res, err := spawnChild(request{ID: id, Root: root, Unit: unit, Payload: enc}, clog)
	if err != nil {
		return nil, err
	}
	if res.Err != "" {
		return nil, ExecutionError{Message: res.Err}
	}
	return res.Result, nil
}

func spawnChild(req request, clog *log.Entry) (*response, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, xerrors.Errorf("cannot locate own executable: %w", err)
	}

	enc, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(self, ChildArgs...)
	cmd.Stdin = bytes.NewReader(enc)
	cmd.Stderr = os.Stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	clog.Debug("spawning isolated child process")
	if err := cmd.Start(); err != nil {
		return nil, xerrors.Errorf("cannot spawn isolated process: %w", err)
	}

	// a single blocking receive - the boundary is synchronous for the caller
	var res response
	decErr := json.NewDecoder(out).Decode(&res)
	waitErr := cmd.Wait()
	if decErr != nil {
		if waitErr != nil {
			return nil, xerrors.Errorf("isolated process failed: %w", waitErr)
		}
		return nil, xerrors.Errorf("cannot decode isolated process result: %w", decErr)
	}
	if waitErr != nil {
		return nil, xerrors.Errorf("isolated process failed: %w", waitErr)
	}
	return &res, nil
}

// enterRoot makes the child process change into its new root. Swapped out
// in tests which cannot chroot.
var enterRoot = func(root string) error {
	if err := os.Chdir(root); err != nil {
		return err
	}
	return chrootTo(root)
}

// ExecuteChild is the child-side entry point: it decodes the request from
// in, changes its root, runs the work unit and writes the tagged result to
// out. Work unit errors are flattened to text; they are reported through the
// response, not through the returned error.
func ExecuteChild(in io.Reader, out io.Writer) error {
	var req request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return xerrors.Errorf("cannot decode chroot request: %w", err)
	}

	clog := log.WithField("invocation", req.ID).WithField("unit", req.Unit)
	clog.WithField("root", req.Root).Debug("entering new root")

	res := runUnit(req)
	if err := json.NewEncoder(out).Encode(res); err != nil {
		return xerrors.Errorf("cannot encode chroot response: %w", err)
	}
	return nil
}

func runUnit(req request) response {
	fn, ok := registry[req.Unit]
	if !ok {
		return response{Err: fmt.Sprintf("unknown work unit \"%s\"", req.Unit)}
	}

	if err := enterRoot(req.Root); err != nil {
		return response{Err: fmt.Sprintf("cannot enter root %s: %s", req.Root, err)}
	}

	result, err := fn(req.Payload)
	if err != nil {
		return response{Err: err.Error()}
	}

	enc, err := json.Marshal(result)
	if err != nil {
		return response{Err: fmt.Sprintf("cannot encode work unit result: %s", err)}
	}
	return response{Result: enc}
}
