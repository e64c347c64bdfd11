package overlay

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/stratabuild/strata/pkg/strata"
)

// layerHashFilename is the per-part state file holding the layer hash
const layerHashFilename = "layer_hash"

// LayerHash is the validation digest of one part's overlay layer. It covers
// the part's declared overlay inputs plus every ancestor layer's inputs. A
// nil LayerHash means "no prior layer".
type LayerHash []byte

// LayerHashForPart computes the validation hash of the layer corresponding
// to the given part, chained to the hash of the layer below it.
//
// The declared fields are folded in over three chained digest passes so a
// change to one field cannot be cancelled by a compensating change to
// another: packages first, the result re-seeds a pass over the file filters,
// and that result re-seeds a pass over the script text.
func LayerHashForPart(part *strata.Part, previous LayerHash) LayerHash {
	hasher := sha1.New()
	hasher.Write(previous)
	for _, entry := range part.Spec.OverlayPackages {
		hasher.Write([]byte(entry))
	}
	digest := hasher.Sum(nil)

	hasher = sha1.New()
	hasher.Write(digest)
	for _, entry := range part.Spec.OverlayFiles {
		hasher.Write([]byte(entry))
	}
	digest = hasher.Sum(nil)

	hasher = sha1.New()
	hasher.Write(digest)
	if part.Spec.OverlayScript != "" {
		hasher.Write([]byte(part.Spec.OverlayScript))
	}
	return hasher.Sum(nil)
}

// LoadLayerHash reads a part's layer hash from its state file. A missing
// file is not an error and yields a nil hash.
func LoadLayerHash(part *strata.Part) (LayerHash, error) {
	fn := filepath.Join(part.StateDir(), layerHashFilename)
	f, err := os.Open(fn)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Errorf("cannot read layer hash of %s: %w", part.Name, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, xerrors.Errorf("layer hash state of %s is empty", part.Name)
	}
	res, err := hex.DecodeString(scanner.Text())
	if err != nil {
		return nil, xerrors.Errorf("layer hash state of %s is corrupt: %w", part.Name, err)
	}
	return res, nil
}

// Save persists the layer hash to the part's state file
func (h LayerHash) Save(part *strata.Part) error {
	if err := os.MkdirAll(part.StateDir(), 0755); err != nil {
		return err
	}
	fn := filepath.Join(part.StateDir(), layerHashFilename)
	return os.WriteFile(fn, []byte(h.String()), 0644)
}

// Equal compares two layer hashes
func (h LayerHash) Equal(other LayerHash) bool {
	return bytes.Equal(h, other)
}

func (h LayerHash) String() string {
	return hex.EncodeToString(h)
}

// LayerState tracks the known layer hash of every part of a run in memory.
// It is seeded from the per-part state files at construction. The state is
// never persisted implicitly - callers decide when to Save a hash.
type LayerState struct {
	parts         []*strata.Part
	baseLayerHash LayerHash

	hashes map[string]LayerHash
}

// NewLayerState creates a layer state manager for parts in processing order.
// baseLayerHash is the externally supplied digest of the base layer.
func NewLayerState(parts []*strata.Part, baseLayerHash LayerHash) (*LayerState, error) {
	s := &LayerState{
		parts:         parts,
		baseLayerHash: baseLayerHash,
		hashes:        make(map[string]LayerHash, len(parts)),
	}
	for _, part := range parts {
		h, err := LoadLayerHash(part)
		if err != nil {
			return nil, err
		}
		s.SetLayerHash(part, h)
	}
	return s, nil
}

// GetLayerHash returns the currently known layer hash of a part
func (s *LayerState) GetLayerHash(part *strata.Part) LayerHash {
	return s.hashes[part.Name]
}

// SetLayerHash records the layer hash of a part in memory
func (s *LayerState) SetLayerHash(part *strata.Part, hash LayerHash) {
	s.hashes[part.Name] = hash
}

// ComputeLayerHash calculates the layer hash a part's layer would have now,
// chained to the known hash of the preceding part's layer, or to the base
// layer hash for the first part.
func (s *LayerState) ComputeLayerHash(part *strata.Part) (LayerHash, error) {
	index := -1
	for i, p := range s.parts {
		if p.Name == part.Name {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, strata.PartNotFoundErr{Part: part.Name}
	}

	previous := s.baseLayerHash
	if index > 0 {
		previous = s.GetLayerHash(s.parts[index-1])
	}
	return LayerHashForPart(part, previous), nil
}

// OverlayHash returns the validation hash of the whole overlay stack, i.e.
// the known layer hash of the last part.
func (s *LayerState) OverlayHash() LayerHash {
	if len(s.parts) == 0 {
		return nil
	}
	return s.GetLayerHash(s.parts[len(s.parts)-1])
}
