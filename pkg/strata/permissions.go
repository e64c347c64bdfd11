package strata

import (
	"os"
	"strconv"

	"golang.org/x/xerrors"
)

// PermissionRule maps a path pattern to ownership and mode settings.
// Path defaults to "*" which matches everything. Owner and group must be
// set in pairs. Mode is a base-8 string, e.g. "755" or "0644".
type PermissionRule struct {
	Path  string `yaml:"path,omitempty"`
	Owner *int   `yaml:"owner,omitempty"`
	Group *int   `yaml:"group,omitempty"`
	Mode  string `yaml:"mode,omitempty"`
}

// Validate ensures this rule can be acted upon/is valid
func (r *PermissionRule) Validate() error {
	if (r.Owner == nil) != (r.Group == nil) {
		return xerrors.Errorf("if either owner or group is set, both must be")
	}
	if r.Mode != "" {
		if _, err := strconv.ParseUint(r.Mode, 8, 32); err != nil {
			return xerrors.Errorf("mode \"%s\" is not a base-8 number", r.Mode)
		}
	}
	return nil
}

// AppliesTo returns true if the rule's path pattern matches the given path
func (r *PermissionRule) AppliesTo(path string) bool {
	if r.Path == "" || r.Path == "*" {
		return true
	}

	matches, err := matchPattern(r.Path, path)
	if err != nil {
		return false
	}
	return matches
}

// ModeBits returns the mode as file mode bits. Returns ok == false if the
// rule does not set a mode.
func (r *PermissionRule) ModeBits() (mode os.FileMode, ok bool) {
	if r.Mode == "" {
		return 0, false
	}
	m, err := strconv.ParseUint(r.Mode, 8, 32)
	if err != nil {
		return 0, false
	}
	return os.FileMode(m), true
}

// Apply chmods/chowns target according to this rule. It does not check
// whether the rule's pattern matches target - call AppliesTo beforehand.
func (r *PermissionRule) Apply(target string) error {
	if mode, ok := r.ModeBits(); ok {
		if err := os.Chmod(target, mode); err != nil {
			return err
		}
	}
	if r.Owner != nil && r.Group != nil {
		if err := os.Chown(target, *r.Owner, *r.Group); err != nil {
			return err
		}
	}
	return nil
}

// FilterPermissions returns the subset of rules whose patterns apply to target
func FilterPermissions(target string, rules []*PermissionRule) []*PermissionRule {
	var res []*PermissionRule
	for _, r := range rules {
		if r.AppliesTo(target) {
			res = append(res, r)
		}
	}
	return res
}

// ApplyPermissions applies all given rules to target, in declaration order
func ApplyPermissions(target string, rules []*PermissionRule) error {
	for _, r := range rules {
		if err := r.Apply(target); err != nil {
			return err
		}
	}
	return nil
}

// PermissionsAreCompatible decides whether two rule sets could both be
// satisfied for the same path. Each set is flattened (later rules override
// earlier ones) and the flattened rules conflict iff both pin the owner,
// the group, or the mode to different values. An empty set is compatible
// with anything.
func PermissionsAreCompatible(a, b []*PermissionRule) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}

	fa, fb := flattenPermissions(a), flattenPermissions(b)
	if fa.Owner != nil && fb.Owner != nil && *fa.Owner != *fb.Owner {
		return false
	}
	if fa.Group != nil && fb.Group != nil && *fa.Group != *fb.Group {
		return false
	}
	if fa.Mode != "" && fb.Mode != "" {
		ma, _ := fa.ModeBits()
		mb, _ := fb.ModeBits()
		if ma != mb {
			return false
		}
	}
	return true
}

func flattenPermissions(rules []*PermissionRule) PermissionRule {
	var res PermissionRule
	for _, r := range rules {
		if r.Owner != nil {
			res.Owner = r.Owner
		}
		if r.Group != nil {
			res.Group = r.Group
		}
		if r.Mode != "" {
			res.Mode = r.Mode
		}
	}
	return res
}
