package authz

import "fmt"

// Action is one of the fixed verbs an ACL entry can grant.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions returns the full action vocabulary.
func Actions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
}

// ParseAction validates an action string from the wire.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown action: %q", s)
}

// Entry is a single ACL rule: a slash-separated path pattern plus the
// actions it grants. An entry's action set is never empty; an entry that
// does not match a resource grants nothing, it does not "match with zero
// permissions".
type Entry struct {
	Path    string   `json:"path"`
	Actions []Action `json:"actions"`
}

// Allows reports whether the entry's action set contains the action.
func (e Entry) Allows(action Action) bool {
	for _, a := range e.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Decision is the outcome of an authorization check. Every deny variant
// (no roles, no structural match, matched-but-insufficient-action) is
// encoded the same way so callers cannot leak ACL structure.
type Decision struct {
	Allowed bool `json:"allowed"`
}
