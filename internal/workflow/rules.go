package workflow

import (
	"fmt"

	"github.com/mbyo2/vehicle-log-sys/internal/rbac"
	"github.com/mbyo2/vehicle-log-sys/internal/shared"
)

// ConfigError reports an invalid transition rule set. It is detected at
// load time and is fatal for the affected entity type: the table refuses to
// serve any transition for it rather than silently picking a rule.
type ConfigError struct {
	EntityType EntityType
	Reason     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("workflow: invalid rule set for %s: %s", e.EntityType, e.Reason)
}

// RuleSet holds the validated transition rules for one entity type. The
// rules form a directed graph over state names; a state with no outgoing
// rule is terminal.
type RuleSet struct {
	entityType EntityType
	rules      []Rule
	byFrom     map[string][]Rule
}

// NewRuleSet validates and indexes the rules for an entity type.
// Rejected configurations: self-loops, duplicate (from, action) pairs,
// role guards with an empty role set, and permission guards naming a
// resource or action the registry never declared.
func NewRuleSet(entityType EntityType, reg *rbac.Registry, rules []Rule) (*RuleSet, error) {
	byFrom := make(map[string][]Rule)
	seen := make(map[[2]string]string, len(rules))
	for _, rule := range rules {
		if rule.From == "" || rule.To == "" || rule.Action == "" {
			return nil, &ConfigError{entityType, fmt.Sprintf("rule %q has empty from/to/action", rule.Action)}
		}
		if rule.From == rule.To {
			return nil, &ConfigError{entityType, fmt.Sprintf("self-loop on state %q via %q", rule.From, rule.Action)}
		}
		key := [2]string{rule.From, rule.Action}
		if to, dup := seen[key]; dup {
			if to != rule.To {
				return nil, &ConfigError{entityType, fmt.Sprintf("ambiguous action %q from %q: leads to both %q and %q", rule.Action, rule.From, to, rule.To)}
			}
			return nil, &ConfigError{entityType, fmt.Sprintf("duplicate action %q from %q", rule.Action, rule.From)}
		}
		seen[key] = rule.To
		switch g := rule.Guard.(type) {
		case RoleGuard:
			if len(g.Roles) == 0 {
				return nil, &ConfigError{entityType, fmt.Sprintf("role guard on %q enumerates no roles", rule.Action)}
			}
		case PermissionGuard:
			if !reg.Knows(g.Resource, g.Action) {
				return nil, &ConfigError{entityType, fmt.Sprintf("permission guard %s:%s on %q not declared", g.Resource, g.Action, rule.Action)}
			}
		case nil:
			return nil, &ConfigError{entityType, fmt.Sprintf("rule %q has no guard", rule.Action)}
		default:
			return nil, &ConfigError{entityType, fmt.Sprintf("rule %q has unsupported guard %T", rule.Action, rule.Guard)}
		}
		byFrom[rule.From] = append(byFrom[rule.From], rule)
	}
	return &RuleSet{entityType: entityType, rules: rules, byFrom: byFrom}, nil
}

// EntityType returns the entity type this set governs.
func (s *RuleSet) EntityType() EntityType { return s.entityType }

// TransitionsFrom returns all rules leaving state in declaration order.
// Order only matters for guard-evaluation diagnostics; validation already
// forbids two rules sharing (from, action).
func (s *RuleSet) TransitionsFrom(state string) []Rule {
	return s.byFrom[state]
}

// Terminal reports whether no rule leaves the state.
func (s *RuleSet) Terminal(state string) bool {
	return len(s.byFrom[state]) == 0
}

// States returns every state named by the rules, mapped to whether it is a
// legal initial state (any state can start tracking; lookups only).
func (s *RuleSet) States() map[string]struct{} {
	states := make(map[string]struct{})
	for _, rule := range s.rules {
		states[rule.From] = struct{}{}
		states[rule.To] = struct{}{}
	}
	return states
}

// Table is the transition rule table keyed by entity type. Entity types
// whose rule set failed validation stay registered with their load error so
// every transition attempt surfaces the configuration problem instead of a
// generic not-found.
type Table struct {
	sets   map[EntityType]*RuleSet
	failed map[EntityType]error
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		sets:   make(map[EntityType]*RuleSet),
		failed: make(map[EntityType]error),
	}
}

// Load validates and registers the rules for an entity type. A validation
// failure is remembered and returned; the entity type will serve no
// transitions.
func (t *Table) Load(entityType EntityType, reg *rbac.Registry, rules []Rule) error {
	set, err := NewRuleSet(entityType, reg, rules)
	if err != nil {
		t.failed[entityType] = err
		delete(t.sets, entityType)
		return err
	}
	t.sets[entityType] = set
	delete(t.failed, entityType)
	return nil
}

// RuleSet returns the validated set for an entity type, the remembered load
// error for one that failed validation, or not-found for one never loaded.
func (t *Table) RuleSet(entityType EntityType) (*RuleSet, error) {
	if err, ok := t.failed[entityType]; ok {
		return nil, err
	}
	set, ok := t.sets[entityType]
	if !ok {
		return nil, fmt.Errorf("workflow: no rule set for %s: %w", entityType, shared.ErrNotFound)
	}
	return set, nil
}
