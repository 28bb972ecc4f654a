package types

import "fmt"

// JobKey identifies a job by (name, group).
type JobKey struct {
	Name  string
	Group string
}

// String renders the key the way the reference schema's composite key
// is usually logged: "group.name".
func (k JobKey) String() string {
	return fmt.Sprintf("%s.%s", k.Group, k.Name)
}

// TriggerKey identifies a trigger by (name, group).
type TriggerKey struct {
	Name  string
	Group string
}

func (k TriggerKey) String() string {
	return fmt.Sprintf("%s.%s", k.Group, k.Name)
}

// DefaultGroup is used when a caller does not specify a group explicitly.
const DefaultGroup = "DEFAULT"

// RecoveryGroup is the reserved trigger group holding synthetic triggers
// created by cluster recovery for jobs that request it (spec §4.6, §6).
const RecoveryGroup = "RECOVERING_JOBS"
