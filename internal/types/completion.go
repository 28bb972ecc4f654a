package types

// CompletionInstruction is the outcome the job executor (an external
// collaborator, spec §1) reports back at TriggeredJobComplete time. It
// augments the stateful-job/next-fire-time logic already driving the
// EXECUTING -> {WAITING,COMPLETE,PAUSED,BLOCKED,ERROR} transition (spec §4.5).
type CompletionInstruction int

const (
	// InstructionNoop applies no extra instruction: the ordinary
	// next-fire-time/stateful-job logic alone decides the trigger's next state.
	InstructionNoop CompletionInstruction = iota
	// InstructionSetTriggerComplete forces this trigger to COMPLETE
	// regardless of its next-fire-time.
	InstructionSetTriggerComplete
	// InstructionSetAllJobTriggersComplete forces every trigger of the job
	// to COMPLETE.
	InstructionSetAllJobTriggersComplete
	// InstructionSetTriggerError forces this trigger to ERROR.
	InstructionSetTriggerError
	// InstructionSetAllJobTriggersError forces every trigger of the job to ERROR.
	InstructionSetAllJobTriggersError
)
