package ctrl

// Control-plane stream and subjects.
const (
	// StreamName is the JetStream stream carrying control traffic.
	StreamName = "CONTROL"

	// CommandSubjectPrefix prefixes every command subject.
	CommandSubjectPrefix = "control.command."

	// CommandSubjects matches every command subject.
	CommandSubjects = "control.command.>"

	// ResultSubjectPrefix prefixes result subjects, followed by the instance ID.
	ResultSubjectPrefix = "control.result."

	// ResultSubjects matches every result subject.
	ResultSubjects = "control.result.>"
)

// Subject returns the subject a command of type ct is published on.
func Subject(ct CommandType) string {
	return CommandSubjectPrefix + ct.Tag()
}

// ResultSubject returns the subject an instance publishes results on.
func ResultSubject(instance string) string {
	return ResultSubjectPrefix + instance
}
