package types

import "regexp"

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks the shared identifier format used for both user and
// exam identifiers.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 50 {
		return false
	}
	return idRegex.MatchString(id)
}

// IsValidRole reports whether role is one of the two connection roles.
func IsValidRole(role string) bool {
	return role == RoleStudent || role == RoleProfessor
}

// Validate checks command shape before it enters the dispatch loop.
// Type-specific field requirements are enforced here so handlers can
// assume well-formed commands.
func (c *Command) Validate() error {
	if !IsValidID(c.ExamID) {
		return ErrInvalidExamID
	}

	switch c.Type {
	case CmdStart, CmdRestart:
		if c.DurationMinutes <= 0 {
			return ErrInvalidMinutes
		}
	case CmdExtend:
		if c.ExtraMinutes <= 0 {
			return ErrInvalidMinutes
		}
	case CmdViolation:
		if c.ViolationType == "" {
			return ErrInvalidCommand
		}
	case CmdPause, CmdResume, CmdEnd, CmdJoinExam, CmdLeave,
		CmdWithdraw, CmdSubmit, CmdSnapshot, CmdTimerSync:
		// No extra fields required.
	default:
		return ErrInvalidCommand
	}

	return nil
}

// IsProfessorCommand reports whether the command type requires the
// professor role.
func IsProfessorCommand(cmdType string) bool {
	switch cmdType {
	case CmdStart, CmdPause, CmdResume, CmdExtend, CmdEnd, CmdRestart:
		return true
	default:
		return false
	}
}
