package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsValidID(t *testing.T) {
	require.True(t, IsValidID("cs101"))
	require.True(t, IsValidID("final_2025-spring"))
	require.True(t, IsValidID(strings.Repeat("a", 50)))

	require.False(t, IsValidID(""))
	require.False(t, IsValidID(strings.Repeat("a", 51)))
	require.False(t, IsValidID("has space"))
	require.False(t, IsValidID("exam/101"))
	require.False(t, IsValidID("exam.101"))
}

func TestIsValidRole(t *testing.T) {
	require.True(t, IsValidRole(RoleStudent))
	require.True(t, IsValidRole(RoleProfessor))
	require.False(t, IsValidRole("admin"))
	require.False(t, IsValidRole(""))
}

func TestCommandValidate(t *testing.T) {
	cases := []struct {
		name string
		cmd  Command
		err  error
	}{
		{"start ok", Command{Type: CmdStart, ExamID: "cs101", DurationMinutes: 60}, nil},
		{"start without duration", Command{Type: CmdStart, ExamID: "cs101"}, ErrInvalidMinutes},
		{"start negative duration", Command{Type: CmdStart, ExamID: "cs101", DurationMinutes: -5}, ErrInvalidMinutes},
		{"restart without duration", Command{Type: CmdRestart, ExamID: "cs101"}, ErrInvalidMinutes},
		{"extend ok", Command{Type: CmdExtend, ExamID: "cs101", ExtraMinutes: 10}, nil},
		{"extend without minutes", Command{Type: CmdExtend, ExamID: "cs101"}, ErrInvalidMinutes},
		{"violation ok", Command{Type: CmdViolation, ExamID: "cs101", ViolationType: "tab_switch"}, nil},
		{"violation without type", Command{Type: CmdViolation, ExamID: "cs101"}, ErrInvalidCommand},
		{"pause ok", Command{Type: CmdPause, ExamID: "cs101"}, nil},
		{"join ok", Command{Type: CmdJoinExam, ExamID: "cs101"}, nil},
		{"bad exam id", Command{Type: CmdPause, ExamID: "bad id"}, ErrInvalidExamID},
		{"unknown type", Command{Type: "reboot", ExamID: "cs101"}, ErrInvalidCommand},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cmd.Validate()
			if tc.err == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.err)
			}
		})
	}
}

func TestIsProfessorCommand(t *testing.T) {
	for _, cmd := range []string{CmdStart, CmdPause, CmdResume, CmdExtend, CmdEnd, CmdRestart} {
		require.True(t, IsProfessorCommand(cmd), cmd)
	}
	for _, cmd := range []string{CmdJoinExam, CmdLeave, CmdWithdraw, CmdSubmit, CmdViolation, CmdSnapshot, CmdTimerSync} {
		require.False(t, IsProfessorCommand(cmd), cmd)
	}
}
