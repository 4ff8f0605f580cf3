package mqtt

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		payload  string
		expected Command
	}{
		{"open", CommandOpen},
		{"on", CommandOpen},
		{"OPEN", CommandOpen},
		{" open ", CommandOpen},
		{"打开", CommandOpen},
		{"请打开门", CommandOpen},
		{"close", CommandClose},
		{"off", CommandClose},
		{"关闭", CommandClose},
		{"status", CommandStatus},
		{"状态", CommandStatus},
		{"Status", CommandStatus},
		{"", CommandUnknown},
		{"hello", CommandUnknown},
		{"opened doors", CommandUnknown},
	}

	for _, tc := range tests {
		if got := ParseCommand(tc.payload); got != tc.expected {
			t.Errorf("ParseCommand(%q) = %v, expected %v", tc.payload, got, tc.expected)
		}
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd      Command
		expected string
	}{
		{CommandOpen, "open"},
		{CommandClose, "close"},
		{CommandStatus, "status"},
		{CommandUnknown, "unknown"},
		{Command(42), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.cmd.String(); got != tc.expected {
			t.Errorf("Command(%d).String() = %q, expected %q", tc.cmd, got, tc.expected)
		}
	}
}

func TestResponseTopic(t *testing.T) {
	if got := ResponseTopic("door001"); got != "door001/status" {
		t.Errorf("ResponseTopic = %q", got)
	}
}
