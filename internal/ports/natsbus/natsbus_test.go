package natsbus

import "testing"

func TestNames(t *testing.T) {
	tests := []struct {
		name    string
		matchID string
		bucket  string
		command string
		arrival string
	}{
		{
			name:    "Plain",
			matchID: "abc-123",
			bucket:  "peakrace_abc-123",
			command: "peakrace.abc-123.commands",
			arrival: "peakrace.abc-123.arrivals",
		},
		{
			name:    "NakamaStyleID",
			matchID: "9f1c.nakama1",
			bucket:  "peakrace_9f1c_nakama1",
			command: "peakrace.9f1c_nakama1.commands",
			arrival: "peakrace.9f1c_nakama1.arrivals",
		},
		{
			name:    "Empty",
			matchID: "",
			bucket:  "peakrace_default",
			command: "peakrace.default.commands",
			arrival: "peakrace.default.arrivals",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := BucketName(test.matchID); got != test.bucket {
				t.Errorf("BucketName = %s, want %s", got, test.bucket)
			}
			if got := CommandSubject(test.matchID); got != test.command {
				t.Errorf("CommandSubject = %s, want %s", got, test.command)
			}
			if got := ArrivalSubject(test.matchID); got != test.arrival {
				t.Errorf("ArrivalSubject = %s, want %s", got, test.arrival)
			}
			if got, want := PresenceSubject(test.matchID), test.command[:len(test.command)-len("commands")]+"presence"; got != want {
				t.Errorf("PresenceSubject = %s, want %s", got, want)
			}
		})
	}
}
