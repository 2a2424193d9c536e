package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvent_String(t *testing.T) {
	at := time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "failed login",
			event: FailedLogin(at, "alice", "127.0.0.1:5000"),
			want:  "[2024-03-09T10:30:00Z] FAILED-LOGIN alice 127.0.0.1:5000",
		},
		{
			name:  "begin change",
			event: BeginChange(at, "c1", "root", "10.0.0.1:1", ActionAddAdmin, "bob"),
			want:  "[2024-03-09T10:30:00Z] RESOURCE-CHANGE c1 root 10.0.0.1:1 ADD-ADMIN bob",
		},
		{
			name:  "end change",
			event: EndChange(at, "c1", "root", "10.0.0.1:1", OutcomeFailure),
			want:  "[2024-03-09T10:30:00Z] RESOURCE-CHANGE c1 root 10.0.0.1:1 FAILURE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.String())
		})
	}
}
