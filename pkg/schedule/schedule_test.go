package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		want     time.Duration
		wantErr  bool
	}{
		{
			name:     "every seconds",
			schedule: "@every 30s",
			want:     30 * time.Second,
		},
		{
			name:     "every minutes",
			schedule: "@every 5m",
			want:     5 * time.Minute,
		},
		{
			name:     "standard cron every minute",
			schedule: "* * * * *",
			want:     time.Minute,
		},
		{
			name:     "hourly descriptor",
			schedule: "@hourly",
			want:     time.Hour,
		},
		{
			name:     "garbage",
			schedule: "not a schedule",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInterval(tt.schedule)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
