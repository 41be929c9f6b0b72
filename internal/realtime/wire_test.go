package realtime

import (
	"encoding/json"
	"testing"

	"github.com/kiranshivaraju/cronbat/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, ev models.Event)
	}{
		{
			name: "jobs snapshot",
			raw:  `{"event":"jobs","data":[{"id":"a","name":"A","command":"true","schedule":"* * * * *","state":"idle"}]}`,
			check: func(t *testing.T, ev models.Event) {
				require.Len(t, ev.Jobs, 1)
				assert.Equal(t, "a", ev.Jobs[0].ID)
				assert.Equal(t, models.TriggerSchedule, ev.Jobs[0].Trigger.Type)
			},
		},
		{
			name: "empty snapshot is not nil",
			raw:  `{"event":"jobs","data":[]}`,
			check: func(t *testing.T, ev models.Event) {
				assert.NotNil(t, ev.Jobs)
				assert.Empty(t, ev.Jobs)
			},
		},
		{
			name: "job added",
			raw:  `{"event":"job_added","data":{"id":"b","name":"B","command":"ls","trigger":{"type":"dependency","parent_job_ids":["a"]}}}`,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "b", ev.JobID)
				require.NotNil(t, ev.Job)
				assert.Equal(t, []string{"a"}, ev.Job.Trigger.ParentJobIDs)
			},
		},
		{
			name: "state changed",
			raw:  `{"event":"job_state_changed","data":{"id":"a","state":"running"}}`,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "a", ev.JobID)
				assert.Equal(t, models.JobStateRunning, ev.State)
			},
		},
		{
			name: "log line",
			raw:  `{"event":"job_log","data":{"id":"a","line":"hello"}}`,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "hello", ev.Line)
				assert.True(t, ev.Kind.PerJob())
			},
		},
		{
			name: "completed ignores extra fields",
			raw:  `{"event":"job_completed","data":{"id":"a","exit_code":0,"duration":1.5}}`,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, models.EventJobCompleted, ev.Kind)
				assert.Equal(t, "a", ev.JobID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeFrame([]byte(tt.raw))
			require.NoError(t, err)
			tt.check(t, ev)
		})
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"unknown event":  `{"event":"bogus","data":{}}`,
		"missing id":     `{"event":"job_removed","data":{}}`,
		"bad state":      `{"event":"job_state_changed","data":{"id":"a","state":"exploded"}}`,
		"job without id": `{"event":"job_added","data":{"name":"x"}}`,
		"jobs not list":  `{"event":"jobs","data":{"id":"a"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestEncodeSubscribe(t *testing.T) {
	raw, err := EncodeSubscribe("job-1")
	require.NoError(t, err)

	var got struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "subscribe_to_job", got.Event)
	assert.Equal(t, "job-1", got.Data["id"])
}
