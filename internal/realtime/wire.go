package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/cronbat/pkg/models"
)

// ErrMalformedFrame is returned for push frames that cannot be decoded.
var ErrMalformedFrame = errors.New("malformed push frame")

// frame is the wire envelope of every push-channel message.
type frame struct {
	Event models.EventKind `json:"event"`
	Data  json.RawMessage  `json:"data"`
}

type idPayload struct {
	ID    string          `json:"id"`
	State models.JobState `json:"state,omitempty"`
	Line  string          `json:"line,omitempty"`
}

// DecodeFrame turns one wire message into an Event.
func DecodeFrame(raw []byte) (models.Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return models.Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	ev := models.Event{Kind: f.Event}

	switch f.Event {
	case models.EventJobs:
		if err := json.Unmarshal(f.Data, &ev.Jobs); err != nil {
			return models.Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.Event, err)
		}
		if ev.Jobs == nil {
			ev.Jobs = []models.Job{}
		}

	case models.EventJobAdded, models.EventJobDetails:
		var j models.Job
		if err := json.Unmarshal(f.Data, &j); err != nil {
			return models.Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.Event, err)
		}
		if j.ID == "" {
			return models.Event{}, fmt.Errorf("%w: %s without job id", ErrMalformedFrame, f.Event)
		}
		ev.Job = &j
		ev.JobID = j.ID

	case models.EventJobRemoved, models.EventJobStateChanged, models.EventJobLog, models.EventJobCompleted:
		var p idPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return models.Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.Event, err)
		}
		if p.ID == "" {
			return models.Event{}, fmt.Errorf("%w: %s without id", ErrMalformedFrame, f.Event)
		}
		if f.Event == models.EventJobStateChanged && !p.State.Valid() {
			return models.Event{}, fmt.Errorf("%w: unknown state %q", ErrMalformedFrame, p.State)
		}
		ev.JobID = p.ID
		ev.State = p.State
		ev.Line = p.Line

	default:
		return models.Event{}, fmt.Errorf("%w: unknown event %q", ErrMalformedFrame, f.Event)
	}
	return ev, nil
}

// EncodeSubscribe builds the subscribe_to_job control frame.
func EncodeSubscribe(jobID string) ([]byte, error) {
	data, err := json.Marshal(idPayload{ID: jobID})
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{Event: models.EventSubscribeToJob, Data: data})
}
