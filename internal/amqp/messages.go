package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"tani/internal/core"
)

// ReportJobMessage asks the worker to render one report. The access token
// lets the worker read the user's records under the same row-level
// security as the user.
type ReportJobMessage struct {
	JobID       string    `json:"job_id"`
	UserID      string    `json:"user_id"`
	SeasonID    string    `json:"season_id"`
	AccessToken string    `json:"access_token"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewReportJobMessage creates a message for a queued job
func NewReportJobMessage(job core.ReportJob, accessToken string) *ReportJobMessage {
	return &ReportJobMessage{
		JobID:       job.ID,
		UserID:      job.UserID,
		SeasonID:    job.SeasonID,
		AccessToken: accessToken,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReportJobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportJobMessageFromJSON decodes and checks a message.
func ReportJobMessageFromJSON(data []byte) (*ReportJobMessage, error) {
	var msg ReportJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.JobID == "" || msg.UserID == "" || msg.SeasonID == "" {
		return nil, errors.New("report job message missing job, user or season id")
	}
	return &msg, nil
}
