package broker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrollsafe/doomscroller/model"
)

func TestDecodeJobRoundTripsRequiredFields(t *testing.T) {
	body := []byte(`{"task":"process_video","platform":"youtube","video_id":"abc","url":"https://youtube.com/watch?v=abc","title":"hello","views_per_hour":12.5}`)

	job, err := DecodeJob(body)
	require.NoError(t, err)
	require.Equal(t, "youtube", job.Platform)
	require.Equal(t, "abc", job.VideoID)
	require.Equal(t, "hello", job.Title)
	require.InDelta(t, 12.5, job.ViewsPerHour, 1e-9)
}

func TestDecodeJobToleratesMissingOptionalFields(t *testing.T) {
	body := []byte(`{"task":"process_video","platform":"youtube","video_id":"abc","url":"https://youtube.com/watch?v=abc"}`)

	job, err := DecodeJob(body)
	require.NoError(t, err)
	require.Equal(t, "", job.Title)
	require.Equal(t, "", job.Channel)
}

func TestDecodeJobRejectsMalformedJSON(t *testing.T) {
	_, err := DecodeJob([]byte("not json"))
	require.Error(t, err)
}

func TestJobMessageOmitsEmptyOptionalFields(t *testing.T) {
	job := model.AnalysisJob{
		VideoCandidate: model.VideoCandidate{
			Platform: "youtube",
			VideoID:  "abc",
			URL:      "https://youtube.com/watch?v=abc",
		},
	}
	// Build the message the way Publish does for a job with no optional
	// fields, without a live broker.
	msg := jobMessage{Task: taskName, Platform: job.Platform, VideoID: job.VideoID, URL: job.URL}
	require.Nil(t, msg.Title)
	require.Nil(t, msg.Channel)
	require.Nil(t, msg.ViewsPerHour)
}
