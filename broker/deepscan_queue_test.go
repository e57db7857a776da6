package broker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrollsafe/doomscroller/deepscan"
)

func TestDecodeDeepScanJobRoundTripsFields(t *testing.T) {
	body := []byte(`{"task":"deep_scan.tasks.process_job","job_id":"job-1","payload":{"platform":"youtube","video_id":"abc","url":"https://youtube.com/watch?v=abc","frame_dir":"/tmp/frames-abc"}}`)

	jobID, job, err := DecodeDeepScanJob(body)
	require.NoError(t, err)
	require.Equal(t, "job-1", jobID)
	require.Equal(t, "youtube", job.Platform)
	require.Equal(t, "abc", job.VideoID)
	require.Equal(t, "/tmp/frames-abc", job.FrameDir)
}

func TestDecodeDeepScanJobRejectsMalformedJSON(t *testing.T) {
	_, _, err := DecodeDeepScanJob([]byte("not json"))
	require.Error(t, err)
}

func TestDeepScanMessageMarshalsPayload(t *testing.T) {
	msg := deepScanMessage{Task: deepScanTaskName, JobID: "job-2", Job: deepscan.Job{Platform: "youtube", VideoID: "xyz"}}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	jobID, job, err := DecodeDeepScanJob(body)
	require.NoError(t, err)
	require.Equal(t, "job-2", jobID)
	require.Equal(t, "xyz", job.VideoID)
}
