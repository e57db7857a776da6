// Package model holds the pipeline's data model: the records that move
// between providers, the broker, the extractor, the classifier, and the
// datastore.
package model

import "time"

// VideoCandidate is produced by a discovery provider. (platform, video_id)
// uniquely identifies a video across the system.
type VideoCandidate struct {
	Platform      string     `json:"platform"`
	VideoID       string     `json:"video_id"`
	URL           string     `json:"url"`
	Title         string     `json:"title,omitempty"`
	Channel       string     `json:"channel,omitempty"`
	Region        string     `json:"region,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	ViewCount     int64      `json:"view_count"`
	ViewsPerHour  float64    `json:"views_per_hour"`
}

// Key returns the (platform, video_id) identity tuple as a map key.
func (c VideoCandidate) Key() CandidateKey {
	return CandidateKey{Platform: c.Platform, VideoID: c.VideoID}
}

// CandidateKey is the cross-system identity of a video.
type CandidateKey struct {
	Platform string
	VideoID  string
}

// AnalysisJob is the broker message consumed by the analyzer worker.
type AnalysisJob struct {
	VideoCandidate
	Priority int `json:"-"`
}

// FrameSet is the ordered sequence of JPEG blobs a single extraction run
// produced. Its lifecycle is bounded by one job execution.
type FrameSet [][]byte

// InferenceResult is a single frame's label-score map from the classifier.
type InferenceResult struct {
	LabelScores     map[string]float64 `json:"label_scores"`
	InferenceTimeMs float64            `json:"inference_time_ms"`
}

// InferenceResponse is the full classifier response for a batch of frames.
type InferenceResponse struct {
	Results     []InferenceResult `json:"results"`
	BatchTimeMs float64           `json:"batch_time_ms"`
	Model       InferenceModel    `json:"model"`
}

// InferenceModel identifies the classifier backend that served a response.
type InferenceModel struct {
	ID     string `json:"id"`
	Device string `json:"device"`
}

// Label is the external verdict label vocabulary.
type Label string

const (
	LabelVerified    Label = "verified"
	LabelSuspicious  Label = "suspicious"
	LabelAIDetected  Label = "ai-detected"
)

// VoteShare is the normalized real/artificial vote split.
type VoteShare struct {
	Real       float64 `json:"real"`
	Artificial float64 `json:"artificial"`
}

// Verdict is the aggregator's output: the system's final call on a video.
type Verdict struct {
	Label      Label                  `json:"label"`
	Confidence float64                `json:"confidence"`
	Reason     string                 `json:"reason"`
	VoteShare  VoteShare              `json:"vote_share"`
	Features   map[string]interface{} `json:"features"`
}

// AnalysisRecord is the persisted row pair for (platform, video_id).
type AnalysisRecord struct {
	Platform     string
	VideoID      string
	SourceURL    string
	Title        *string
	Channel      *string
	PublishedAt  *time.Time
	Region       *string
	ViewsPerHour *float64

	AnalyzedAt   time.Time
	Label        Label
	Confidence   float64
	Reason       string
	Features     map[string]interface{}
	ModelVersion string
	FramePolicy  string
	BatchTimeMs  float64
	FramesCount  int
}

// HeuristicResult is the output of the title/channel keyword scan.
type HeuristicResult struct {
	Result     string  `json:"result"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}
