package cache

import "fmt"

// DedupKey is the claim/stamp key for a (platform, video_id) analysis,
// tying deduplication to both the video and the analysis recipe (model
// version + frame policy).
func DedupKey(platform, videoID, modelVersion string, targetFrames int) string {
	return fmt.Sprintf("analyzed:%s:%s@%s@even_%d", platform, videoID, modelVersion, targetFrames)
}

// SnapshotKey is the cache key for the latest verdict JSON snapshot.
func SnapshotKey(platform, videoID string) string {
	return fmt.Sprintf("video:%s:%s", platform, videoID)
}

// DeepScanJobKey is the deep-scan variant's job-status key.
func DeepScanJobKey(jobID string) string {
	return fmt.Sprintf("deep:job:%s", jobID)
}

// DeepScanLockKey is the deep-scan variant's short-lived per-video lock key.
func DeepScanLockKey(platform, videoID string) string {
	return fmt.Sprintf("deep:lock:%s:%s", platform, videoID)
}
