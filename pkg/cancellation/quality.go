package cancellation

import (
	"github.com/condenserhq/condenser/pkg/models"
)

// Quality score weights. Completeness dominates; coherence rewards an
// unbroken prefix of completed segments.
const (
	completenessWeight = 0.7
	coherenceWeight    = 0.3
)

// AssessPartialQuality grades the completed subset of a batch's tasks.
// Tasks must be in segment index order.
func AssessPartialQuality(tasks []*models.SegmentTask) models.PartialQuality {
	total := len(tasks)
	if total == 0 {
		return models.PartialQuality{Level: models.QualityUnusable, RecommendedAction: models.ActionDiscard}
	}

	var completed int
	var missing []string
	for _, t := range tasks {
		if t.Status == models.TaskCompleted {
			completed++
		} else {
			missing = append(missing, t.Segment.Title)
		}
	}

	q := models.PartialQuality{
		Completeness:  float64(completed) / float64(total),
		Coherence:     coherence(tasks, completed),
		MissingTopics: missing,
	}
	q.Score = completenessWeight*q.Completeness + coherenceWeight*q.Coherence
	q.Level = levelFor(q.Score)
	q.RecommendedAction = actionFor(q.Level)
	return q
}

// coherence is the longest contiguous run of completed segments relative
// to the completed count. A partial made of scattered fragments reads
// worse than the same count in one unbroken stretch.
func coherence(tasks []*models.SegmentTask, completed int) float64 {
	if completed == 0 {
		return 0
	}
	var longest, run int
	for _, t := range tasks {
		if t.Status == models.TaskCompleted {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	return float64(longest) / float64(completed)
}

func levelFor(score float64) models.QualityLevel {
	switch {
	case score >= 0.9:
		return models.QualityExcellent
	case score >= 0.75:
		return models.QualityGood
	case score >= 0.5:
		return models.QualityAcceptable
	case score >= 0.25:
		return models.QualityPoor
	default:
		return models.QualityUnusable
	}
}

func actionFor(level models.QualityLevel) models.RecommendedAction {
	switch level {
	case models.QualityExcellent, models.QualityGood:
		return models.ActionRecommend
	case models.QualityAcceptable:
		return models.ActionReviewRequired
	case models.QualityPoor:
		return models.ActionConsiderContinue
	default:
		return models.ActionDiscard
	}
}
