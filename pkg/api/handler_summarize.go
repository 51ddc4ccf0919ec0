package api

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/condenserhq/condenser/pkg/merger"
	"github.com/condenserhq/condenser/pkg/models"
	"github.com/condenserhq/condenser/pkg/provider"
	"github.com/condenserhq/condenser/pkg/scheduler"
)

// batchPollInterval is how often the synchronous endpoints poll for batch
// completion.
const batchPollInterval = 50 * time.Millisecond

// SummarizeRequest is the body of POST /api/summarize.
type SummarizeRequest struct {
	Text    string `json:"text" binding:"required"`
	Options *struct {
		Length   string `json:"length,omitempty"`
		Language string `json:"language,omitempty"`
	} `json:"options,omitempty"`
}

// handleSummarize runs the full pipeline synchronously and returns the
// merged summary.
func (s *Server) handleSummarize(c *gin.Context) {
	var req SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorKind(c, provider.KindInvalidInput, err.Error())
		return
	}
	s.summarizeText(c, req.Text, s.mergeOptions(&req))
}

// handleUpload accepts a text file and summarizes its content.
func (s *Server) handleUpload(c *gin.Context) {
	maxBytes := s.cfg.Server.MaxUploadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		respondErrorKind(c, provider.KindInvalidInput, "file field is required: "+err.Error())
		return
	}
	if fh.Size > maxBytes {
		respondErrorStatus(c, http.StatusRequestEntityTooLarge, "invalid_input",
			"file exceeds the upload size limit", "warning", false,
			[]string{"Split the document and upload the parts separately."})
		return
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !s.allowedExtension(ext) {
		respondErrorKind(c, provider.KindInvalidInput,
			"unsupported file type "+ext+"; accepted: "+strings.Join(s.cfg.Server.AllowedUploadExtensions, ", "))
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondErrorKind(c, provider.KindInternal, "failed to open upload: "+err.Error())
		return
	}
	defer func() { _ = f.Close() }()

	content, err := io.ReadAll(f)
	if err != nil {
		respondErrorKind(c, provider.KindInternal, "failed to read upload: "+err.Error())
		return
	}

	s.summarizeText(c, string(content), merger.Options{
		Strategy: merger.StrategyBalanced,
		Language: c.PostForm("language"),
	})
}

// summarizeText segments, schedules, and waits for the batch, then writes
// the synchronous response.
func (s *Server) summarizeText(c *gin.Context, text string, opts merger.Options) {
	start := time.Now()

	segments, err := s.segmenter.Segment(c.Request.Context(), text)
	if err != nil {
		respondError(c, err, "")
		return
	}

	batchID, err := s.scheduler.Start(segments, text, userID(c), scheduler.StartOptions{
		MergeOptions: opts,
	})
	if err != nil {
		respondError(c, err, "")
		return
	}

	batch, ok := s.waitForBatch(c, batchID)
	if !ok {
		// Client went away; stop the orphaned batch.
		s.scheduler.Cancel(models.CancellationRequest{
			BatchID:     batchID,
			RequestedBy: "api",
			Reason:      models.CancelReasonUser,
			Force:       true,
			RequestedAt: time.Now().UTC(),
		})
		respondErrorKind(c, provider.KindCancelled, "request cancelled before the batch finished")
		return
	}

	switch batch.Stage {
	case models.StageCompleted:
		c.JSON(http.StatusOK, SummarizeResponse{
			Success:          true,
			BatchID:          batch.ID,
			Summary:          batch.Summary,
			OriginalLength:   len(text),
			SummaryLength:    len(batch.Summary),
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		})
	case models.StageCancelled:
		respondErrorKind(c, provider.KindCancelled, "batch was cancelled")
	default:
		respondErrorKind(c, batchFailureKind(batch), batchFailureMessage(batch))
	}
}

// waitForBatch polls until the batch reaches a terminal stage. Returns false
// when the request context ends first.
func (s *Server) waitForBatch(c *gin.Context, batchID string) (*models.Batch, bool) {
	deadline := time.NewTimer(s.cfg.Batch.BatchTimeout + 30*time.Second)
	defer deadline.Stop()
	ticker := time.NewTicker(batchPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return nil, false
		case <-deadline.C:
			return nil, false
		case <-ticker.C:
			batch, ok := s.scheduler.Batch(batchID)
			if !ok {
				return nil, false
			}
			if batch.Stage.Terminal() {
				return batch, true
			}
		}
	}
}

func (s *Server) mergeOptions(req *SummarizeRequest) merger.Options {
	opts := merger.Options{Strategy: merger.StrategyBalanced}
	if req.Options == nil {
		return opts
	}
	switch req.Options.Length {
	case "short":
		opts.Strategy = merger.StrategyConcise
	case "long":
		opts.Strategy = merger.StrategyDetailed
	case "", "medium":
		opts.Strategy = merger.StrategyBalanced
	}
	opts.Language = req.Options.Language
	return opts
}

func (s *Server) allowedExtension(ext string) bool {
	for _, allowed := range s.cfg.Server.AllowedUploadExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// batchFailureKind derives an error kind from the failed tasks of a batch.
func batchFailureKind(batch *models.Batch) provider.Kind {
	counts := make(map[provider.Kind]int)
	for _, t := range batch.Tasks {
		if t.Status == models.TaskFailed && t.LastErrorKind != "" {
			counts[provider.Kind(t.LastErrorKind)]++
		}
	}
	kind := provider.KindInternal
	best := 0
	for k, n := range counts {
		if n > best {
			kind, best = k, n
		}
	}
	return kind
}

func batchFailureMessage(batch *models.Batch) string {
	if batch.ErrorMessage != "" {
		return batch.ErrorMessage
	}
	return "batch processing failed"
}
