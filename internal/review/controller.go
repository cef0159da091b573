// Package review implements the upload, review and finalize workflow of one
// user session on top of the extraction server.
package review

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/rosy-tax/reviewer/internal/extraction"
	"github.com/rosy-tax/reviewer/internal/metrics"
	"github.com/rosy-tax/reviewer/internal/models"
)

// Backend is the extraction server as seen by the controller.
type Backend interface {
	Upload(ctx context.Context, req models.UploadRequest) (*models.ExtractionResult, error)
	Finalize(ctx context.Context, req models.FinalizeRequest) (io.ReadCloser, error)
}

// DownloadSink materializes finalized PDFs as downloadable objects.
type DownloadSink interface {
	Save(name string, r io.Reader) (*models.DownloadInfo, error)
}

// Recorder receives one event per completed action.
type Recorder interface {
	Record(ctx context.Context, ev models.Event) error
}

// StatusFunc is called with every status line, in order.
type StatusFunc func(status string)

// Options holds the optional collaborators of a Controller.
type Options struct {
	SessionID string
	OnStatus  StatusFunc
	Recorder  Recorder
	Policy    UploadPolicy
}

// Controller owns the state of one review session. All methods are safe for
// concurrent use; at most one upload or finalize runs at a time.
type Controller struct {
	backend Backend
	sink    DownloadSink
	opts    Options

	mu       sync.Mutex
	state    State
	inFlight bool
}

// NewController creates a controller in the idle state.
func NewController(backend Backend, sink DownloadSink, opts Options) *Controller {
	return &Controller{
		backend: backend,
		sink:    sink,
		opts:    opts,
		state:   NewState(),
	}
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Render returns the view of the current snapshot.
func (c *Controller) Render() View {
	return Render(c.State())
}

// Busy reports whether an upload or finalize is running.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Submit uploads the files and replaces the current result with the
// server's answer. The previous result is discarded up front.
func (c *Controller) Submit(ctx context.Context, req models.UploadRequest) (*models.ExtractionResult, error) {
	if !c.acquire() {
		metrics.IncAction("upload", "busy")
		return nil, ErrBusy
	}
	defer c.release()

	c.transition(func(s State) State {
		s = s.cleared()
		s.Phase = PhaseUploading
		s.FilingStatus = req.FilingStatus
		s.Withholding = req.Withholding
		s.Status = StatusPreparing
		return s
	})

	if len(req.Files) == 0 {
		status := c.transition(func(s State) State {
			s.Phase = PhaseIdle
			s.Status = StatusNoFiles
			return s
		})
		c.record(ctx, models.EventUpload, false, status)
		metrics.IncAction("upload", "validation_error")
		return nil, &ValidationError{Message: "no files"}
	}

	if err := c.opts.Policy.Check(req.Files); err != nil {
		var vErr *ValidationError
		errors.As(err, &vErr)
		status := c.transition(func(s State) State {
			s.Phase = PhaseIdle
			s.Status = StatusUploadFailed + vErr.Message
			return s
		})
		c.record(ctx, models.EventUpload, false, status)
		metrics.IncAction("upload", "validation_error")
		return nil, err
	}

	req.Files = sanitized(req.Files)
	c.transition(func(s State) State {
		s.Status = StatusUploading
		return s
	})

	result, err := c.backend.Upload(ctx, req)
	if err != nil {
		msg, outcome := uploadFailure(err)
		status := c.transition(func(s State) State {
			s.Phase = PhaseIdle
			s.Status = msg
			return s
		})
		c.record(ctx, models.EventUpload, false, status)
		metrics.IncAction("upload", outcome)
		return nil, err
	}

	status := c.transition(func(s State) State {
		s = s.withResult(result.Clone())
		s.Phase = PhaseReviewing
		s.Status = StatusProcessed
		return s
	})
	c.record(ctx, models.EventUpload, true, status)
	metrics.IncAction("upload", "ok")

	log.Info().
		Str("session", c.opts.SessionID).
		Int("files", len(req.Files)).
		Str("doc_type", result.DocType).
		Msg("upload reviewed")
	return result, nil
}

// Save writes the edited values into the fields of per-file entry index and
// shows the aggregated preview again. Other entries are left unchanged.
func (c *Controller) Save(ctx context.Context, index int, values map[string]string) error {
	c.mu.Lock()
	next, err := c.state.withFieldEdits(index, values)
	if err != nil {
		c.mu.Unlock()
		metrics.IncAction("save", "validation_error")
		return err
	}
	next.Status = StatusUpdatedFields + next.Result.PerFile[index].Path
	next.ShowAggregated = true
	next.Download = nil
	if next.Phase == PhaseReady {
		next.Phase = PhaseReviewing
	}
	c.state = next
	c.mu.Unlock()

	c.emit(next.Status)
	c.record(ctx, models.EventSave, true, next.Status)
	metrics.IncAction("save", "ok")
	return nil
}

// Finalize sends the current per-file fields with filingStatus to the
// server and stores the returned PDF. Every call is a separate request.
func (c *Controller) Finalize(ctx context.Context, filingStatus string) (*models.DownloadInfo, error) {
	if !c.acquire() {
		metrics.IncAction("finalize", "busy")
		return nil, ErrBusy
	}
	defer c.release()

	var (
		payload models.FinalizeRequest
		ready   bool
	)
	status := c.transition(func(s State) State {
		if s.Result == nil {
			s.Status = StatusNothingToFinal
			return s
		}
		ready = true
		payload = s.payload(filingStatus)
		s.FilingStatus = filingStatus
		s.Phase = PhaseFinalizing
		s.Status = StatusGenerating
		return s
	})
	if !ready {
		c.record(ctx, models.EventFinalize, false, status)
		metrics.IncAction("finalize", "validation_error")
		return nil, &ValidationError{Message: "nothing to finalize"}
	}

	body, err := c.backend.Finalize(ctx, payload)
	if err != nil {
		status := c.transition(func(s State) State {
			s.Phase = PhaseReviewing
			s.Status = StatusFinalizeFailed
			return s
		})
		c.record(ctx, models.EventFinalize, false, status)
		metrics.IncAction("finalize", "finalize_error")
		return nil, err
	}
	defer body.Close()

	info, err := c.materialize(body)
	if err != nil {
		derr := &DownloadError{Message: err.Error(), Err: err}
		status := c.transition(func(s State) State {
			s.Phase = PhaseReviewing
			s.Status = StatusDownloadFailed + derr.Message
			return s
		})
		c.record(ctx, models.EventFinalize, false, status)
		metrics.IncAction("finalize", "download_error")
		return nil, derr
	}

	status = c.transition(func(s State) State {
		s.ShowAggregated = true
		s.Download = info
		s.Phase = PhaseReady
		s.Status = StatusReady
		return s
	})
	c.record(ctx, models.EventFinalize, true, status)
	metrics.IncAction("finalize", "ok")

	log.Info().
		Str("session", c.opts.SessionID).
		Str("download", info.ID).
		Int64("bytes", info.Size).
		Msg("draft ready")
	return info, nil
}

func (c *Controller) materialize(body io.Reader) (*models.DownloadInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if mt := mimetype.Detect(data); !mt.Is("application/pdf") {
		return nil, fmt.Errorf("response is %s, not a PDF", mt.String())
	}
	if c.sink == nil {
		return nil, errors.New("no download store configured")
	}
	info, err := c.sink.Save(models.DraftFileName, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("storing PDF: %w", err)
	}
	return info, nil
}

func (c *Controller) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return false
	}
	c.inFlight = true
	return true
}

func (c *Controller) release() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

// transition installs fn(current) as the new state and emits its status.
func (c *Controller) transition(fn func(State) State) string {
	c.mu.Lock()
	c.state = fn(c.state)
	status := c.state.Status
	c.mu.Unlock()

	c.emit(status)
	return status
}

func (c *Controller) emit(status string) {
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(status)
	}
}

func (c *Controller) record(ctx context.Context, kind models.EventKind, ok bool, status string) {
	if c.opts.Recorder == nil {
		return
	}
	ev := models.Event{
		SessionID: c.opts.SessionID,
		Kind:      kind,
		OK:        ok,
		Status:    status,
		At:        time.Now(),
	}
	if err := c.opts.Recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("activity record failed")
	}
}

func sanitized(files []models.UploadFile) []models.UploadFile {
	out := make([]models.UploadFile, len(files))
	for i, f := range files {
		out[i] = models.UploadFile{Name: SanitizeFilename(f.Name), Data: f.Data}
	}
	return out
}

func uploadFailure(err error) (status, outcome string) {
	var upErr *extraction.UploadError
	var netErr *extraction.NetworkError
	switch {
	case errors.As(err, &upErr):
		return StatusUploadFailed + upErr.Message, "upload_error"
	case errors.As(err, &netErr):
		return StatusNetworkError + netErr.Message, "network_error"
	default:
		return StatusUploadFailed + err.Error(), "upload_error"
	}
}
