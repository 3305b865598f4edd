package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"detectsuite/internal/config"
	"detectsuite/internal/dto"
	"detectsuite/internal/logger"
	"detectsuite/internal/model"
	"detectsuite/internal/services/capture"
	"detectsuite/internal/services/pipeline"
	"detectsuite/internal/services/storage"
	"detectsuite/internal/services/websocket"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

var (
	// ErrSessionNotFound is returned when stopping a session that is not running.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCameraInUse is returned when a webcam session is already running.
	ErrCameraInUse = fmt.Errorf("%w: camera already streaming", model.ErrSourceUnavailable)
)

// doneMessageWait bounds how long a finished session tries to report to
// its viewers.
const doneMessageWait = 2 * time.Second

// Openers are swapped out in tests.
type (
	VideoOpener  func(path string) (VideoSource, error)
	CameraOpener func(device int) (pipeline.Source, error)
)

// VideoSource is a bounded source that knows its length.
type VideoSource interface {
	pipeline.Source
	FrameCount() int
}

// Session is a running video or webcam stream.
type Session struct {
	info   dto.SessionInfo
	topic  string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

func (s *Session) snapshot() dto.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func (s *Session) advance() (frames, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Frames++
	return s.info.Frames, s.info.Total
}

// Manager owns the pipeline and the streams running through it.
type Manager struct {
	pipeline *pipeline.Pipeline
	staging  *storage.StagingService
	hub      *websocket.HubService
	config   *config.Config
	logger   *logger.Logger

	openVideo  VideoOpener
	openCamera CameraOpener

	sessions   map[string]*Session
	webcamBusy bool
	mu         sync.Mutex
	wg         sync.WaitGroup
}

func NewManager(p *pipeline.Pipeline, staging *storage.StagingService, hub *websocket.HubService, config *config.Config, logger *logger.Logger) *Manager {
	return &Manager{
		pipeline: p,
		staging:  staging,
		hub:      hub,
		config:   config,
		logger:   logger,
		openVideo: func(path string) (VideoSource, error) {
			video, err := capture.OpenVideoFile(path)
			if err != nil {
				return nil, err
			}
			return video, nil
		},
		openCamera: func(device int) (pipeline.Source, error) {
			camera, err := capture.OpenCamera(device)
			if err != nil {
				return nil, err
			}
			return camera, nil
		},
		sessions: make(map[string]*Session),
	}
}

// SetOpeners replaces how video files and cameras are opened.
func (m *Manager) SetOpeners(video VideoOpener, camera CameraOpener) {
	if video != nil {
		m.openVideo = video
	}
	if camera != nil {
		m.openCamera = camera
	}
}

func (m *Manager) Pipeline() *pipeline.Pipeline {
	return m.pipeline
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.hub
}

func (m *Manager) GetStagingService() *storage.StagingService {
	return m.staging
}

// DetectImages runs every image through the pipeline in upload order.
// Images that fail to decode are reported in their slot with an error.
func (m *Manager) DetectImages(images []capture.EncodedImage, opts pipeline.Options) (*dto.ImagesResponse, error) {
	set := capture.NewImageSet(images...)
	results := make([]dto.ImageResult, len(images))
	for i, img := range images {
		results[i] = dto.ImageResult{Name: img.Name, Counts: map[string]int{}}
	}

	sink := pipeline.SinkFuncs{
		OnFrame: func(res *model.FrameResult) error {
			preview, err := capture.Encode(res.Annotated, gocv.JPEGFileExt)
			if err != nil {
				return err
			}
			r := &results[res.Index]
			r.Counts = res.Counts
			r.Summary = pipeline.FormatCounts(res.Counts)
			r.Detections = res.Detections
			r.Image = base64.StdEncoding.EncodeToString(preview)
			r.DownloadName = dto.DownloadName(r.Name)
			return nil
		},
		OnSkip: func(index int, err error) {
			results[index].Error = err.Error()
		},
	}

	summary, err := m.pipeline.Run(context.Background(), set, opts, sink)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Processed %d image(s), skipped %d", summary.Processed, summary.Skipped)

	return &dto.ImagesResponse{
		Results:   results,
		Processed: summary.Processed,
		Skipped:   summary.Skipped,
	}, nil
}

// AnnotateForDownload re-encodes the annotated version of one image as PNG.
func (m *Manager) AnnotateForDownload(img capture.EncodedImage, opts pipeline.Options) ([]byte, error) {
	frame, err := capture.Decode(img.Data)
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	res, err := m.pipeline.Process(frame, opts)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	return capture.Encode(res.Annotated, gocv.PNGFileExt)
}

// StartVideo stages an uploaded video and streams its annotated frames to
// the viewers of owner. The staged file lives exactly as long as the session.
func (m *Manager) StartVideo(r io.Reader, filename, owner string, opts pipeline.Options) (dto.SessionInfo, error) {
	staged, err := m.staging.Stage(r, filename)
	if err != nil {
		return dto.SessionInfo{}, err
	}

	video, err := m.openVideo(staged.Path)
	if err != nil {
		staged.Release()
		return dto.SessionInfo{}, err
	}

	session := m.newSession(config.ModeVideo, filename, owner, video.FrameCount())
	m.logger.Info("🎬 Video session %s started for %s (%d frames)", session.info.ID, filename, video.FrameCount())

	m.launch(session, video, opts, func() {
		if err := staged.Release(); err != nil {
			m.logger.Error("Video session %s: %v", session.info.ID, err)
		}
	})
	return session.snapshot(), nil
}

// StartWebcam opens a capture device and streams until stopped. The camera
// slot is held from before the device opens until the session has ended.
func (m *Manager) StartWebcam(device int, owner string, opts pipeline.Options) (dto.SessionInfo, error) {
	m.mu.Lock()
	if m.webcamBusy {
		m.mu.Unlock()
		return dto.SessionInfo{}, ErrCameraInUse
	}
	m.webcamBusy = true
	m.mu.Unlock()

	camera, err := m.openCamera(device)
	if err != nil {
		m.releaseWebcam()
		return dto.SessionInfo{}, err
	}

	session := m.newSession(config.ModeWebcam, fmt.Sprintf("camera %d", device), owner, 0)
	m.logger.Info("📹 Webcam session %s started on device %d", session.info.ID, device)

	m.launch(session, camera, opts, m.releaseWebcam)
	return session.snapshot(), nil
}

func (m *Manager) releaseWebcam() {
	m.mu.Lock()
	m.webcamBusy = false
	m.mu.Unlock()
}

// Stop cancels a session started by owner and waits until its frame source
// is released. Sessions of other owners are reported as not found.
func (m *Manager) Stop(id, owner string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok || session.topic != owner {
		return ErrSessionNotFound
	}

	session.cancel()
	<-session.done
	return nil
}

// Sessions lists the running sessions of owner, oldest first. An empty
// owner lists every session.
func (m *Manager) Sessions(owner string) []dto.SessionInfo {
	m.mu.Lock()
	infos := make([]dto.SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		if owner != "" && s.topic != owner {
			continue
		}
		infos = append(infos, s.snapshot())
	}
	m.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Shutdown stops every running session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, s := range m.sessions {
		s.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("🛑 All sessions stopped")
}

func (m *Manager) newSession(mode config.Mode, source, owner string, total int) *Session {
	id := uuid.NewString()
	if owner == "" {
		owner = id
	}
	ctx, cancel := context.WithCancel(context.Background())
	session := &Session{
		info: dto.SessionInfo{
			ID:        id,
			Mode:      string(mode),
			Source:    source,
			StartedAt: time.Now(),
			Total:     total,
		},
		topic:  owner,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()
	return session
}

// launch runs the session in the background. cleanup runs after the source
// has been released and before the session is reported as finished.
func (m *Manager) launch(session *Session, src pipeline.Source, opts pipeline.Options, cleanup func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(session.done)
		defer func() {
			m.mu.Lock()
			delete(m.sessions, session.info.ID)
			m.mu.Unlock()
		}()
		defer session.cancel()
		if cleanup != nil {
			defer cleanup()
		}

		summary, err := m.pipeline.Run(session.ctx, src, opts, &streamSink{manager: m, session: session})

		done := dto.StreamMessage{
			Type:      dto.MessageDone,
			Stream:    session.info.ID,
			Index:     summary.Frames,
			Processed: summary.Processed,
			Skipped:   summary.Skipped,
			Cancelled: summary.Cancelled,
		}
		if err != nil {
			done.Error = err.Error()
			m.logger.Error("Session %s failed after %d frame(s): %v", session.info.ID, summary.Frames, err)
		} else {
			m.logger.Info("Session %s finished: %d processed, %d skipped, cancelled=%t",
				session.info.ID, summary.Processed, summary.Skipped, summary.Cancelled)
		}
		// The session context is already cancelled here.
		ctx, cancel := context.WithTimeout(context.Background(), doneMessageWait)
		defer cancel()
		m.send(ctx, session.topic, done)
	}()
}

// send gives up when ctx ends so a stalled hub can never keep a session
// from seeing its cancellation.
func (m *Manager) send(ctx context.Context, topic string, msg dto.StreamMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("Error encoding stream message: %v", err)
		return
	}
	if !m.hub.Broadcast(ctx, payload, topic) {
		m.logger.Warning("Dropped %s message for session %s", msg.Type, msg.Stream)
	}
}

// streamSink forwards pipeline output of one session to its viewers.
type streamSink struct {
	manager *Manager
	session *Session
}

func (s *streamSink) Frame(res *model.FrameResult) error {
	frames, total := s.session.advance()

	// Nobody is watching; skip the JPEG encode.
	if s.manager.hub.GetClientCount(s.session.topic) == 0 {
		return nil
	}

	data, err := capture.Encode(res.Annotated, gocv.JPEGFileExt)
	if err != nil {
		return err
	}

	msg := dto.StreamMessage{
		Type:    dto.MessageFrame,
		Stream:  s.session.info.ID,
		Index:   res.Index,
		Image:   base64.StdEncoding.EncodeToString(data),
		Counts:  res.Counts,
		Summary: pipeline.FormatCounts(res.Counts),
	}
	if total > 0 {
		msg.Progress = min(1, float64(frames)/float64(total))
	}
	s.manager.send(s.session.ctx, s.session.topic, msg)
	return nil
}

func (s *streamSink) Skip(index int, err error) {
	s.session.advance()
	s.manager.send(s.session.ctx, s.session.topic, dto.StreamMessage{
		Type:   dto.MessageSkip,
		Stream: s.session.info.ID,
		Index:  index,
		Error:  err.Error(),
	})
}
