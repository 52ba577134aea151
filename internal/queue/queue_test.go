package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/adverant/nexus/mrz-worker/internal/errors"
	"github.com/adverant/nexus/mrz-worker/internal/logging"
	"github.com/adverant/nexus/mrz-worker/internal/mrz"
	"github.com/adverant/nexus/mrz-worker/internal/processor"
	"github.com/adverant/nexus/mrz-worker/internal/scanner"
	"github.com/adverant/nexus/mrz-worker/internal/scanner/mocks"
)

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}

func TestFrameMessageBase64(t *testing.T) {
	raw := `{"id":"f-1","sessionId":"s-1","index":7,"width":1280,"height":720,"rotation":90,"image":"` +
		base64.StdEncoding.EncodeToString(jpeg) + `"}`

	var msg FrameMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, jpeg, msg.Image)

	frame := msg.ToFrame()
	assert.Equal(t, "f-1", frame.ID)
	assert.Equal(t, "s-1", frame.SessionID)
	assert.Equal(t, int64(7), frame.Index)
	assert.Equal(t, 1280, frame.Width)
	assert.Equal(t, 720, frame.Height)
	assert.Equal(t, 90, frame.Rotation)
	assert.False(t, frame.CapturedAt.IsZero())
}

func TestFrameMessageNodeBuffer(t *testing.T) {
	raw := `{"width":10,"height":10,"image":{"type":"Buffer","data":[255,216,255,224,0,16]}}`

	var msg FrameMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, jpeg, msg.Image)
	assert.NotEmpty(t, msg.ToFrame().ID, "missing ID is generated")
}

func TestFrameMessageRejectsBadImages(t *testing.T) {
	cases := map[string]string{
		"missing image":     `{"width":1}`,
		"empty image":       `{"image":""}`,
		"bad base64":        `{"image":"!!!"}`,
		"wrong buffer type": `{"image":{"type":"Blob","data":[1]}}`,
		"missing data":      `{"image":{"type":"Buffer"}}`,
		"byte out of range": `{"image":{"type":"Buffer","data":[256]}}`,
		"number image":      `{"image":42}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var msg FrameMessage
			assert.Error(t, json.Unmarshal([]byte(raw), &msg))
		})
	}
}

func TestNewDocumentTask(t *testing.T) {
	record := mrz.NormalizeFields(mrz.RawFields{DocumentNumber: "O1234567O", DateOfBirth: "700101", DateOfExpiry: "300101"})
	doc := &DocumentTask{FrameID: "f-9", SessionID: "s-1", Record: record, ElapsedMs: 120, ScannedAt: time.Now()}

	task, err := NewDocumentTask(doc, "mrz")
	require.NoError(t, err)
	assert.Equal(t, TaskDocument, task.Type())

	var decoded DocumentTask
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, "012345670", decoded.Record.DocumentNumber)
	assert.True(t, decoded.Record.Partial)

	_, err = NewDocumentTask(&DocumentTask{}, "mrz")
	assert.ErrorContains(t, err, "frame ID is required")
}

func TestNewScanImageTask(t *testing.T) {
	task, err := NewScanImageTask(&ImageJob{JobID: "j-1", Image: jpeg})
	require.NoError(t, err)
	assert.Equal(t, TaskScanImage, task.Type())

	_, err = NewScanImageTask(&ImageJob{JobID: "j-2"})
	assert.Error(t, err)
}

func newTestImageConsumer(t *testing.T) (*ImageConsumer, *mocks.MockRecognizer, *mocks.MockListener) {
	ctrl := gomock.NewController(t)
	recognizer := mocks.NewMockRecognizer(ctrl)
	listener := mocks.NewMockListener(ctrl)
	return &ImageConsumer{
		recognizer: recognizer,
		listener:   listener,
		config:     &ImageConsumerConfig{ProcessingTimeout: time.Second},
		logger:     logging.Discard(),
	}, recognizer, listener
}

func TestHandleScanImageMatch(t *testing.T) {
	c, recognizer, listener := newTestImageConsumer(t)
	task, err := NewScanImageTask(&ImageJob{JobID: "j-1", Image: jpeg})
	require.NoError(t, err)

	text := "P<UTOERIKSSON<<ANNA<MARIA<<<<<<<<<<<<<<<<<<<\nL898902C<3UTO6908061F9406236ZE184226B<<<<<10"
	recognizer.EXPECT().Recognize(gomock.Any(), gomock.Any()).Return(processor.ResultFromText(text, 0.7), nil)
	listener.EXPECT().OnMatch(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(frame *processor.Frame, record mrz.Record, _ time.Duration) {
			assert.Equal(t, "j-1", frame.ID)
			assert.Equal(t, "L898902C<", record.DocumentNumber)
		})

	assert.NoError(t, c.handleScanImage(context.Background(), task))
}

func TestHandleScanImageNoMatch(t *testing.T) {
	c, recognizer, listener := newTestImageConsumer(t)
	task, err := NewScanImageTask(&ImageJob{JobID: "j-2", Image: jpeg})
	require.NoError(t, err)

	recognizer.EXPECT().Recognize(gomock.Any(), gomock.Any()).Return(processor.ResultFromText("HELLO", 0.5), nil)
	listener.EXPECT().OnNoMatch(gomock.Any(), gomock.Any())

	assert.NoError(t, c.handleScanImage(context.Background(), task))
}

func TestHandleScanImageRecognizerError(t *testing.T) {
	c, recognizer, listener := newTestImageConsumer(t)
	task, err := NewScanImageTask(&ImageJob{JobID: "j-3", Image: jpeg})
	require.NoError(t, err)

	recognizer.EXPECT().Recognize(gomock.Any(), gomock.Any()).Return(nil, stderrors.New("boom"))
	listener.EXPECT().OnError(gomock.Any(), gomock.Any(), gomock.Any())

	err = c.handleScanImage(context.Background(), task)
	assert.ErrorIs(t, err, &errors.ProcessingError{Code: errors.ErrorRecognitionFailed})
}

func TestHandleScanImageBadPayloadSkipsRetry(t *testing.T) {
	c, _, _ := newTestImageConsumer(t)

	err := c.handleScanImage(context.Background(), asynq.NewTask(TaskScanImage, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = c.handleScanImage(context.Background(), asynq.NewTask(TaskScanImage, []byte(`{"jobId":"x"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventNoMatch, "f-1", "s-1", 1500*time.Millisecond)
	assert.Equal(t, int64(1500), e.ElapsedMs)

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event":"scan:no_match"`)
	assert.NotContains(t, string(data), `"record"`)
}

type stoppedScanner struct{}

func (stoppedScanner) Stopped() bool                  { return true }
func (stoppedScanner) Uses(processor.Recognizer) bool { return false }

func TestHandleScanImageAfterScannerStopped(t *testing.T) {
	c, _, _ := newTestImageConsumer(t)
	c.config.Lifecycle = stoppedScanner{}
	task, err := NewScanImageTask(&ImageJob{JobID: "j-4", Image: jpeg})
	require.NoError(t, err)

	// no recognizer or listener call is expected
	err = c.handleScanImage(context.Background(), task)
	assert.ErrorIs(t, err, &errors.ProcessingError{Code: errors.ErrorScannerStopped})
}

func TestNewImageConsumerRejectsScannerRecognizer(t *testing.T) {
	ctrl := gomock.NewController(t)
	live := mocks.NewMockRecognizer(ctrl)
	still := mocks.NewMockRecognizer(ctrl)
	listener := mocks.NewMockListener(ctrl)

	scan, err := scanner.New(&scanner.Config{Recognizer: live, Listener: listener, Logger: logging.Discard()})
	require.NoError(t, err)

	cfg := &ImageConsumerConfig{
		RedisURL:  "redis://localhost:6379",
		QueueName: "mrz-images",
		Listener:  listener,
		Lifecycle: scan,
		Logger:    logging.Discard(),
	}

	cfg.Recognizer = live
	_, err = NewImageConsumer(cfg)
	assert.ErrorContains(t, err, "owned by the live scanner")

	cfg.Recognizer = still
	c, err := NewImageConsumer(cfg)
	require.NoError(t, err)

	still.EXPECT().Close().Return(nil)
	assert.NoError(t, c.Stop())
}

// countingRecognizer blocks every call until hold is closed and records the
// peak number of concurrent calls and the frames it saw
type countingRecognizer struct {
	hold     chan struct{}
	inflight atomic.Int32
	peak     atomic.Int32

	mu   sync.Mutex
	seen []string
}

func newCountingRecognizer() *countingRecognizer {
	return &countingRecognizer{hold: make(chan struct{})}
}

func (r *countingRecognizer) Recognize(ctx context.Context, frame *processor.Frame) (*processor.OCRResult, error) {
	n := r.inflight.Add(1)
	defer r.inflight.Add(-1)
	for {
		peak := r.peak.Load()
		if n <= peak || r.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	r.mu.Lock()
	r.seen = append(r.seen, frame.ID)
	r.mu.Unlock()

	select {
	case <-r.hold:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return processor.ResultFromText("NOTHING HERE", 0.5), nil
}

func (r *countingRecognizer) Close() error { return nil }

func (r *countingRecognizer) frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

type nopListener struct{}

func (nopListener) OnMatch(*processor.Frame, mrz.Record, time.Duration) {}
func (nopListener) OnNoMatch(*processor.Frame, time.Duration)           {}
func (nopListener) OnError(*processor.Frame, error, time.Duration)      {}

func TestLiveAndStillRecognitionsUseSeparateRecognizers(t *testing.T) {
	live := newCountingRecognizer()
	still := newCountingRecognizer()

	scan, err := scanner.New(&scanner.Config{Recognizer: live, Listener: nopListener{}, Logger: logging.Discard()})
	require.NoError(t, err)

	c, err := NewImageConsumer(&ImageConsumerConfig{
		RedisURL:    "redis://localhost:6379",
		QueueName:   "mrz-images",
		Concurrency: 2,
		Recognizer:  still,
		Listener:    nopListener{},
		Lifecycle:   scan,
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range []string{"j-1", "j-2"} {
		task, err := NewScanImageTask(&ImageJob{JobID: id, Image: jpeg})
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.handleScanImage(context.Background(), task))
		}()
	}
	assert.Eventually(t, func() bool { return still.inflight.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	liveFrame := processor.NewFrame(jpeg, 640, 480, 0)
	assert.True(t, scan.Offer(liveFrame))
	assert.False(t, scan.Offer(processor.NewFrame(jpeg, 640, 480, 0)))
	assert.Eventually(t, func() bool { return live.inflight.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	close(still.hold)
	close(live.hold)
	wg.Wait()
	require.NoError(t, scan.Stop(context.Background()))

	assert.Equal(t, int32(1), live.peak.Load())
	assert.Equal(t, []string{liveFrame.ID}, live.frames())
	assert.ElementsMatch(t, []string{"j-1", "j-2"}, still.frames())
}
