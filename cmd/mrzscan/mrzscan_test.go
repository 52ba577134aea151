package main

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/adverant/nexus/mrz-worker/internal/config"
	"github.com/adverant/nexus/mrz-worker/internal/logging"
	"github.com/adverant/nexus/mrz-worker/internal/mrz"
	"github.com/adverant/nexus/mrz-worker/internal/processor"
	"github.com/adverant/nexus/mrz-worker/internal/scanner"
	"github.com/adverant/nexus/mrz-worker/internal/scanner/mocks"
)

const passportText = "P<UTOERIKSSON<<ANNA<MARIA<<<<<<<<<<<<<<<<<<<\nL898902C<3UTO6908061F9406236ZE184226B<<<<<10"

func writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xd8, 0xff, 0xd9}, 0o600))
	return path
}

func TestScanImages(t *testing.T) {
	cfg = &config.Config{RecognitionTimeout: time.Second}
	ctrl := gomock.NewController(t)
	recognizer := mocks.NewMockRecognizer(ctrl)

	passport := writeImage(t, "passport.jpg")
	blank := writeImage(t, "blank.jpg")
	missing := filepath.Join(t.TempDir(), "missing.jpg")

	gomock.InOrder(
		recognizer.EXPECT().Recognize(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, frame *processor.Frame) (*processor.OCRResult, error) {
				assert.Equal(t, "passport.jpg", frame.ID)
				return processor.ResultFromText(passportText, 0.8), nil
			}),
		recognizer.EXPECT().Recognize(gomock.Any(), gomock.Any()).
			Return(processor.ResultFromText("NOTHING HERE", 0.4), nil),
	)

	var out bytes.Buffer
	failed := scanImages(context.Background(), recognizer, []string{passport, blank, missing}, &out, logging.Discard())
	assert.Equal(t, 1, failed)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var first imageResult
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.True(t, first.Matched)
	assert.Equal(t, mrz.FormatA, first.Format)
	require.NotNil(t, first.Record)
	assert.Equal(t, "L898902C<", first.Record.DocumentNumber)

	var second imageResult
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.False(t, second.Matched)
	assert.Nil(t, second.Record)
	assert.Empty(t, second.Error)

	var third imageResult
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &third))
	assert.NotEmpty(t, third.Error)
}

func TestScanFileRecognizerError(t *testing.T) {
	cfg = &config.Config{}
	ctrl := gomock.NewController(t)
	recognizer := mocks.NewMockRecognizer(ctrl)
	recognizer.EXPECT().Recognize(gomock.Any(), gomock.Any()).Return(nil, stderrors.New("tesseract crashed"))

	res := scanFile(context.Background(), recognizer, writeImage(t, "bad.jpg"))
	assert.False(t, res.Matched)
	assert.Contains(t, res.Error, "tesseract crashed")
}

func TestPrintListener(t *testing.T) {
	var out bytes.Buffer
	l := newPrintListener(&out, logging.Discard())

	frame := processor.NewFrame(nil, 640, 480, 0)
	frame.Index = 12
	record := mrz.NormalizeFields(mrz.RawFields{DocumentNumber: "X1234567<"})

	l.OnNoMatch(frame, time.Millisecond)
	l.OnError(frame, stderrors.New("boom"), time.Millisecond)
	l.OnMatch(frame, record, 250*time.Millisecond)

	assert.Equal(t, int64(1), l.matched.Load())
	assert.Equal(t, int64(1), l.misses.Load())
	assert.Equal(t, int64(1), l.errors.Load())

	var line videoMatch
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, int64(12), line.Frame)
	assert.Equal(t, int64(250), line.ElapsedMs)
	assert.Equal(t, "X1234567<", line.Record.DocumentNumber)
}

func TestOfferWhenIdle(t *testing.T) {
	ctrl := gomock.NewController(t)
	recognizer := mocks.NewMockRecognizer(ctrl)
	listener := newPrintListener(&bytes.Buffer{}, logging.Discard())

	recognizer.EXPECT().Recognize(gomock.Any(), gomock.Any()).
		Return(processor.ResultFromText(passportText, 0.8), nil).Times(2)
	recognizer.EXPECT().Close().Return(nil)

	scan, err := scanner.New(&scanner.Config{Recognizer: recognizer, Listener: listener, Logger: logging.Discard()})
	require.NoError(t, err)

	never := func() bool { return false }
	assert.True(t, offerWhenIdle(context.Background(), scan, processor.NewFrame([]byte{1}, 1, 1, 0), never))
	assert.True(t, offerWhenIdle(context.Background(), scan, processor.NewFrame([]byte{2}, 1, 1, 0), never))

	// the first match is visible before the gate reopens
	matched := func() bool { return listener.matched.Load() > 0 }
	assert.False(t, offerWhenIdle(context.Background(), scan, processor.NewFrame([]byte{3}, 1, 1, 0), matched))

	require.NoError(t, scan.Stop(context.Background()))
	admitted, _ := scan.Stats()
	assert.Equal(t, uint64(2), admitted)
	assert.False(t, offerWhenIdle(context.Background(), scan, processor.NewFrame([]byte{4}, 1, 1, 0), never))
}
