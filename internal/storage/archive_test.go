package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/RMahshie/voltsense/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockArchiveStore implements ArchiveStore for testing
type MockArchiveStore struct {
	mock.Mock
}

func (m *MockArchiveStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	args := m.Called(ctx, key, data, contentType)
	return args.Error(0)
}

func (m *MockArchiveStore) DownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

type staticSource struct {
	sessionID string
	samples   []models.Sample
}

func (s staticSource) SessionID() string               { return s.sessionID }
func (s staticSource) History() []models.Sample        { return s.samples }
func (s staticSource) Calibration() models.Calibration { return models.DefaultCalibration() }

func TestHistoryArchiver_Archive(t *testing.T) {
	ts := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	source := staticSource{
		sessionID: "3f1c6a52-4b7e-4b8e-9d8b-2a7c1d0e9f11",
		samples: []models.Sample{
			{Timestamp: ts, RMS: 230, Current: 2, Power: 460},
			{Timestamp: ts.Add(time.Second), RMS: 228.5, Current: 2.1, Power: 479.85},
		},
	}

	store := &MockArchiveStore{}
	var uploaded []byte
	store.On("Upload", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "history/"+source.sessionID+"/") && strings.HasSuffix(key, ".json")
	}), mock.Anything, "application/json").
		Run(func(args mock.Arguments) { uploaded = args.Get(2).([]byte) }).
		Return(nil)
	store.On("DownloadURL", mock.Anything, mock.Anything).Return("https://example.com/archive.json", nil)

	archiver := NewHistoryArchiver(store, source)
	archive, err := archiver.Archive(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, archive.Samples)
	assert.Equal(t, "https://example.com/archive.json", archive.URL)
	assert.Equal(t, 86400, archive.ExpiresIn)

	var doc models.ArchiveDocument
	require.NoError(t, json.Unmarshal(uploaded, &doc))
	assert.Equal(t, source.sessionID, doc.SessionID)
	assert.Len(t, doc.Samples, 2)
	assert.Equal(t, 228.5, doc.Samples[1].RMS)
	store.AssertExpectations(t)
}

func TestHistoryArchiver_Errors(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		store := &MockArchiveStore{}
		_, err := NewHistoryArchiver(store, staticSource{}).Archive(context.Background())
		assert.True(t, errors.Is(err, ErrEmptyHistory))
		store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("upload failure", func(t *testing.T) {
		store := &MockArchiveStore{}
		store.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

		source := staticSource{samples: []models.Sample{{RMS: 1}}}
		_, err := NewHistoryArchiver(store, source).Archive(context.Background())
		assert.ErrorIs(t, err, assert.AnError)
		store.AssertNotCalled(t, "DownloadURL", mock.Anything, mock.Anything)
	})
}
