package feedback

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/feedbackhq/feedbackhq/internal/access"
	"github.com/feedbackhq/feedbackhq/internal/store"
)

// maxVoiceBytes caps voice uploads at 10 MiB.
const maxVoiceBytes = 10 << 20

var (
	screenshotExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}
	recordingExts  = map[string]bool{".webm": true, ".mp4": true}
	voiceExts      = map[string]bool{".mp3": true, ".wav": true, ".ogg": true}
)

// UploadAttachment stores a screenshot or screen recording for a feedback
// item and records its URL on the matching field. Creator-only; the kind
// is inferred from the file extension.
func (s *Service) UploadAttachment(ctx context.Context, feedbackID uint, caller *store.User, filename string, r io.Reader) (*store.Feedback, error) {
	fb, err := s.db.GetFeedback(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	if err := access.CanMutate(fb, caller.ID); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case screenshotExts[ext]:
		u, err := s.saveMedia(ext, r, 0)
		if err != nil {
			return nil, err
		}
		fb.ScreenshotURL = u
	case recordingExts[ext]:
		u, err := s.saveMedia(ext, r, 0)
		if err != nil {
			return nil, err
		}
		fb.RecordingURL = u
	default:
		return nil, ErrUnsupportedMedia
	}

	if err := s.db.UpdateFeedback(ctx, fb); err != nil {
		return nil, err
	}
	return fb, nil
}

// UploadVoice stores a voice note, capped at 10 MiB. Creator-only.
func (s *Service) UploadVoice(ctx context.Context, feedbackID uint, caller *store.User, filename string, r io.Reader) (*store.Feedback, error) {
	fb, err := s.db.GetFeedback(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	if err := access.CanMutate(fb, caller.ID); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !voiceExts[ext] {
		return nil, ErrUnsupportedMedia
	}
	u, err := s.saveMedia(ext, r, maxVoiceBytes)
	if err != nil {
		return nil, err
	}
	fb.VoiceRecordingURL = u

	if err := s.db.UpdateFeedback(ctx, fb); err != nil {
		return nil, err
	}
	return fb, nil
}

// saveMedia writes the payload under <mediaDir>/feedback with a fresh UUID
// name and returns the stable relative URL path. maxBytes == 0 means
// unlimited; exceeding the cap removes the partial file and returns
// ErrTooLarge.
func (s *Service) saveMedia(ext string, r io.Reader, maxBytes int64) (string, error) {
	dir := filepath.Join(s.mediaDir, "feedback")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := uuid.NewString() + ext
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && maxBytes > 0 && n > maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}

	return fmt.Sprintf("media/feedback/%s", name), nil
}
