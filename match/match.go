// Package match runs one face match attempt: it scans the enrolled
// profiles against live camera frames and delivers the first account that
// matches and passes liveness.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kardianos/faceunlock/audit"
	"github.com/kardianos/faceunlock/engine"
	"github.com/kardianos/faceunlock/fuclock"
	"github.com/kardianos/faceunlock/fustore"
	"github.com/kardianos/faceunlock/pipe"
)

// Frames needed in a row to accept or abandon a profile.
const (
	MaxSuccess = 3
	MaxFail    = 3
)

const (
	DefaultFrameInterval = 50 * time.Millisecond
	DefaultNoFaceBackoff = 200 * time.Millisecond
)

// SentinelUser and SentinelPassword are delivered when no profile matched
// so the logon UI leaves its waiting state.
const (
	SentinelUser     = "null"
	SentinelPassword = "null"
)

// Outcome is the result of a completed attempt.
type Outcome int

const (
	// Failed means the attempt ended with an error.
	Failed Outcome = iota
	// Delivered means a credential was sent to the host.
	Delivered
	// Mismatch means every profile was tried without a match.
	Mismatch
	// Spoof means a face matched but failed liveness.
	Spoof
)

func (o Outcome) String() string {
	switch o {
	case Failed:
		return "failed"
	case Delivered:
		return "delivered"
	case Mismatch:
		return "mismatch"
	case Spoof:
		return "spoof"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ProfileSource lists the profiles eligible for matching, in store order.
type ProfileSource interface {
	Active() ([]fustore.Profile, error)
}

// AuditSink records attempt results.
type AuditSink interface {
	Append(ctx context.Context, e audit.Entry) (int64, error)
}

// Sender delivers the credential message to the host.
type Sender interface {
	Send(ctx context.Context, msg pipe.Message) error
}

// RetryCounter counts failed attempts since the last lock.
type RetryCounter interface {
	RecordFailure()
}

// Request describes one attempt.
type Request struct {
	AttemptID         string
	CameraIndex       int
	LivenessEnabled   bool
	LivenessThreshold float64
}

// Session holds the collaborators of a match. Camera, Recognizer,
// Profiles, Sender and Devices are required.
type Session struct {
	Camera     engine.Camera
	Recognizer engine.Recognizer
	Liveness   engine.Liveness
	Profiles   ProfileSource
	Audit      AuditSink
	Sender     Sender
	Counter    RetryCounter
	Devices    *engine.Devices
	Clock      fuclock.Clock
	Logger     *slog.Logger

	// Zero selects the default; a negative value disables the pause.
	FrameInterval time.Duration
	NoFaceBackoff time.Duration
}

// Run performs one attempt. The camera is opened and closed within Run and
// the devices are held throughout. A non-nil error always comes with Failed.
func (s *Session) Run(ctx context.Context, req Request) (Outcome, error) {
	logger := s.logger().With("attempt", req.AttemptID)

	release, err := s.Devices.Acquire()
	if err != nil {
		return Failed, err
	}
	defer release()

	profiles, err := s.Profiles.Active()
	if err != nil {
		return Failed, fmt.Errorf("load profiles: %w", err)
	}

	if err := s.Camera.Open(ctx, req.CameraIndex); err != nil {
		return Failed, fmt.Errorf("open camera %d: %w", req.CameraIndex, err)
	}
	defer func() {
		if err := s.Camera.Close(); err != nil {
			logger.Warn("camera close failed", "error", err)
		}
	}()

	for _, p := range profiles {
		frame, matched, err := s.matchProfile(ctx, p)
		if err != nil {
			return Failed, err
		}
		if !matched {
			logger.Debug("profile abandoned", "profile", p.ID)
			continue
		}
		logger.Info("face matched", "profile", p.ID, "alias", p.Alias)
		return s.finish(ctx, logger, req, p, frame)
	}

	logger.Info("no profile matched", "profiles", len(profiles))
	if err := s.Sender.Send(ctx, pipe.Credential(SentinelUser, SentinelPassword)); err != nil {
		logger.Warn("mismatch notice not delivered", "error", err)
	}
	s.record(ctx, logger, audit.Entry{
		AttemptID:  req.AttemptID,
		ProfileID:  audit.NoProfile,
		FailReason: audit.ReasonMismatch,
	})
	s.failure()
	return Mismatch, nil
}

// finish runs liveness on the matching frame and delivers the credential.
func (s *Session) finish(ctx context.Context, logger *slog.Logger, req Request, p fustore.Profile, frame engine.Frame) (Outcome, error) {
	confidence := 1.0
	if req.LivenessEnabled {
		if s.Liveness == nil {
			return Failed, errors.New("liveness enabled without a detector")
		}
		img, err := engine.EncodeJPEG(frame)
		if err != nil {
			return Failed, err
		}
		live, conf, err := s.Liveness.Detect(ctx, img)
		if err != nil {
			return Failed, fmt.Errorf("liveness: %w", err)
		}
		if !live || conf <= req.LivenessThreshold {
			logger.Warn("liveness check failed", "profile", p.ID, "live", live, "confidence", conf, "threshold", req.LivenessThreshold)
			s.record(ctx, logger, audit.Entry{
				AttemptID:  req.AttemptID,
				ProfileID:  int64(p.ID),
				Confidence: audit.Confidence(conf),
				FailReason: audit.ReasonSpoof,
			})
			s.failure()
			return Spoof, nil
		}
		confidence = conf
	}

	if err := s.Sender.Send(ctx, pipe.Credential(p.LogonName(), p.Password)); err != nil {
		return Failed, fmt.Errorf("deliver credential: %w", err)
	}
	s.record(ctx, logger, audit.Entry{
		AttemptID:  req.AttemptID,
		ProfileID:  int64(p.ID),
		Success:    true,
		Confidence: audit.Confidence(confidence),
	})
	return Delivered, nil
}

// matchProfile reads frames until MaxSuccess consecutive matches or MaxFail
// mismatches. It returns the last matching frame.
func (s *Session) matchProfile(ctx context.Context, p fustore.Profile) (engine.Frame, bool, error) {
	var success, fail int
	for {
		frame, err := s.Camera.Read(ctx)
		if err != nil {
			return engine.Frame{}, false, fmt.Errorf("capture frame: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return engine.Frame{}, false, err
		}

		feature, err := s.Recognizer.ExtractFeature(ctx, frame, p.DetectThreshold)
		if errors.Is(err, engine.ErrNoFace) {
			if err := s.sleep(ctx, s.NoFaceBackoff, DefaultNoFaceBackoff); err != nil {
				return engine.Frame{}, false, err
			}
			continue
		}
		if err != nil {
			return engine.Frame{}, false, fmt.Errorf("extract feature: %w", err)
		}

		score := s.Recognizer.Match(feature, p.Feature)
		if score*100 >= p.MatchThreshold {
			success++
			if success >= MaxSuccess {
				return frame, true, nil
			}
		} else {
			success = 0
			fail++
			if fail >= MaxFail {
				return engine.Frame{}, false, nil
			}
		}

		if err := s.sleep(ctx, s.FrameInterval, DefaultFrameInterval); err != nil {
			return engine.Frame{}, false, err
		}
	}
}

func (s *Session) sleep(ctx context.Context, d, def time.Duration) error {
	if d == 0 {
		d = def
	}
	clock := s.Clock
	if clock == nil {
		clock = fuclock.Real()
	}
	if !fuclock.Sleep(clock, d, ctx.Done()) {
		return ctx.Err()
	}
	return nil
}

func (s *Session) record(ctx context.Context, logger *slog.Logger, e audit.Entry) {
	if s.Audit == nil {
		return
	}
	if _, err := s.Audit.Append(context.WithoutCancel(ctx), e); err != nil {
		logger.Warn("audit entry not written", "error", err)
	}
}

func (s *Session) failure() {
	if s.Counter != nil {
		s.Counter.RecordFailure()
	}
}

func (s *Session) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}
