// Package notify delivers Telegram digests for applied reschedules. It is
// a best-effort sink: the sweep logs a failed delivery and moves on, a
// committed reschedule is never rolled back over a lost message.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"timeplan/internal/plan"
	logx "timeplan/pkg/logx"
)

// maxDeltaLines bounds the digest body; the rest is summarized.
const maxDeltaLines = 10

type Config struct {
	Enabled    bool
	Token      string
	ChatID     int64
	RatePerSec int
}

// sender is the slice of *tele.Bot the service uses, kept narrow for tests.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// newBot is swapped out in tests.
var newBot = func(token string) (sender, error) {
	b, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return b, nil
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	bot     sender
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log}
	s.applyLocked(cfg)

	if cfg.Enabled {
		if strings.TrimSpace(cfg.Token) == "" {
			return nil, errors.New("notify token is empty")
		}
		b, err := newBot(cfg.Token)
		if err != nil {
			return nil, err
		}
		s.bot = b
	}
	return s, nil
}

// Apply hot-reloads delivery settings. Flipping enabled on constructs the
// bot if the service started disabled; a bad token logs a warning and
// leaves notifications off.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(cfg.Token) == "" {
		cfg.Token = s.cfg.Token
	}
	s.applyLocked(cfg)

	if !cfg.Enabled || s.bot != nil {
		return
	}
	if strings.TrimSpace(cfg.Token) == "" {
		s.log.Warn("notify enabled without a token, notifications stay off")
		return
	}
	b, err := newBot(cfg.Token)
	if err != nil {
		s.log.Warn("notify enable failed, notifications stay off", logx.Err(err))
		return
	}
	s.bot = b
	s.log.Info("notifications enabled")
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// RescheduleApplied sends one digest message for an applied reschedule.
func (s *Service) RescheduleApplied(ctx context.Context, res plan.Result) error {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	chatID := s.cfg.ChatID
	bot := s.bot
	limiter := s.limiter
	s.mu.Unlock()

	if !enabled || bot == nil {
		return nil
	}
	if chatID == 0 {
		return errors.New("notify chat_id is not set")
	}
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := bot.Send(tele.ChatID(chatID), formatDigest(res))
	if err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	s.log.Debug("digest sent", logx.String("plan", res.PlanID), logx.Int("deltas", len(res.Deltas)))
	return nil
}

// formatDigest renders a compact plain-text digest of one reschedule.
func formatDigest(res plan.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan %s rescheduled\n", res.PlanID)
	if res.Reason.Message != "" {
		b.WriteString(res.Reason.Message)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "New end date: %s (+%d day(s))\n", res.NewEndDate, res.DaysExtended)

	if len(res.Deltas) == 0 {
		b.WriteString("No tasks moved.")
		return b.String()
	}
	b.WriteString("Moved:\n")
	for i, d := range res.Deltas {
		if i == maxDeltaLines {
			fmt.Fprintf(&b, "  ... and %d more", len(res.Deltas)-maxDeltaLines)
			return b.String()
		}
		fmt.Fprintf(&b, "  %s: %s -> %s %s-%s\n", d.TaskID, d.OldDate, d.NewDate, d.NewStart, d.NewEnd)
	}
	return strings.TrimRight(b.String(), "\n")
}
