package billing

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultSweepInterval = 10 * time.Minute
	defaultSweepLimit    = 200
)

// Sweeper periodically confirms referral bonuses whose cooling window has
// elapsed.
type Sweeper struct {
	db       *gorm.DB
	interval time.Duration
	limit    int
	done     chan struct{}
}

// NewSweeper constructs a referral confirmation sweeper. A non-positive
// interval falls back to the default.
func NewSweeper(conn *gorm.DB, interval time.Duration) *Sweeper {
	if conn == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		db:       conn,
		interval: interval,
		limit:    defaultSweepLimit,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("referral sweeper started (interval=%s)", s.interval)
}

// Wait blocks until the sweep loop has exited after context cancellation.
func (s *Sweeper) Wait() {
	if s == nil {
		return
	}
	<-s.done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)
	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		s.sweep(ctx)
		if ctx.Err() != nil {
			return
		}
		timer.Reset(s.interval)
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	confirmed, errSweep := ConfirmDueReferralBonuses(ctx, s.db, time.Now().UTC(), s.limit)
	if errSweep != nil {
		log.WithError(errSweep).Warn("referral sweeper: sweep failed")
		return
	}
	if confirmed > 0 {
		log.Infof("referral sweeper: confirmed %d bonus(es)", confirmed)
	}
}
