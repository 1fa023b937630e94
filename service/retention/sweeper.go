// Package retention purges messages that fell out of their room's retention
// window, archiving them first when an archive is configured.
package retention

import (
	"context"
	"time"

	"GreenChat/logger"
	"GreenChat/module/chat/model"
	"GreenChat/service/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Archiver keeps a copy of messages before they are purged.
type Archiver interface {
	Archive(ctx context.Context, msgs []*model.Message) error
}

type Conf struct {
	// Spec is a cron spec in UTC, e.g. "@every 1h" or "0 3 * * *".
	Spec    string           `mapstructure:"spec"`
	Batch   int              `mapstructure:"batch"`
	Timeout time.Duration    `mapstructure:"timeout"`
	Clock   func() time.Time `mapstructure:"-"`
}

func (c *Conf) norm() {
	if c.Spec == "" {
		c.Spec = "@every 1h"
	}
	if c.Batch <= 0 {
		c.Batch = 500
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

type Report struct {
	Rooms    int
	Archived int64
	Purged   int64
	Failed   int
}

type Sweeper struct {
	store    store.Store
	archiver Archiver
	conf     Conf
	log      *zap.Logger
}

// NewSweeper builds a sweeper; archiver may be nil to purge without a copy.
func NewSweeper(st store.Store, archiver Archiver, conf Conf) *Sweeper {
	conf.norm()
	return &Sweeper{store: st, archiver: archiver, conf: conf, log: logger.Named("retention")}
}

// RunOnce sweeps every room that has a settings row. A room whose archive
// write fails keeps its messages and is counted in Failed.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	var rep Report
	all, err := s.store.ListSettings(ctx)
	if err != nil {
		return rep, err
	}
	now := s.conf.Clock()
	for _, st := range all {
		cutoff := st.RetentionCutoff(now)
		if cutoff.IsZero() {
			continue
		}
		rep.Rooms++
		archived, purged, err := s.sweepRoom(ctx, st.RoomID, cutoff)
		rep.Archived += archived
		rep.Purged += purged
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			rep.Failed++
			s.log.Warn("room sweep failed", zap.Int64("room_id", st.RoomID), zap.Time("cutoff", cutoff), zap.Error(err))
			continue
		}
		if purged > 0 {
			s.log.Info("room swept", zap.Int64("room_id", st.RoomID), zap.Time("cutoff", cutoff),
				zap.Int64("archived", archived), zap.Int64("purged", purged))
		}
	}
	return rep, nil
}

func (s *Sweeper) sweepRoom(ctx context.Context, roomID int64, cutoff time.Time) (archived, purged int64, err error) {
	for {
		batch, err := s.store.ListBefore(ctx, roomID, cutoff, s.conf.Batch)
		if err != nil {
			return archived, purged, err
		}
		if len(batch) == 0 {
			return archived, purged, nil
		}
		if s.archiver != nil {
			if err := s.archiver.Archive(ctx, batch); err != nil {
				return archived, purged, err
			}
			archived += int64(len(batch))
		}
		ids := make([]int64, len(batch))
		for i, m := range batch {
			ids[i] = m.ID
		}
		n, err := s.store.PurgeMessages(ctx, ids)
		if err != nil {
			return archived, purged, err
		}
		purged += n
		if len(batch) < s.conf.Batch {
			return archived, purged, nil
		}
	}
}

// Run sweeps on the cron schedule until ctx is done. An overrunning sweep
// makes the next tick skip.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{s.log.Sugar()}),
		cron.WithChain(cron.Recover(cronLogger{s.log.Sugar()}), cron.SkipIfStillRunning(cronLogger{s.log.Sugar()})),
	)
	_, err := c.AddFunc(s.conf.Spec, func() {
		sctx, cancel := context.WithTimeout(ctx, s.conf.Timeout)
		defer cancel()
		rep, err := s.RunOnce(sctx)
		if err != nil {
			s.log.Error("sweep failed", zap.Error(err))
			return
		}
		s.log.Debug("sweep done", zap.Int("rooms", rep.Rooms), zap.Int64("purged", rep.Purged), zap.Int("failed", rep.Failed))
	})
	if err != nil {
		return err
	}
	s.log.Info("retention schedule started", zap.String("spec", s.conf.Spec))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.s.Errorw(msg, append(kv, "error", err)...)
}
