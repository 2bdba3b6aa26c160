package worker

import (
	"context"

	"creatorbook/utils"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SequenceWorker drives scheduled email delivery on a cron timer. Each tick
// runs one ProcessPending pass; ticks are serialized so a slow SMTP server
// cannot pile up overlapping passes.
type SequenceWorker struct {
	Sender    *utils.SequenceSender
	Schedule  string
	BatchSize int
	Logger    *logrus.Entry

	cron *cron.Cron
}

func NewSequenceWorker(sender *utils.SequenceSender, schedule string, batchSize int, logger *logrus.Entry) *SequenceWorker {
	return &SequenceWorker{
		Sender:    sender,
		Schedule:  schedule,
		BatchSize: batchSize,
		Logger:    logger,
	}
}

// Start registers the cron entry and blocks until ctx is cancelled
func (sw *SequenceWorker) Start(ctx context.Context) error {
	sw.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	if _, err := sw.cron.AddFunc(sw.Schedule, sw.runPass); err != nil {
		return err
	}

	sw.Logger.WithField("schedule", sw.Schedule).Info("Sequence worker started")
	sw.cron.Start()

	<-ctx.Done()
	sw.Logger.Info("Sequence worker shutting down...")

	// Let an in-flight pass finish before returning
	stopCtx := sw.cron.Stop()
	<-stopCtx.Done()
	return nil
}

func (sw *SequenceWorker) runPass() {
	result, err := sw.Sender.ProcessPending(sw.BatchSize)
	if err != nil {
		sw.Logger.WithError(err).Error("Sequence delivery pass failed")
		return
	}

	if result.Processed == 0 {
		return
	}
	sw.Logger.WithFields(logrus.Fields{
		"processed": result.Processed,
		"sent":      result.Sent,
		"failed":    result.Failed,
	}).Info("Sequence delivery pass completed")
}
