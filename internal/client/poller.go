package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ragstack/corpora/internal/models"
	"github.com/ragstack/corpora/internal/pipeline"
)

// DefaultPollInterval is how often a watch re-fetches document status.
const DefaultPollInterval = 2 * time.Second

// Poller periodically fetches a document's pipeline status and pushes
// snapshots to a subscriber until the run reaches a terminal state or the
// subscription is stopped.
type Poller struct {
	api      *Client
	interval time.Duration
	log      *zap.Logger
}

func NewPoller(api *Client, interval time.Duration, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{api: api, interval: interval, log: log}
}

// Watch starts polling a document. It returns a channel of status snapshots
// and a stop function. The channel closes when the document reaches
// "completed" or "failed", when ctx is canceled, or when stop is called.
// After stop, in-flight fetches are discarded; nothing more is delivered.
func (p *Poller) Watch(ctx context.Context, documentID string) (<-chan models.DocumentStatus, func()) {
	out := make(chan models.DocumentStatus)
	stopped := make(chan struct{})

	var once sync.Once
	stop := func() { once.Do(func() { close(stopped) }) }

	go func() {
		defer close(out)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			st, err := p.api.Status(ctx, documentID)
			if err != nil {
				p.log.Warn("status poll failed",
					zap.String("document_id", documentID), zap.Error(err))
			} else {
				// Deliver unless the subscription ended while we were
				// fetching; a stopped watch never receives late results.
				select {
				case out <- *st:
				case <-stopped:
					return
				case <-ctx.Done():
					return
				}
				if terminal(st.Document.Status) {
					return
				}
			}

			select {
			case <-ticker.C:
			case <-stopped:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, stop
}

// WaitForCompletion polls until the document terminates, returning the final
// status snapshot.
func (p *Poller) WaitForCompletion(ctx context.Context, documentID string) (*models.DocumentStatus, error) {
	updates, stop := p.Watch(ctx, documentID)
	defer stop()

	var last *models.DocumentStatus
	for st := range updates {
		st := st
		last = &st
	}
	if last == nil || !terminal(last.Document.Status) {
		return last, ctx.Err()
	}
	return last, nil
}

func terminal(status string) bool {
	return status == pipeline.StatusCompleted || status == pipeline.StatusFailed
}
