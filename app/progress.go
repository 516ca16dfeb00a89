package app

import (
	"context"

	"github.com/kilianp07/bessim/core/optimizer"
	"github.com/kilianp07/bessim/infra/logger"
)

// progressSteps is the number of progress lines logged per search.
const progressSteps = 10

// logProgress logs search progress in tenths until sub is closed or ctx is
// cancelled.
func logProgress(ctx context.Context, sub <-chan optimizer.Progress, log logger.Logger) {
	next := 1
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if ev.Total == 0 || ev.Done*progressSteps < next*ev.Total {
				continue
			}
			for ev.Done*progressSteps >= next*ev.Total {
				next++
			}
			log.Infof("search %s: %d/%d candidates evaluated", ev.SearchID, ev.Done, ev.Total)
		}
	}
}
