package classify

import (
	"context"
	"sync"

	"github.com/mizuno-h/cardwatch/internal/model"
)

// DefaultWorkers is the fan-out width for ClassifyAll.
const DefaultWorkers = 4

// ClassifyAll classifies a batch of messages with a small bounded worker
// pool. Results preserve input order. This path is for callers outside the
// deadline-checked batch loop, which stays sequential so elapsed-time
// accounting remains exact.
func ClassifyAll(ctx context.Context, c *Classifier, msgs []*model.InboundMessage, workers int) []model.Result {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(msgs) {
		workers = len(msgs)
	}

	results := make([]model.Result, len(msgs))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = c.Classify(msgs[i])
			}
		}()
	}

	for i := range msgs {
		select {
		case <-ctx.Done():
			close(indexes)
			wg.Wait()
			return results
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()
	return results
}
