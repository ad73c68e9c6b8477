package pipeline

import "time"

// Debounce collapses bursts of paths into a single signal emitted once no
// new path arrived for delay. The output channel is closed after inCh closes,
// flushing a pending signal first.
func Debounce(inCh <-chan string, delay time.Duration) <-chan struct{} {
	outCh := make(chan struct{}, 1)

	go func() {
		defer close(outCh)

		timer := time.NewTimer(delay)
		timer.Stop()
		pending := false

		emit := func() {
			pending = false
			select {
			case outCh <- struct{}{}:
			default:
			}
		}

		for {
			select {
			case _, ok := <-inCh:
				if !ok {
					timer.Stop()
					if pending {
						emit()
					}
					return
				}
				timer.Reset(delay)
				pending = true

			case <-timer.C:
				if pending {
					emit()
				}
			}
		}
	}()

	return outCh
}
