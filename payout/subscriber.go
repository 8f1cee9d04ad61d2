package payout

// Subscriber handles event subscriptions.
type Subscriber struct {
	done                chan struct{}
	drainStartedHandler func(DrainStarted)
	drainCycleHandler   func(DrainCycleCompleted)
	drainDoneHandler    func(DrainDone)
	drainErrorHandler   func(DrainError)
	committedHandler    func(PayoutCommitted)
	failedHandler       func(PayoutFailed)
	pollStartedHandler  func(PollingStarted)
	pollCycleHandler    func(PollingCycleCompleted)
	pollShutdownHandler func(PollingShutdown)
	pollErrorHandler    func(PollingError)
}

// OnDrainStarted sets the handler for DrainStarted events
func OnDrainStarted(fn func(DrainStarted)) func(*Subscriber) {
	return func(s *Subscriber) { s.drainStartedHandler = fn }
}

// OnDrainCycleCompleted sets the handler for DrainCycleCompleted events
func OnDrainCycleCompleted(fn func(DrainCycleCompleted)) func(*Subscriber) {
	return func(s *Subscriber) { s.drainCycleHandler = fn }
}

// OnDrainDone sets the handler for DrainDone events
func OnDrainDone(fn func(DrainDone)) func(*Subscriber) {
	return func(s *Subscriber) { s.drainDoneHandler = fn }
}

// OnDrainError sets the handler for DrainError events
func OnDrainError(fn func(DrainError)) func(*Subscriber) {
	return func(s *Subscriber) { s.drainErrorHandler = fn }
}

// OnPayoutCommitted sets the handler for PayoutCommitted events
func OnPayoutCommitted(fn func(PayoutCommitted)) func(*Subscriber) {
	return func(s *Subscriber) { s.committedHandler = fn }
}

// OnPayoutFailed sets the handler for PayoutFailed events
func OnPayoutFailed(fn func(PayoutFailed)) func(*Subscriber) {
	return func(s *Subscriber) { s.failedHandler = fn }
}

// OnPollingStarted sets the handler for PollingStarted events
func OnPollingStarted(fn func(PollingStarted)) func(*Subscriber) {
	return func(s *Subscriber) { s.pollStartedHandler = fn }
}

// OnPollingCycleCompleted sets the handler for PollingCycleCompleted events
func OnPollingCycleCompleted(fn func(PollingCycleCompleted)) func(*Subscriber) {
	return func(s *Subscriber) { s.pollCycleHandler = fn }
}

// OnPollingShutdown sets the handler for PollingShutdown events
func OnPollingShutdown(fn func(PollingShutdown)) func(*Subscriber) {
	return func(s *Subscriber) { s.pollShutdownHandler = fn }
}

// OnPollingError sets the handler for PollingError events
func OnPollingError(fn func(PollingError)) func(*Subscriber) {
	return func(s *Subscriber) { s.pollErrorHandler = fn }
}

// NewSubscriber creates a Subscriber with the given options and starts the dispatch loop.
// Returns a closer function that waits for all events to be processed.
//
//	closer := payout.NewSubscriber(events,
//	  payout.OnPayoutFailed(func(e PayoutFailed) { ... }),
//	)
//	defer closer()
func NewSubscriber(events <-chan Event, opts ...func(*Subscriber)) func() {
	s := &Subscriber{
		done:                make(chan struct{}),
		drainStartedHandler: func(DrainStarted) {},
		drainCycleHandler:   func(DrainCycleCompleted) {},
		drainDoneHandler:    func(DrainDone) {},
		drainErrorHandler:   func(DrainError) {},
		committedHandler:    func(PayoutCommitted) {},
		failedHandler:       func(PayoutFailed) {},
		pollStartedHandler:  func(PollingStarted) {},
		pollCycleHandler:    func(PollingCycleCompleted) {},
		pollShutdownHandler: func(PollingShutdown) {},
		pollErrorHandler:    func(PollingError) {},
	}

	for _, opt := range opts {
		opt(s)
	}

	go func() {
		defer close(s.done)
		for ev := range events {
			switch e := ev.(type) {
			case DrainStarted:
				s.drainStartedHandler(e)
			case DrainCycleCompleted:
				s.drainCycleHandler(e)
			case DrainDone:
				s.drainDoneHandler(e)
			case DrainError:
				s.drainErrorHandler(e)
			case PayoutCommitted:
				s.committedHandler(e)
			case PayoutFailed:
				s.failedHandler(e)
			case PollingStarted:
				s.pollStartedHandler(e)
			case PollingCycleCompleted:
				s.pollCycleHandler(e)
			case PollingShutdown:
				s.pollShutdownHandler(e)
			case PollingError:
				s.pollErrorHandler(e)
			}
		}
	}()

	return func() {
		<-s.done
	}
}
