package jrpc

import (
	"fmt"
	"sync"

	logging "github.com/sirupsen/logrus"
	"github.com/torusresearch/bijson"

	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/telemetry"
	"github.com/torusresearch/tss-relay-client/transport"
)

const sinkQueueDepth = 128

// Sink ships notifications in submission order over one worker. Each item's
// write error goes back to its submitter alone, a failed item never blocks
// or corrupts the ones behind it.
type Sink struct {
	queue     chan queuedNotification
	transport transport.Transport
	done      chan struct{}
	closeOnce sync.Once
}

type queuedNotification struct {
	Response chan error
	Data     []byte
}

func newSink(tr transport.Transport) *Sink {
	s := &Sink{
		queue:     make(chan queuedNotification, sinkQueueDepth),
		transport: tr,
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Sink) run() {
	for {
		select {
		case item := <-s.queue:
			err := s.transport.Send(string(item.Data))
			if err != nil {
				logging.WithError(err).Error("could not send notification")
				telemetry.IncrementCounter(common.TelemetryConstants.Transport.SendFailedCounter, common.TelemetryConstants.Transport.Prefix)
			} else {
				telemetry.IncrementCounter(common.TelemetryConstants.RPC.NotificationOutCounter, common.TelemetryConstants.RPC.Prefix)
			}
			item.Response <- err
		case <-s.done:
			return
		}
	}
}

// Notify enqueues one notification and reports that item's write result.
func (s *Sink) Notify(method string, params interface{}) error {
	req, err := NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("could not build %v notification: %w", method, err)
	}
	data, err := bijson.Marshal(req)
	if err != nil {
		return fmt.Errorf("could not marshal %v notification: %w", method, err)
	}

	resChan := make(chan error, 1)
	select {
	case s.queue <- queuedNotification{resChan, data}:
	case <-s.done:
		return transport.ErrClosed
	}
	select {
	case err := <-resChan:
		return err
	case <-s.done:
		return transport.ErrClosed
	}
}

func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
