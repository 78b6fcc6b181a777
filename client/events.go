package client

import (
	"context"
	"errors"

	logging "github.com/sirupsen/logrus"
	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/eventbus"
	"github.com/torusresearch/tss-relay-client/jrpc"
	"github.com/torusresearch/tss-relay-client/telemetry"
)

// OnSessionCreated invokes cb for every session announced to this client.
// The returned function stops the subscription.
func (c *Client) OnSessionCreated(cb func(SessionCreatedEvent)) func() {
	return watch(c, EventSessionCreated, common.TelemetryConstants.Session.SessionCreatedCounter, cb)
}

// OnSessionReady invokes cb once every declared party of a session signed
// up. The returned function stops the subscription.
func (c *Client) OnSessionReady(cb func(SessionReadyEvent)) func() {
	return watch(c, EventSessionReady, common.TelemetryConstants.Session.SessionReadyCounter, cb)
}

// watch pumps one typed event stream into a callback. Undecodable events
// are skipped, they only concern this subscriber. The loop ends when the
// stream or the client closes.
func watch[T any](c *Client, method, counter string, cb func(T)) func() {
	stream := jrpc.Subscribe[T](c.rpc, method)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			ev, err := stream.Next(ctx)
			if err != nil {
				var lagErr *eventbus.LagError
				var decodeErr *jrpc.DecodeError
				switch {
				case errors.As(err, &lagErr):
					logging.WithField("missed", lagErr.Missed).Warningf("%v stream lagged", method)
					continue
				case errors.Is(err, jrpc.ErrNoParams), errors.As(err, &decodeErr):
					logging.Debugf("skipping undecodable %v event: %v", method, err)
					continue
				default:
					return
				}
			}
			telemetry.IncrementCounter(counter, common.TelemetryConstants.Session.Prefix)
			cb(ev)
		}
	}()
	return func() {
		cancel()
		stream.Cancel()
	}
}
