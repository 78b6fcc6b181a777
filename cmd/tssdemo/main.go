package main

import (
	"context"
	"flag"
	"sync"
	"time"

	logging "github.com/sirupsen/logrus"
	"github.com/torusresearch/bijson"
	"github.com/torusresearch/tss-relay-client/client"
	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/config"
	"github.com/torusresearch/tss-relay-client/relaytest"
	"github.com/torusresearch/tss-relay-client/simengine"
	"github.com/torusresearch/tss-relay-client/telemetry"
	"github.com/torusresearch/tss-relay-client/version"
)

// tssdemo runs a whole signing ceremony in one process: an in-memory relay,
// n parties with the toy engine, one keygen session and one signing session.
func main() {
	parties := flag.Int("parties", 3, "number of parties in the demo group")
	threshold := flag.Int("threshold", 2, "signing threshold, must be below parties")
	message := flag.String("message", "hello threshold world", "message to sign")
	conf := config.LoadConfig("")
	logging.WithField("version", version.ClientVersion).Info("tssdemo starting")

	if *parties < 2 || *threshold < 1 || *threshold >= *parties {
		logging.WithFields(logging.Fields{
			"parties":   *parties,
			"threshold": *threshold,
		}).Fatal("need at least two parties and 1 <= threshold < parties")
	}

	if conf.TelemetryEnabled {
		go func() {
			if err := telemetry.Serve(conf.TelemetryAddr); err != nil {
				logging.WithError(err).Error("telemetry server stopped")
			}
		}()
	}

	relay := relaytest.New()
	defer relay.Close()

	clients := make([]*client.Client, *parties)
	for i := range clients {
		clients[i] = client.NewWithTransport(*conf, simengine.New(), relay.Connect())
		defer clients[i].Close()
	}

	g, err := clients[0].GroupCreate(uint16(*parties), uint16(*threshold))
	if err != nil {
		logging.WithError(err).Fatal("group_create failed")
	}
	for _, c := range clients[1:] {
		if _, err := c.GroupJoin(g.ID); err != nil {
			logging.WithError(err).Fatal("group_join failed")
		}
	}
	logging.WithFields(logging.Fields{
		"groupID": g.ID,
		"parties": *parties,
	}).Info("group assembled")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	results := runKeygen(ctx, clients, g.ID, uint16(*parties), uint16(*threshold))
	logging.WithField("publicKey", results[0].PublicKey).Info("keygen complete")

	sig := runSign(ctx, clients, g.ID, *message)
	logging.WithFields(logging.Fields{
		"message": *message,
		"r":       sig.R,
		"s":       sig.S,
	}).Info("message signed")
}

func runKeygen(ctx context.Context, clients []*client.Client, groupID string, parties, threshold uint16) []*client.KeygenResult {
	s, err := clients[0].SessionCreate(groupID, common.SessionKindKeygen, nil)
	if err != nil {
		logging.WithError(err).Fatal("session_create failed")
	}
	seats := signup(clients, groupID, s.ID)

	results := make([]*client.KeygenResult, len(clients))
	errs := make([]error, len(clients))
	var wg sync.WaitGroup
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = clients[i].Keygen(ctx, groupID, s.ID, seats[i], parties, threshold)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			logging.WithError(err).WithField("party", seats[i]).Fatal("keygen failed")
		}
	}
	return results
}

// runSign opens a signing session and has every party sign with the share
// cached during keygen.
func runSign(ctx context.Context, clients []*client.Client, groupID string, message string) *client.Signature {
	value, err := bijson.Marshal(message)
	if err != nil {
		logging.WithError(err).Fatal("could not encode message")
	}
	s, err := clients[0].SessionCreate(groupID, common.SessionKindSign, value)
	if err != nil {
		logging.WithError(err).Fatal("session_create failed")
	}
	seats := signup(clients, groupID, s.ID)
	signerSet := make([]uint16, len(clients))
	for i := range signerSet {
		signerSet[i] = uint16(i + 1)
	}

	sigs := make([]*client.Signature, len(clients))
	errs := make([]error, len(clients))
	var wg sync.WaitGroup
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sigs[i], errs[i] = clients[i].Sign(ctx, groupID, s.ID, seats[i], signerSet, nil, []byte(message))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			logging.WithError(err).WithField("party", seats[i]).Fatal("signing failed")
		}
	}
	return sigs[0]
}

func signup(clients []*client.Client, groupID, sessionID string) []uint16 {
	seats := make([]uint16, len(clients))
	for i, c := range clients {
		n, err := c.SessionSignup(groupID, sessionID)
		if err != nil {
			logging.WithError(err).Fatal("session_signup failed")
		}
		seats[i] = n
	}
	return seats
}
