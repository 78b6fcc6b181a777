package telemetry

import (
	"regexp"
	"sync"

	logging "github.com/sirupsen/logrus"
)

var liveGauges = &gaugeSyncMap{}

var gaugeNameFilter = regexp.MustCompile("[^a-zA-Z0-9]+")

type gaugeSyncMap struct {
	sync.Map
}

func (m *gaugeSyncMap) GetOrSet(gaugeName string, gauge *Gauge) (res *Gauge, found bool) {
	resInter, found := m.Map.LoadOrStore(gaugeName, gauge)
	res, _ = resInter.(*Gauge)
	return
}

// IncGauge bumps the named gauge, creating and registering it on first use.
func IncGauge(name string) {
	go func() {
		getOrRegisterGauge(name).Inc()
	}()
}

// DecGauge drops the named gauge, creating and registering it on first use.
func DecGauge(name string) {
	go func() {
		getOrRegisterGauge(name).Dec()
	}()
}

func getOrRegisterGauge(name string) *Gauge {
	gaugeName := gaugeNameFilter.ReplaceAllString(name, "")
	gauge, found := liveGauges.GetOrSet(gaugeName, NewGauge("gauge_"+gaugeName, "number of "+gaugeName))
	if !found {
		if err := Register(gauge); err != nil {
			logging.WithField("gauge", gaugeName).WithError(err).Error("error while registering the gauge")
		}
	}
	return gauge
}
