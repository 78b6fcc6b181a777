package telemetry

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	logging "github.com/sirupsen/logrus"
)

// counters holds the reference to the registered counters
var counters sync.Map

var validMetricName = regexp.MustCompile(`^[a-zA-Z0-9_]`)

// CounterMetadata is used during registration as middleware between the
// client components and prometheus
type CounterMetadata struct {
	Prefix string `json:"prefix"`
	Name   string `json:"name"`
	Help   string `json:"help"`
}

// CreateAndRegister creates the given metrics and registers them, collecting
// per-metric failures into one error
func CreateAndRegister(countersMetadata []CounterMetadata) error {
	var errWrapper error

	for i := range countersMetadata {
		name := countersMetadata[i].Prefix + countersMetadata[i].Name

		if !validMetricName.MatchString(countersMetadata[i].Name) {
			errWrapper = appendErr(errWrapper, countersMetadata[i].Name, errors.New("invalid name"))
			continue
		}

		if _, ok := counters.Load(name); ok {
			logging.WithField("counter", name).Error("could not register, counter already exists")
			errWrapper = appendErr(errWrapper, countersMetadata[i].Name, errors.New("it already exists"))
			continue
		}

		helpText := countersMetadata[i].Help
		if helpText == "" {
			helpText = "number of " + countersMetadata[i].Name
		}

		counter := NewCounter(name, helpText)
		if err := Register(counter); err != nil {
			logging.WithField("counter", name).WithError(err).Error("could not register")
			errWrapper = appendErr(errWrapper, countersMetadata[i].Name, err)
			continue
		}

		counters.Store(name, counter)
	}

	return errWrapper
}

func appendErr(wrapper error, name string, err error) error {
	if wrapper == nil {
		return fmt.Errorf("failed to create metric for %v reason: %w", name, err)
	}
	return fmt.Errorf("%v... failed to create metric for %v reason: %w", wrapper, name, err)
}

// IncrementCounter increments the counter for the specified counter name,
// creating it on first use
func IncrementCounter(metricName, prefix string) {
	go incrementCounter(metricName, prefix)
}

func incrementCounter(metricName, prefix string) {
	name := prefix + metricName

	if _, ok := counters.Load(name); !ok {
		logging.WithField("counter", name).Debug("could not find the counter. Creating ... ")
		err := CreateAndRegister([]CounterMetadata{{
			Prefix: prefix,
			Name:   metricName,
		}})
		if err != nil {
			logging.WithField("counter", name).WithError(err).Errorln("could not create the metric")
		}
	}

	value, _ := counters.Load(name)
	counter, ok := value.(*Counter)
	if !ok {
		logging.WithField("counter", name).Errorln("error while casting interface{} to counter")
	} else {
		counter.Inc()
	}
}
