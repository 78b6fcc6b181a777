package common

import (
	logging "github.com/sirupsen/logrus"
	"github.com/torusresearch/bijson"
)

// SessionKind distinguishes what a relay session is for.
type SessionKind string

const (
	SessionKindKeygen SessionKind = "keygen"
	SessionKindSign   SessionKind = "sign"
)

func (k SessionKind) Valid() bool {
	return k == SessionKindKeygen || k == SessionKindSign
}

// Stringify is a log helper, bytes and strings pass through, everything else
// goes through bijson.
func Stringify(i interface{}) string {
	bytArr, ok := i.([]byte)
	if ok {
		return string(bytArr)
	}
	str, ok := i.(string)
	if ok {
		return str
	}
	byt, err := bijson.Marshal(i)
	if err != nil {
		logging.WithError(err).Error("Could not bijsonmarshal")
	}
	return string(byt)
}
