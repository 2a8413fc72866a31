package og

import (
	"errors"
	"strconv"
)

// ErrorClass groups broker error codes by how the engine reacts to them.
type ErrorClass uint8

const (
	ClassUnknown ErrorClass = iota
	ClassTransient
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Broker return codes, MT4 numbering.
const (
	CodeCommonError         = 2
	CodeServerBusy          = 4
	CodeNoConnection        = 6
	CodeTooFrequentRequests = 8
	CodeAccountDisabled     = 64
	CodeInvalidAccount      = 65
	CodeInvalidPrice        = 129
	CodeInvalidStops        = 130
	CodeInvalidTradeVolume  = 131
	CodeMarketClosed        = 132
	CodeTradeDisabled       = 133
	CodeNotEnoughMoney      = 134
	CodePriceChanged        = 135
	CodeOffQuotes           = 136
	CodeBrokerBusy          = 137
	CodeRequote             = 138
	CodeTooManyRequests     = 141
	CodeTradeContextBusy    = 146
	CodeTradeNotAllowed     = 4109
)

var classes = map[int]ErrorClass{
	CodeServerBusy:          ClassTransient,
	CodeNoConnection:        ClassTransient,
	CodeTooFrequentRequests: ClassTransient,
	CodeInvalidPrice:        ClassTransient,
	CodePriceChanged:        ClassTransient,
	CodeOffQuotes:           ClassTransient,
	CodeBrokerBusy:          ClassTransient,
	CodeRequote:             ClassTransient,
	CodeTooManyRequests:     ClassTransient,
	CodeTradeContextBusy:    ClassTransient,
	CodeAccountDisabled:     ClassFatal,
	CodeInvalidAccount:      ClassFatal,
	CodeInvalidStops:        ClassFatal,
	CodeInvalidTradeVolume:  ClassFatal,
	CodeMarketClosed:        ClassFatal,
	CodeTradeDisabled:       ClassFatal,
	CodeNotEnoughMoney:      ClassFatal,
	CodeTradeNotAllowed:     ClassFatal,
}

// Classify maps a broker return code to its class.
func Classify(code int) ErrorClass {
	if c, ok := classes[code]; ok {
		return c
	}
	return ClassUnknown
}

// BrokerError is a rejection reported by the broker.
type BrokerError struct {
	Op      string
	Code    int
	Message string
}

func (e *BrokerError) Error() string {
	msg := "broker " + e.Op + " rejected: code " + strconv.Itoa(e.Code)
	if e.Message != "" {
		msg += " (" + e.Message + ")"
	}
	return msg
}

// Class returns the classification of the error code.
func (e *BrokerError) Class() ErrorClass {
	return Classify(e.Code)
}

// ClassOf returns the class of a broker error anywhere in err's chain.
func ClassOf(err error) ErrorClass {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.Class()
	}
	return ClassUnknown
}
