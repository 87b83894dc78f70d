package comparator

import (
	"fmt"

	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/log"
)

// CompareFloat compares floating numbers for specific operation
// it checks for the >=, >, <=, <, ==, != operators
func (model Model) CompareFloat(errorCode cerrors.ErrorType) error {

	obj := Float{}
	obj.setValues(model.a, model.b)

	if model.rc == 1 {
		log.Infof("[Comparator]: {Actual value: %v}, {Expected value: %v}, {Operator: %v}", obj.a, obj.b, model.operator)
	}

	switch model.operator {
	case ">=":
		if !(obj.a >= obj.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.metricName, Reason: fmt.Sprintf("Actual value: %v is not greater than or equal to the Expected value: %v", obj.a, obj.b)}
		}
	case "<=":
		if !(obj.a <= obj.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.metricName, Reason: fmt.Sprintf("Actual value: %v is not lesser than or equal to the Expected value: %v", obj.a, obj.b)}
		}
	case ">":
		if !(obj.a > obj.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.metricName, Reason: fmt.Sprintf("Actual value: %v is not greater than the Expected value: %v", obj.a, obj.b)}
		}
	case "<":
		if !(obj.a < obj.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.metricName, Reason: fmt.Sprintf("Actual value: %v is not lesser than the Expected value: %v", obj.a, obj.b)}
		}
	case "==":
		if !(obj.a == obj.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.metricName, Reason: fmt.Sprintf("Actual value: %v is not equal to the Expected value: %v", obj.a, obj.b)}
		}
	case "!=":
		if !(obj.a != obj.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.metricName, Reason: fmt.Sprintf("Actual value: %v should not match the Expected value: %v", obj.a, obj.b)}
		}
	default:
		return cerrors.Error{ErrorCode: errorCode, Target: model.metricName, Reason: fmt.Sprintf("criteria '%s' not supported in the comparator", model.operator)}
	}
	return nil
}

// Float contains operands for the float comparator check
type Float struct {
	a float64
	b float64
}

// setValues coerces the generic operands into floats
func (f *Float) setValues(a, b interface{}) {
	f.a = toFloat(a)
	f.b = toFloat(b)
}

func toFloat(v interface{}) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case float32:
		return float64(value)
	case int:
		return float64(value)
	case int64:
		return float64(value)
	}
	return 0
}
