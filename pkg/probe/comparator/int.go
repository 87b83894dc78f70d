package comparator

import (
	"fmt"
	"strconv"

	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/log"
)

// CompareInt compares integer operands given as strings for specific operation
// it checks for the >=, >, <=, <, ==, != operators
func (model Model) CompareInt(errorCode cerrors.ErrorType) error {

	obj := Integer{}
	obj.setValues(fmt.Sprintf("%v", model.a), fmt.Sprintf("%v", model.b))

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

// Integer contains operands for the integer comparator check
type Integer struct {
	a int
	b int
}

// setValues parses the string operands into integers
func (i *Integer) setValues(a, b string) {
	i.a, _ = strconv.Atoi(a)
	i.b, _ = strconv.Atoi(b)
}
