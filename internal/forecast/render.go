package forecast

import (
	"errors"
	"fmt"

	"btc-direction/internal/common"
	"btc-direction/internal/features"
	"btc-direction/internal/history"
	"btc-direction/internal/ml"
)

// Render formats a successful forecast, e.g.
// "📈 The model predicts the price will go UP with 70.00% confidence."
func Render(o Outcome) string {
	pct := FormatPercent(o.Result.Confidence)
	if o.Result.Label == ml.Up {
		return fmt.Sprintf(common.MsgPredictUp, pct)
	}
	return fmt.Sprintf(common.MsgPredictDown, pct)
}

// FormatPercent renders p in [0,1] as a percentage with two decimals.
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", p*100)
}

type errorClass struct {
	err  error
	kind string
	msg  string
}

var errorClasses = []errorClass{
	{ErrMalformedDate, "malformed_date", common.ErrMsgMalformedDate},
	{ErrDateNotInFuture, "date_not_in_future", common.ErrMsgDateNotInFuture},
	{features.ErrInsufficientHistory, "insufficient_history", common.ErrMsgInsufficientHistory},
	{features.ErrDivisionByZero, "division_by_zero", common.ErrMsgDivisionByZero},
	{ml.ErrSchemaMismatch, "schema_mismatch", common.ErrMsgSchemaMismatch},
	{ml.ErrPredictionFailed, "prediction_failed", common.ErrMsgPredictionFailed},
	{history.ErrDataSourceUnavailable, "data_source_unavailable", common.ErrMsgDataSourceUnavailable},
	{ml.ErrModelLoadFailed, "model_load_failed", common.ErrMsgModelLoadFailed},
}

// ErrorKind returns a stable snake_case name for err's taxonomy member, "ok"
// for nil and "unexpected" for anything else.
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.kind
		}
	}
	return "unexpected"
}

// RenderError returns the user-facing message for err.
func RenderError(err error) string {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.msg
		}
	}
	return common.ErrMsgUnexpected
}
