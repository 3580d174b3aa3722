// File path: internal/careplan/errors.go
package careplan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nicodishanthj/vitaplan/internal/common"
	ctxbuild "github.com/nicodishanthj/vitaplan/internal/context"
	"github.com/nicodishanthj/vitaplan/internal/pipeline"
	"github.com/nicodishanthj/vitaplan/internal/profile"
)

// Kind is the user-facing category of a failure.
type Kind string

const (
	KindOK                   Kind = "ok"
	KindValidation           Kind = "validation"
	KindRetrievalUnavailable Kind = "retrieval_unavailable"
	KindGenerationFailed     Kind = "generation_failed"
	KindTimeout              Kind = "timeout"
	KindCanceled             Kind = "canceled"
	KindInternal             Kind = "internal"
)

// Describe categorises err and returns a message safe to show a patient. Provider
// errors, SQL and stack detail never appear in the message.
func Describe(err error) (Kind, string) {
	if err == nil {
		return KindOK, ""
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled, "The request was cancelled."
	}
	if stores := ctxbuild.UnavailableStores(err); len(stores) > 0 {
		return KindRetrievalUnavailable, fmt.Sprintf("Reference knowledge is temporarily unavailable (%s). Please try again later.", strings.Join(stores, ", "))
	}
	var (
		validation *profile.ValidationError
		timeout    *common.TimeoutError
		stageErr   *pipeline.StageExecutionError
	)
	switch {
	case errors.As(err, &validation):
		return KindValidation, validation.Error()
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout, "Building the plan took too long. Please try again."
	case errors.As(err, &stageErr):
		return KindGenerationFailed, fmt.Sprintf("The %s step could not be completed. Please try again.", strings.ToLower(stageErr.Stage.String()))
	}
	return KindInternal, "Something went wrong while building the plan."
}
