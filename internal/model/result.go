package model

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ResultKind classifies the outcome of one delivery attempt.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultWarning
	ResultDiscarded
	ResultBusinessError
	ResultRetryableError
)

// String returns the name of the kind.
func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultWarning:
		return "warning"
	case ResultDiscarded:
		return "discarded"
	case ResultBusinessError:
		return "business_error"
	case ResultRetryableError:
		return "retryable_error"
	}
	return fmt.Sprintf("ResultKind(%d)", int(k))
}

// formatErrorPrefix marks response bodies that could not be decoded.
const formatErrorPrefix = "(Format error) - "

// ProcessingResult is the classified outcome of delivering one event.
type ProcessingResult struct {
	EventID    int64
	Kind       ResultKind
	Info       string
	HTTPStatus int
}

// State is the event state the result moves the event into.
func (r ProcessingResult) State() State {
	switch r.Kind {
	case ResultOK:
		return StateOK
	case ResultWarning:
		return StateWarning
	case ResultDiscarded:
		return StateDiscarded
	case ResultBusinessError:
		return StateError
	}
	return StateRetryable
}

// ShouldAbortProcessing reports whether the rest of the batch must wait.
// Only retryable results stop a batch.
func (r ProcessingResult) ShouldAbortProcessing() bool {
	return r.Kind == ResultRetryableError
}

// ClassifyResponse maps an HTTP response of the target endpoint to a result.
func ClassifyResponse(eventID int64, status int, body []byte) ProcessingResult {
	r := ProcessingResult{EventID: eventID, HTTPStatus: status}
	switch status {
	case http.StatusNoContent:
		r.Kind = ResultOK
	case http.StatusOK:
		r.Kind = ResultWarning
		r.Info = warningsInfo(body)
	case http.StatusUnprocessableEntity:
		r.Kind = ResultDiscarded
	case http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError:
		r.Kind = ResultBusinessError
		r.Info = errorMessageInfo(body)
	case http.StatusUnauthorized:
		r.Kind = ResultRetryableError
		r.Info = errorMessageInfo(body)
	default:
		r.Kind = ResultRetryableError
		r.Info = fmt.Sprintf("Unexpected HTTP status %d: %s", status, strings.TrimSpace(string(body)))
	}
	return r
}

// RetryableResult builds the result for a failure that happened before or
// instead of an HTTP response (transport errors, token errors).
func RetryableResult(eventID int64, info string) ProcessingResult {
	return ProcessingResult{EventID: eventID, Kind: ResultRetryableError, Info: info}
}

// TokenErrorResult builds the result for an event whose target could not
// obtain a bearer token.
func TokenErrorResult(eventID int64, description string) ProcessingResult {
	return RetryableResult(eventID, "Retryable error: "+description)
}

func warningsInfo(body []byte) string {
	var resp struct {
		Warnings *[]struct {
			Description *string `json:"description"`
		} `json:"warnings"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Warnings == nil {
		return formatErrorPrefix + string(body)
	}
	var b strings.Builder
	for _, w := range *resp.Warnings {
		if w.Description == nil {
			return formatErrorPrefix + string(body)
		}
		b.WriteString(*w.Description)
		b.WriteString("\n")
	}
	return b.String()
}

func errorMessageInfo(body []byte) string {
	var resp struct {
		ErrorMessage *string `json:"errorMessage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.ErrorMessage == nil {
		return formatErrorPrefix + string(body)
	}
	return *resp.ErrorMessage
}
