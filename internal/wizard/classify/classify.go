// Package classify converts typed store failures into the user-facing error
// taxonomy. No raw transport error ever reaches the applicant; every remote
// failure passes through Classify at the controller boundary.
package classify

import (
	"advisory-apply/internal/wizard/store"
)

// Stage names the submission pipeline stage a failure belongs to. It selects
// the generic fallback message and the retry entry point.
type Stage string

const (
	StageSave   Stage = "save"
	StageSubmit Stage = "submit"
	StageEmail  Stage = "email"
)

// Details is the displayed error: a short title, a remediation-oriented
// description, and whether offering a retry makes sense. Kind carries the
// underlying store failure for transports that map it to a status code; it
// is never rendered to the applicant.
type Details struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CanRetry    bool       `json:"canRetry"`
	Kind        store.Kind `json:"-"`
}

var (
	connectivityDetails = Details{
		Title:       "Connection Problem",
		Description: "We couldn't reach our servers. Please check your internet connection and try again.",
		CanRetry:    true,
	}

	sessionDetails = Details{
		Title:       "Session Issue",
		Description: "Your session could not be verified. Please retry; if the problem persists, refresh the page.",
		CanRetry:    true,
	}

	// The source marks Draft Not Found as retryable even though the token
	// is no longer resolvable. Kept as-is rather than silently corrected.
	notFoundDetails = Details{
		Title:       "Draft Not Found",
		Description: "We couldn't find your saved application. Please refresh the page or start a new application.",
		CanRetry:    true,
	}

	alreadySubmittedDetails = Details{
		Title:       "Application Already Submitted",
		Description: "This application has already been submitted. If you believe this is an error, please contact support.",
		CanRetry:    false,
	}

	timeoutDetails = Details{
		Title:       "Request Timed Out",
		Description: "The request took too long to complete. Please try again in a moment.",
		CanRetry:    true,
	}

	stageFallbacks = map[Stage]Details{
		StageSave: {
			Title:       "Save Failed",
			Description: "We couldn't save your application. Your answers are still on this page; please try again.",
			CanRetry:    true,
		},
		StageSubmit: {
			Title:       "Submission Failed",
			Description: "We couldn't submit your application. Your draft has been saved; please try again.",
			CanRetry:    true,
		},
		StageEmail: {
			Title:       "Notification Failed",
			Description: "Your application was submitted, but the confirmation email could not be sent.",
			CanRetry:    false,
		},
	}
)

// Classify maps a failure to its displayed details. Ordering matters: a
// policy denial during a network partition must be reported as a session
// issue, not a generic save failure, because the remediation differs.
func Classify(err error, stage Stage) Details {
	kind := store.KindOf(err)

	var details Details
	switch kind {
	case store.KindConnectivity:
		details = connectivityDetails
	case store.KindPolicyDenied:
		details = sessionDetails
	case store.KindNotFound:
		details = notFoundDetails
	case store.KindAlreadySubmitted:
		details = alreadySubmittedDetails
	case store.KindTimeout:
		details = timeoutDetails
	default:
		var ok bool
		if details, ok = stageFallbacks[stage]; !ok {
			details = stageFallbacks[StageSave]
		}
	}
	details.Kind = kind
	return details
}
