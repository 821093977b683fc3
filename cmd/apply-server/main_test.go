package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"advisory-apply/internal/wizard/classify"
	"advisory-apply/internal/wizard/store"
)

func TestWriteError_StatusByKind(t *testing.T) {
	tests := []struct {
		name       string
		details    classify.Details
		wantStatus int
	}{
		{
			name:       "retryable failure",
			details:    classify.Details{Title: "Connection Problem", CanRetry: true, Kind: store.KindConnectivity},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "terminal failure",
			details:    classify.Details{Title: "Application Already Submitted", CanRetry: false, Kind: store.KindAlreadySubmitted},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "timeout",
			details:    classify.Details{Title: "Request Timed Out", CanRetry: true, Kind: store.KindTimeout},
			wantStatus: http.StatusGatewayTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.details)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}
