package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/domain/auth"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", validator.ValidationErrors{{Field: "kind", Message: "bad"}}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"invalid coordinate", fmt.Errorf("%w: latitude 91 out of range", attendance.ErrInvalidCoordinate), http.StatusUnprocessableEntity, "INVALID_COORDINATE"},
		{"face mismatch", attendance.ErrFaceMismatch, http.StatusForbidden, "FACE_MISMATCH"},
		{"no site", attendance.ErrNoSiteAssigned, http.StatusConflict, "NO_SITE_ASSIGNED"},
		{"duplicate", attendance.ErrDuplicateEvent, http.StatusConflict, "DUPLICATE_EVENT"},
		{"conflict", attendance.ErrApprovalConflict, http.StatusConflict, "APPROVAL_CONFLICT"},
		{"invalid state", attendance.ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
		{"record not found", attendance.ErrRecordNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"approval not found", attendance.ErrApprovalNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"admin required", auth.ErrAdminRequired, http.StatusForbidden, "FORBIDDEN"},
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body Response
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}
}
