package rest

import (
	"encoding/json"
	stderrors "errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/errors"
)

func TestWriteError_MapsAppErrorStatus(t *testing.T) {
	rec := httptest.NewRecorder()

	writeError(rec, zaptest.NewLogger(t), errors.NewNotFoundError("job"))

	assert.Equal(t, 404, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RESOURCE_NOT_FOUND", body.Error.Code)
}

func TestWriteError_UnknownErrorIsOpaque500(t *testing.T) {
	rec := httptest.NewRecorder()

	writeError(rec, zaptest.NewLogger(t), stderrors.New("pgx: connection refused"))

	assert.Equal(t, 500, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.NotContains(t, rec.Body.String(), "pgx", "driver detail must not leak to callers")
}

func TestWriteValidationError(t *testing.T) {
	rec := httptest.NewRecorder()

	writeValidationError(rec, "phone is required")

	assert.Equal(t, 400, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
	assert.Equal(t, "phone is required", body.Error.Message)
}
