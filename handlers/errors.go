package handlers

import (
	"errors"
	"net/http"

	"battery-soh-api/ml"

	"github.com/gin-gonic/gin"
)

// mlErrorResponse maps the pipeline error taxonomy to HTTP statuses. Client
// mistakes are 4xx; anything unclassified is a 500.
func mlErrorResponse(err error) (int, gin.H) {
	var schemaErr *ml.SchemaError
	var noFeatures *ml.NoFeaturesError
	var unsupported *ml.UnsupportedModelError
	var insufficient *ml.InsufficientDataError
	var insufficientSeq *ml.InsufficientSequenceDataError

	switch {
	case errors.As(err, &schemaErr),
		errors.As(err, &noFeatures),
		errors.As(err, &unsupported):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	case errors.As(err, &insufficient),
		errors.As(err, &insufficientSeq):
		return http.StatusUnprocessableEntity, gin.H{"error": err.Error()}
	default:
		return http.StatusInternalServerError, gin.H{"error": err.Error()}
	}
}
