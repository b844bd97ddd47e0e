package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"leafguard/internal/app"
	"leafguard/internal/model"
	"leafguard/internal/transport/http/response"
)

// Form fields accepted for the upload, in lookup order.
var uploadFields = []string{"file", "image"}

type Predictor interface {
	Predict(ctx context.Context, data []byte) (*model.Prediction, error)
}

// PredictHandler serves POST /predict.
type PredictHandler struct {
	predictor      Predictor
	maxUploadBytes int64
}

// NewPredictHandler creates the handler. maxUploadBytes <= 0 disables the body bound.
func NewPredictHandler(predictor Predictor, maxUploadBytes int64) *PredictHandler {
	return &PredictHandler{predictor: predictor, maxUploadBytes: maxUploadBytes}
}

// Predict accepts a multipart form with the image in field "file" and returns
// {class, confidence, remedy}.
func (h *PredictHandler) Predict(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	file, err := uploadedFile(c)
	if err != nil {
		if isTooLarge(err) {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, "uploaded file is too large")
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing image file (form field 'file')")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to open uploaded file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to read uploaded file")
		return
	}

	prediction, err := h.predictor.Predict(c.Request.Context(), data)
	if err != nil {
		_ = c.Error(err)
		switch {
		case errors.Is(err, app.ErrEmptyImage):
			response.Error(c, http.StatusBadRequest, response.CodeEmptyImage, err.Error())
		case errors.Is(err, app.ErrInvalidImage):
			response.Error(c, http.StatusBadRequest, response.CodeInvalidImage, app.ErrInvalidImage.Error())
		case errors.Is(err, app.ErrImageTooLarge):
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodeImageTooLarge, err.Error())
		case errors.Is(err, app.ErrImageShape):
			response.Error(c, http.StatusUnprocessableEntity, response.CodeImageShapeMismatch, err.Error())
		case errors.Is(err, app.ErrInference), errors.Is(err, app.ErrLabelMismatch):
			log.WithError(err).WithField("filename", file.Filename).Error("prediction failed")
			response.Error(c, http.StatusInternalServerError, response.CodeInferenceFailed, "prediction failed")
		default:
			log.WithError(err).WithField("filename", file.Filename).Error("prediction failed")
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "internal server error")
		}
		return
	}

	c.JSON(http.StatusOK, prediction)
}

func uploadedFile(c *gin.Context) (*multipart.FileHeader, error) {
	var firstErr error
	for _, field := range uploadFields {
		file, err := c.FormFile(field)
		if err == nil {
			return file, nil
		}
		if isTooLarge(err) {
			return nil, err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
