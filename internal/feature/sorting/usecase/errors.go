package usecase

import "errors"

var (
	// ErrEmptyImage is returned when the upload has no bytes.
	ErrEmptyImage = errors.New("image data is empty")

	// ErrImageTooLarge is returned when the upload exceeds the size limit.
	ErrImageTooLarge = errors.New("image size exceeds maximum")

	// ErrDecode is returned when the uploaded bytes are not a valid image.
	ErrDecode = errors.New("image could not be decoded")

	// ErrInference is returned when the model cannot be invoked.
	ErrInference = errors.New("inference failed")

	// ErrStorage is returned when an image or label file cannot be written.
	ErrStorage = errors.New("artifact storage failed")

	// ErrPersistence is returned when the prediction record cannot be inserted.
	ErrPersistence = errors.New("prediction persistence failed")

	// ErrCorrectedClassRequired is returned when a correction has no label.
	ErrCorrectedClassRequired = errors.New("corrected class is required")

	// ErrClassifierUnavailable is returned when classification mode is not configured.
	ErrClassifierUnavailable = errors.New("classifier is not configured")
)
