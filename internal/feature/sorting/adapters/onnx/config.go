// Package onnx runs exported YOLOv8 detection and classification models
// in-process with ONNX Runtime.
package onnx

import (
	"os"
	"strconv"
)

// Config holds ONNX Runtime and model settings.
type Config struct {
	LibraryPath         string  // ONNXRUNTIME_LIB; empty uses the platform default
	DetectorModelPath   string  // MODEL_PATH
	ClassifierModelPath string  // CLASSIFIER_MODEL_PATH
	DetectorInputSize   int     // MODEL_INPUT_SIZE
	ClassifierInputSize int     // CLASSIFIER_INPUT_SIZE
	ConfThreshold       float64 // CONF_THRESHOLD
	IoUThreshold        float64 // IOU_THRESHOLD
	MaxDetections       int     // MAX_DETECTIONS
}

// LoadConfig loads ONNX configuration from environment variables.
func LoadConfig() Config {
	return Config{
		LibraryPath:         os.Getenv("ONNXRUNTIME_LIB"),
		DetectorModelPath:   getEnv("MODEL_PATH", "models/smartsort.onnx"),
		ClassifierModelPath: getEnv("CLASSIFIER_MODEL_PATH", "models/smartsort-cls.onnx"),
		DetectorInputSize:   getInt("MODEL_INPUT_SIZE", 640),
		ClassifierInputSize: getInt("CLASSIFIER_INPUT_SIZE", 224),
		ConfThreshold:       getFloat("CONF_THRESHOLD", 0.25),
		IoUThreshold:        getFloat("IOU_THRESHOLD", 0.7),
		MaxDetections:       getInt("MAX_DETECTIONS", 300),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && f >= 0 {
		return f
	}
	return def
}
