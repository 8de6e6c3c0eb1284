package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	_ "image/jpeg"
	_ "image/png"
)

var ErrEmptyImage = errors.New("empty image")
var ErrImageTooLarge = errors.New("image exceeds maximum size")
var ErrBadResolution = errors.New("image resolution too low")
var ErrUndecodable = errors.New("image could not be decoded")

// Prediction is the classifier's verdict for one drawing.
type Prediction struct {
	Confidence map[string]float64 `json:"confidence_map"`
	BestGuess  string             `json:"best_guess"`
}

// Classifier turns a submitted drawing into a label guess with per-label
// confidence. Implemented by an external service; mocked in tests.
type Classifier interface {
	Predict(ctx context.Context, imageData []byte) (Prediction, error)
}

// Constraints are the basic checks a drawing must pass before the
// classifier is ever called.
type Constraints struct {
	MaxBytes int
	MinDim   int
}

// Validate rejects drawings the classifier cannot work with. All returned
// errors are client-caused.
func (c Constraints) Validate(imageData []byte) error {
	if len(imageData) == 0 {
		return ErrEmptyImage
	}
	if len(imageData) > c.MaxBytes {
		return fmt.Errorf("%w: %d bytes, max %d", ErrImageTooLarge, len(imageData), c.MaxBytes)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return ErrUndecodable
	}
	if cfg.Width < c.MinDim || cfg.Height < c.MinDim {
		return fmt.Errorf("%w: %dx%d, min %dx%d", ErrBadResolution, cfg.Width, cfg.Height, c.MinDim, c.MinDim)
	}
	return nil
}

// HTTPClassifier posts drawings to a classification service.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

func NewHTTPClassifier(url string) *HTTPClassifier {
	return &HTTPClassifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClassifier) Predict(ctx context.Context, imageData []byte) (Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(imageData))
	if err != nil {
		return Prediction{}, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("classify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Prediction{}, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return Prediction{}, fmt.Errorf("decode classifier response: %w", err)
	}
	return pred, nil
}
