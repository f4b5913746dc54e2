// Package dataset builds the local update vector a client contributes to
// the round. The demo source is a public statistics API; when it is
// unreachable or returns too few points, a synthetic series stands in.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"fedrelay/internal/logger"
)

const (
	// minPoints is the minimum usable sample count before falling back
	// to the synthetic series.
	minPoints = 5
)

// httpClient bounds the fetch; the relay round must not hang on the
// statistics API.
var httpClient = &http.Client{Timeout: 10 * time.Second}

// summaryResponse mirrors the statistics API's per-country summary.
type summaryResponse struct {
	Countries []countrySummary `json:"Countries"`
}

// countrySummary is one sample point: cumulative confirmed cases and deaths.
type countrySummary struct {
	TotalConfirmed float64 `json:"TotalConfirmed"` // TotalConfirmed is the predictor
	TotalDeaths    float64 `json:"TotalDeaths"`    // TotalDeaths is the response
}

// UpdateVector computes the client's update vector: the coefficient of a
// closed-form 1-D least-squares fit of deaths against confirmed cases.
// baseURL points at the statistics API; fetch failures fall through to the
// synthetic series.
func UpdateVector(baseURL string) []float64 {
	x, y, err := fetchSummary(baseURL)
	if err != nil {
		logger.Warn("statistics fetch failed, using synthetic data", "error", err)
		x, y = syntheticSeries()
	}

	if len(x) < minPoints {
		logger.Warn("too few data points, using synthetic data", "points", len(x))
		x, y = syntheticSeries()
	}

	return []float64{fitCoefficient(x, y)}
}

// fetchSummary retrieves sample points from GET {base}/summary.
func fetchSummary(baseURL string) (x, y []float64, err error) {
	resp, err := httpClient.Get(baseURL + "/summary")
	if err != nil {
		return nil, nil, fmt.Errorf("GET %s/summary:\n%w", baseURL, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("GET %s/summary: status %d", baseURL, resp.StatusCode)
	}

	var summary summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, nil, fmt.Errorf("decode summary:\n%w", err)
	}

	for _, c := range summary.Countries {
		x = append(x, c.TotalConfirmed)
		y = append(y, c.TotalDeaths)
	}

	return x, y, nil
}

// syntheticSeries produces the fallback data: y = 0.5x + 2 plus small noise.
func syntheticSeries() (x, y []float64) {
	x = make([]float64, 10)
	y = make([]float64, 10)

	for i := range x {
		x[i] = float64(i)
		y[i] = 0.5*x[i] + 2.0 + rand.NormFloat64()*0.1
	}

	return x, y
}

// fitCoefficient solves the 1-D through-origin least squares
// coef = (X^T X)^-1 X^T y, which collapses to sum(xy)/sum(x^2).
func fitCoefficient(x, y []float64) float64 {
	var xx, xy float64

	for i := range x {
		xx += x[i] * x[i]
		xy += x[i] * y[i]
	}

	if xx == 0 {
		return 0
	}

	return xy / xx
}
