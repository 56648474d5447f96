package detector

import (
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
)

const (
	dbscanEps    = 0.5
	dbscanMinPts = 5
)

// featurePollutants are the pollutant columns of the multivariate feature
// space, followed by the four weather covariates.
var featurePollutants = []domain.Pollutant{
	domain.PollutantPM25,
	domain.PollutantPM10,
	domain.PollutantCO,
	domain.PollutantNO2,
	domain.PollutantO3,
	domain.PollutantSO2,
}

// Scorer flags outlier rows in a matrix of standardized feature rows. It
// returns the indexes of flagged rows and owns its own cutoff logic, since a
// sensible cutoff depends on the dimensionality of the rows.
type Scorer interface {
	Name() string
	Flag(rows [][]float64) []int
}

// MahalanobisScorer flags rows by their Mahalanobis distance under a
// diagonal covariance estimate. On standardized columns the squared distance
// is the sum of squared z-scores, which under normality follows a chi-square
// distribution with one degree of freedom per column. The cutoff is the
// normal approximation of that distribution's mean plus three standard
// deviations.
type MahalanobisScorer struct{}

func NewMahalanobisScorer() *MahalanobisScorer {
	return &MahalanobisScorer{}
}

func (s *MahalanobisScorer) Name() string { return "mahalanobis" }

func (s *MahalanobisScorer) Flag(rows [][]float64) []int {
	if len(rows) == 0 {
		return nil
	}
	dims := float64(len(rows[0]))
	cutoff := dims + 3*math.Sqrt(2*dims)

	var out []int
	for i, row := range rows {
		var sum float64
		for _, v := range row {
			sum += v * v
		}
		if sum > cutoff {
			out = append(out, i)
		}
	}
	return out
}

// detectMultivariate flags rows that look anomalous across the joint
// pollutant and weather feature space. Two sub-tests run per location:
// the configured Scorer over standardized rows, and DBSCAN noise-point
// labelling. The reported pollutant is the pollutant column deviating most
// from its column mean.
func (d *Detector) detectMultivariate(locations []locationSeries) []domain.Anomaly {
	var out []domain.Anomaly
	for _, loc := range locations {
		if len(loc.measurements) < minMultivariateSamples {
			continue
		}
		out = append(out, d.locationMultivariate(loc)...)
	}
	return out
}

func (d *Detector) locationMultivariate(loc locationSeries) []domain.Anomaly {
	raw := featureMatrix(loc.measurements)
	rows := standardize(raw)

	flagged := make(map[int][]string)
	for _, i := range d.scorer.Flag(rows) {
		flagged[i] = append(flagged[i], d.scorer.Name())
	}
	for _, i := range dbscanNoise(rows, dbscanEps, dbscanMinPts) {
		flagged[i] = append(flagged[i], "dbscan_noise")
	}

	var out []domain.Anomaly
	for i := range rows {
		methods, ok := flagged[i]
		if !ok {
			continue
		}
		m := loc.measurements[i]
		p, v, ok := dominantPollutant(rows[i], m)
		if !ok {
			continue
		}
		out = append(out, domain.Anomaly{
			Type:       domain.DetectionMultivariate,
			LocationID: loc.id,
			Timestamp:  m.Timestamp,
			Pollutant:  p,
			Value:      v,
			Severity:   d.thresholds.SeverityFor(p, v),
			Methods:    methods,
			Message: fmt.Sprintf("Multivariate anomaly: %s level of %.2f in %s",
				strings.ToUpper(string(p)), v, loc.id),
			Latitude:  m.Latitude,
			Longitude: m.Longitude,
		})
	}
	return out
}

// featureMatrix builds the raw feature rows. Missing readings contribute
// zero, matching the treatment of sparse sources upstream.
func featureMatrix(measurements []domain.Measurement) [][]float64 {
	width := len(featurePollutants) + 4
	rows := make([][]float64, len(measurements))
	for i, m := range measurements {
		row := make([]float64, width)
		for j, p := range featurePollutants {
			if v, ok := m.Value(p); ok {
				row[j] = v
			}
		}
		row[width-4] = deref(m.Temperature)
		row[width-3] = deref(m.Humidity)
		row[width-2] = deref(m.Pressure)
		row[width-1] = deref(m.WindSpeed)
		rows[i] = row
	}
	return rows
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// standardize centers and scales each column to zero mean and unit
// variance. Constant columns stay zero.
func standardize(rows [][]float64) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	width := len(rows[0])
	out := make([][]float64, len(rows))
	for i := range out {
		out[i] = make([]float64, width)
	}
	col := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i := range rows {
			col[i] = rows[i][j]
		}
		m := mean(col)
		sd := populationStd(col, m)
		if sd == 0 {
			continue
		}
		for i := range rows {
			out[i][j] = (rows[i][j] - m) / sd
		}
	}
	return out
}

// dominantPollutant picks the pollutant column with the largest absolute
// standardized deviation that has an actual reading on the measurement.
func dominantPollutant(row []float64, m domain.Measurement) (domain.Pollutant, float64, bool) {
	best := -1
	var bestDev float64
	for j, p := range featurePollutants {
		if _, ok := m.Value(p); !ok {
			continue
		}
		if dev := math.Abs(row[j]); best < 0 || dev > bestDev {
			best, bestDev = j, dev
		}
	}
	if best < 0 {
		return "", 0, false
	}
	p := featurePollutants[best]
	v, _ := m.Value(p)
	return p, v, true
}

// dbscanNoise returns the indexes of rows DBSCAN labels as noise: points
// that are neither core points nor density-reachable from one.
func dbscanNoise(rows [][]float64, eps float64, minPts int) []int {
	n := len(rows)
	if n == 0 {
		return nil
	}

	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if euclidean(rows[i], rows[j]) <= eps {
				neighbors[i] = append(neighbors[i], j)
				neighbors[j] = append(neighbors[j], i)
			}
		}
	}

	const (
		unvisited = 0
		noise     = -1
	)
	labels := make([]int, n)
	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		if len(neighbors[i])+1 < minPts {
			labels[i] = noise
			continue
		}
		cluster++
		labels[i] = cluster
		queue := append([]int(nil), neighbors[i]...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if labels[j] == noise {
				labels[j] = cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			if len(neighbors[j])+1 >= minPts {
				queue = append(queue, neighbors[j]...)
			}
		}
	}

	var out []int
	for i, l := range labels {
		if l == noise {
			out = append(out, i)
		}
	}
	return out
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for k := range a {
		d := a[k] - b[k]
		sum += d * d
	}
	return math.Sqrt(sum)
}
