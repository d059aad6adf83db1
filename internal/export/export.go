// Package export provides pure serializers from query results into
// interchange formats for downstream dashboards. Serializers fail with
// a format error on result sets they cannot represent; nothing is
// silently dropped.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
)

// Format identifies a supported export encoding.
type Format string

const (
	FormatJSON       Format = "json"
	FormatCSV        Format = "csv"
	FormatPrometheus Format = "prometheus" // Line-oriented exposition text.
	FormatInflux     Format = "influx"     // Time-series write-protocol lines.
)

// ValidFormat reports whether f is a supported format.
func ValidFormat(f Format) bool {
	switch f {
	case FormatJSON, FormatCSV, FormatPrometheus, FormatInflux:
		return true
	}
	return false
}

// Encode serializes the buckets of a query over metricName into the
// requested format.
func Encode(format Format, metricName string, buckets []models.ResultBucket) ([]byte, error) {
	if err := checkCollisions(buckets); err != nil {
		return nil, err
	}
	switch format {
	case FormatJSON:
		return encodeJSON(buckets)
	case FormatCSV:
		return encodeCSV(buckets)
	case FormatPrometheus:
		return encodePrometheus(metricName, buckets)
	case FormatInflux:
		return encodeInflux(metricName, buckets)
	}
	return nil, monerr.Newf(monerr.KindFormat, "unknown export format %q", format)
}

// checkCollisions rejects result sets whose group keys collide after
// stringification: two buckets rendering to the same series identity
// at the same instant would overwrite each other downstream.
func checkCollisions(buckets []models.ResultBucket) error {
	seen := make(map[string]struct{}, len(buckets))
	for _, b := range buckets {
		key := models.TagsKey(b.Tags) + "@" + strconv.FormatInt(b.Timestamp.UnixNano(), 10)
		if _, dup := seen[key]; dup {
			return monerr.Newf(monerr.KindFormat,
				"group keys collide after stringification: %q", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

type jsonRow struct {
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func encodeJSON(buckets []models.ResultBucket) ([]byte, error) {
	rows := make([]jsonRow, len(buckets))
	for i, b := range buckets {
		rows[i] = jsonRow{Value: b.Value, Tags: b.Tags, Timestamp: b.Timestamp}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, monerr.Wrap(monerr.KindFormat, "encode json", err)
	}
	return data, nil
}

func encodeCSV(buckets []models.ResultBucket) ([]byte, error) {
	keySet := make(map[string]struct{})
	for _, b := range buckets {
		for k := range b.Tags {
			keySet[k] = struct{}{}
		}
	}
	tagKeys := make([]string, 0, len(keySet))
	for k := range keySet {
		tagKeys = append(tagKeys, k)
	}
	sort.Strings(tagKeys)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{"timestamp", "value"}, tagKeys...)
	if err := w.Write(header); err != nil {
		return nil, monerr.Wrap(monerr.KindFormat, "encode csv", err)
	}
	for _, b := range buckets {
		row := make([]string, 0, len(header))
		row = append(row,
			b.Timestamp.UTC().Format(time.RFC3339Nano),
			strconv.FormatFloat(b.Value, 'f', -1, 64),
		)
		for _, k := range tagKeys {
			row = append(row, b.Tags[k])
		}
		if err := w.Write(row); err != nil {
			return nil, monerr.Wrap(monerr.KindFormat, "encode csv", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, monerr.Wrap(monerr.KindFormat, "encode csv", err)
	}
	return buf.Bytes(), nil
}

var (
	promNameRe  = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)
	promLabelRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// encodePrometheus writes `name{k="v",...} value timestamp_ms` lines.
func encodePrometheus(metricName string, buckets []models.ResultBucket) ([]byte, error) {
	if !promNameRe.MatchString(metricName) {
		return nil, monerr.Newf(monerr.KindFormat,
			"metric name %q is not a valid exposition identifier", metricName)
	}

	var buf bytes.Buffer
	for _, b := range buckets {
		buf.WriteString(metricName)
		if len(b.Tags) > 0 {
			keys := make([]string, 0, len(b.Tags))
			for k := range b.Tags {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			buf.WriteByte('{')
			for i, k := range keys {
				if !promLabelRe.MatchString(k) {
					return nil, monerr.Newf(monerr.KindFormat,
						"tag key %q is not a valid exposition label", k)
				}
				if i > 0 {
					buf.WriteByte(',')
				}
				buf.WriteString(k)
				buf.WriteString(`="`)
				buf.WriteString(escapeLabelValue(b.Tags[k]))
				buf.WriteByte('"')
			}
			buf.WriteByte('}')
		}
		buf.WriteByte(' ')
		buf.WriteString(strconv.FormatFloat(b.Value, 'f', -1, 64))
		buf.WriteByte(' ')
		buf.WriteString(strconv.FormatInt(b.Timestamp.UnixMilli(), 10))
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func escapeLabelValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	return strings.ReplaceAll(v, `"`, `\"`)
}

// encodeInflux writes `name,k=v value=<v> timestamp_ns` lines.
func encodeInflux(metricName string, buckets []models.ResultBucket) ([]byte, error) {
	if strings.TrimSpace(metricName) == "" {
		return nil, monerr.New(monerr.KindFormat, "influx measurement name must not be empty")
	}

	var buf bytes.Buffer
	for _, b := range buckets {
		buf.WriteString(escapeInflux(metricName))
		if len(b.Tags) > 0 {
			keys := make([]string, 0, len(b.Tags))
			for k := range b.Tags {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				buf.WriteByte(',')
				buf.WriteString(escapeInflux(k))
				buf.WriteByte('=')
				buf.WriteString(escapeInflux(b.Tags[k]))
			}
		}
		buf.WriteString(" value=")
		buf.WriteString(strconv.FormatFloat(b.Value, 'f', -1, 64))
		buf.WriteByte(' ')
		buf.WriteString(strconv.FormatInt(b.Timestamp.UnixNano(), 10))
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func escapeInflux(s string) string {
	s = strings.ReplaceAll(s, `,`, `\,`)
	s = strings.ReplaceAll(s, ` `, `\ `)
	return strings.ReplaceAll(s, `=`, `\=`)
}
