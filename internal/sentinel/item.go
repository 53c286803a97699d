package sentinel

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Item is one catalog acquisition: a STAC item with the SAR properties and the
// per-band raster metadata the pipeline needs.
type Item struct {
	ID         string           `json:"id"`
	Collection string           `json:"collection"`
	BBox       []float64        `json:"bbox,omitempty"`
	Properties Properties       `json:"properties"`
	Assets     map[string]Asset `json:"assets"`
}

type Properties struct {
	Datetime      time.Time `json:"datetime"`
	OrbitState    string    `json:"sat:orbit_state"`
	RelativeOrbit int       `json:"sat:relative_orbit"`
}

type Asset struct {
	Href        string       `json:"href"`
	Type        string       `json:"type,omitempty"`
	RasterBands []RasterBand `json:"raster:bands,omitempty"`
}

type RasterBand struct {
	Scale  *float64 `json:"scale,omitempty"`
	Offset *float64 `json:"offset,omitempty"`
	Nodata *Nodata  `json:"nodata,omitempty"`
}

// Nodata is the STAC nodata value, which may be a number or one of the strings
// "nan", "inf" and "-inf".
type Nodata float64

func (n *Nodata) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = Nodata(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("nodata must be a number or string: %w", err)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid nodata %q: %w", s, err)
	}
	*n = Nodata(f)
	return nil
}

func (n Nodata) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return json.Marshal(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return json.Marshal(f)
}

// OrbitKey identifies the orbit track of an acquisition: the upper-cased first
// letter of the orbit direction followed by the relative orbit, e.g. "A117".
func OrbitKey(item Item) (string, error) {
	state := strings.TrimSpace(item.Properties.OrbitState)
	if state == "" {
		return "", fmt.Errorf("item %s has no orbit state", item.ID)
	}
	return strings.ToUpper(state[:1]) + strconv.Itoa(item.Properties.RelativeOrbit), nil
}

// OrbitKeys returns the orbit key of every item, in order.
func OrbitKeys(items []Item) ([]string, error) {
	keys := make([]string, len(items))
	for i, item := range items {
		key, err := OrbitKey(item)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return keys, nil
}

// Datetimes returns the acquisition time of every item, in order.
func Datetimes(items []Item) []time.Time {
	times := make([]time.Time, len(items))
	for i, item := range items {
		times[i] = item.Properties.Datetime
	}
	return times
}
