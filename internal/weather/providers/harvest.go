package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/i474232898/wind-harvest/internal/common"
	"github.com/i474232898/wind-harvest/internal/weather"
)

const harvestTimeLayout = "2006-01-02 15:04"

// HarvestProvider reads trace data from Harvest Electronics sites. A station's
// ExternalID is "siteId_configId" and ExternalAux lists the trace ids for
// average, gust, direction and temperature as "avg_gust_dir_temp"; a trace id of
// "0" or "" means the site does not record that channel.
type HarvestProvider struct {
	src *httpSource
}

// NewHarvestProvider creates a HarvestProvider.
func NewHarvestProvider(client *http.Client, opts ...Option) *HarvestProvider {
	return &HarvestProvider{
		src: newHTTPSource(string(weather.TypeHarvest), "https://live.harvest.com", client, opts...),
	}
}

func (p *HarvestProvider) Type() weather.ProviderType {
	return weather.TypeHarvest
}

type harvestTraceRequest struct {
	SiteID    string `json:"site_id"`
	ConfigID  string `json:"config_id"`
	TraceID   string `json:"trace_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	LastCount int    `json:"last_count"`
}

type harvestTrace struct {
	Data []struct {
		Value   *float64 `json:"data_value"`
		Sampled string   `json:"sample_datetime"`
	} `json:"data"`
}

func (p *HarvestProvider) FetchReading(ctx context.Context, st weather.Station, fc *weather.FetchContext) (weather.Measurement, error) {
	ids, ok := common.SplitCompound(st.ExternalID, 2)
	if !ok {
		return weather.Measurement{}, fmt.Errorf("harvest: external id %q is not siteId_configId", st.ExternalID)
	}
	traces, ok := common.SplitCompound(st.ExternalAux, 4)
	if !ok {
		return weather.Measurement{}, fmt.Errorf("harvest: trace ids %q are not avg_gust_dir_temp", st.ExternalAux)
	}

	lookback := 20 * time.Minute
	if st.Overrides.LongInterval {
		lookback = 40 * time.Minute
	}
	end := fc.Now.UTC()
	start := end.Add(-lookback)

	values := make([]*float64, len(traces))
	for i, trace := range traces {
		if trace == "" || trace == "0" {
			continue
		}
		v, err := p.latest(ctx, harvestTraceRequest{
			SiteID:    ids[0],
			ConfigID:  ids[1],
			TraceID:   trace,
			StartDate: start.Format(harvestTimeLayout),
			EndDate:   end.Format(harvestTimeLayout),
			LastCount: 1,
		})
		if err != nil {
			return weather.Measurement{}, err
		}
		values[i] = v
	}

	m := weather.Measurement{
		WindAverage: values[0],
		WindGust:    values[1],
		WindBearing: values[2],
		Temperature: values[3],
	}
	if st.Overrides.SwapChannels {
		m.WindAverage, m.WindGust = m.WindGust, m.WindAverage
	}
	if st.Overrides.SpeedUnit != "" {
		m = m.ScaleSpeeds(st.Overrides.SpeedUnit)
	}

	if !m.HasWind() && m.WindBearing == nil && m.Temperature == nil {
		return weather.Measurement{}, weather.ErrNoData
	}
	return m, nil
}

func (p *HarvestProvider) latest(ctx context.Context, req harvestTraceRequest) (*float64, error) {
	url := p.src.baseURL + "/php/site_graph_functions.php?retrieve_trace="
	var payload map[string]harvestTrace
	if err := p.src.postJSON(ctx, url, req, &payload); err != nil {
		return nil, err
	}
	trace, ok := payload[req.TraceID]
	if !ok || len(trace.Data) == 0 {
		return nil, nil
	}
	return trace.Data[len(trace.Data)-1].Value, nil
}
