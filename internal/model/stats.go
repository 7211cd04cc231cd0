package model

// Stats is the aggregate view served by /stats.
type Stats struct {
	TotalLogs       int              `json:"totalLogs"`
	SeverityStats   []SeverityStat   `json:"severityStats"`
	ProtocolStats   []ProtocolStat   `json:"protocolStats"`
	StatusCodeStats []StatusCodeStat `json:"statusCodeStats"`
	TimeSeriesStats []TimeSeriesStat `json:"timeSeriesStats"`
}

type SeverityStat struct {
	Name  Severity `json:"name"`
	Value int      `json:"value"`
	Color string   `json:"color"`
}

type ProtocolStat struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type StatusCodeStat struct {
	Code  int `json:"code"`
	Count int `json:"count"`
}

type TimeSeriesStat struct {
	Timestamp string `json:"timestamp"`
	Count     int    `json:"count"`
}
