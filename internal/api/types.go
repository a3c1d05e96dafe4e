package api

// ScanResponse is the wire shape of a scan verdict.
type ScanResponse struct {
	// Status is "OK" (clean), "FOUND" (infected), or "ERROR".
	Status string `json:"status"`
	// Message contains the virus names if infected, error description if
	// error, or empty if clean.
	Message string `json:"message"`
	// ScanTime is the scan duration in seconds.
	ScanTime float64 `json:"time"`
	// Filename is the scanned file's name, if provided.
	Filename string `json:"filename,omitempty"`
}

// PoolDiagnostics reports connection pool occupancy in health checks.
type PoolDiagnostics struct {
	Size   int `json:"size"`
	InUse  int `json:"in_use"`
	Queued int `json:"queued"`
}

// HealthResponse is the health-check body. Message is "ok" when the service
// can reach clamd.
type HealthResponse struct {
	Message string          `json:"message"`
	Pool    PoolDiagnostics `json:"pool"`
}

// VersionResponse carries build metadata.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Build   string `json:"build"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
