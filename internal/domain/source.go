package domain

// SystemWidePID is the sentinel identifier for "entire system, no single process".
const SystemWidePID = -1

// SourceKind distinguishes bare processes from application bundles.
type SourceKind string

const (
	SourceKindProcess     SourceKind = "process"
	SourceKindApplication SourceKind = "application"
)

// AudioSource is an immutable snapshot of a capturable audio producer.
// Handle is owned by the OS audio subsystem and only read through.
type AudioSource struct {
	PID              int        `json:"pid"`
	Kind             SourceKind `json:"kind"`
	Name             string     `json:"name"`
	IsProducingAudio bool       `json:"isProducingAudio"`
	BundleID         string     `json:"bundleId,omitempty"`
	BundlePath       string     `json:"bundlePath,omitempty"`
	Handle           uint32     `json:"-"`
}

// SystemWideSource returns the sentinel source for whole-system capture.
func SystemWideSource() AudioSource {
	return AudioSource{PID: SystemWidePID, Kind: SourceKindProcess, Name: "System Audio"}
}

func (s AudioSource) IsSystemWide() bool {
	return s.PID == SystemWidePID
}
