package transcoder

import "fmt"

// Size thresholds for trimming on the processing host
const (
	LargeFileMB     = 300
	VeryLargeFileMB = 1000
)

// Feasibility says whether a file should be trimmed before analysis
type Feasibility struct {
	ShouldTrim bool   `json:"shouldTrim"`
	Warning    string `json:"warning,omitempty"`
}

// CheckFeasibility grades a source by size
func CheckFeasibility(sizeBytes int64) Feasibility {
	mb := float64(sizeBytes) / (1024 * 1024)

	switch {
	case mb > VeryLargeFileMB:
		return Feasibility{
			ShouldTrim: false,
			Warning: fmt.Sprintf("File is very large (%.0fMB). It will be analysed whole without trimming. "+
				"Consider uploading a shorter segment for a faster, more focused analysis.", mb),
		}
	case mb > LargeFileMB:
		return Feasibility{
			ShouldTrim: true,
			Warning:    fmt.Sprintf("Large file (%.0fMB). Trimming may take 1-3 minutes.", mb),
		}
	default:
		return Feasibility{ShouldTrim: true}
	}
}
