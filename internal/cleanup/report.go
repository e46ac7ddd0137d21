package cleanup

import (
	"bufio"
	"fmt"
	"io"
)

// ReportHeader is the first line of every report, printed even when nothing
// was removed
const ReportHeader = "Removed the following empty files and directories:"

// WriteReport writes the header followed by one removed path per line, in
// removal order
func WriteReport(w io.Writer, removed []Removal) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, ReportHeader); err != nil {
		return err
	}
	for _, r := range removed {
		if _, err := fmt.Fprintln(bw, r.Path); err != nil {
			return err
		}
	}
	return bw.Flush()
}
