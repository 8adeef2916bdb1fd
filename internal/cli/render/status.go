package render

import (
	"fmt"
	"io"

	"github.com/chainsmith/chasm/internal/usecase"
)

// RenderStatus renders the session summary
func RenderStatus(out io.Writer, st usecase.SessionStatus) error {
	fmt.Fprintf(out, "Mode:       %s\n", ModeBadge(st.Mode))

	live := orNotSet(st.LiveEndpoint.String())
	if st.LiveEndpoint.URL != "" {
		if st.LiveConnected {
			live += " " + okStyle.Sprint("(connected)")
		} else {
			live += " " + failStyle.Sprint("(unreachable)")
		}
	}
	fmt.Fprintf(out, "Live:       %s\n", live)

	if st.Fork.Running {
		fmt.Fprintf(out, "Fork:       %s\n", okStyle.Sprintf("running on port %d", st.Fork.Port))
	} else {
		fmt.Fprintf(out, "Fork:       %s\n", labelStyle.Sprint("stopped"))
	}
	fmt.Fprintf(out, "Snapshots:  %d\n", st.Snapshots)
	if st.LatestBlock > 0 {
		fmt.Fprintf(out, "Block:      %d\n", st.LatestBlock)
	}
	return nil
}
