package registration

import (
	"context"

	goutils "go.viam.com/utils"

	"github.com/chris9182/Open3D/pointcloud"
)

// Outcome is the terminal report of an asynchronous registration run.
type Outcome struct {
	Result RegistrationResult
	Err    error
}

// RegisterMultiScaleICPAsync runs a registration on a worker goroutine,
// leaving the calling thread free for display work. Exactly one Outcome is
// delivered on the returned channel, after which it is closed. Cancel the
// context to stop the run early.
func RegisterMultiScaleICPAsync(
	ctx context.Context,
	source, target pointcloud.PointCloud,
	cfg Config,
) <-chan Outcome {
	out := make(chan Outcome, 1)
	goutils.PanicCapturingGo(func() {
		defer close(out)
		result, err := RegisterMultiScaleICP(ctx, source, target, cfg)
		out <- Outcome{Result: result, Err: err}
	})
	return out
}
